package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/antinvestor/mpesa-api/service/business"
	"github.com/antinvestor/mpesa-api/service/coreapi"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// JobServer holds the dependencies the HTTP handlers need.
type JobServer struct {
	Business business.PaymentBusiness
	Log      logrus.FieldLogger
}

func NewJobServer(biz business.PaymentBusiness, log logrus.FieldLogger) *JobServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &JobServer{Business: biz, Log: log}
}

// HealthHandler reports service liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type stkPushRequest struct {
	Amount           int64  `json:"amount"`
	PhoneNumber      string `json:"phone_number"`
	AccountReference string `json:"account_reference"`
	TransactionDesc  string `json:"transaction_desc"`
	TransactionType  string `json:"transaction_type"`
}

// InitiateStkPush handles synchronous push requests.
func (js *JobServer) InitiateStkPush(w http.ResponseWriter, r *http.Request) {
	logger := js.Log.WithField("type", "StkPushHandler")

	var request stkPushRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.WithError(err).Error("failed to decode push request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intent, err := js.Business.InitiatePush(r.Context(), business.PushRequest{
		Amount:           request.Amount,
		PhoneNumber:      request.PhoneNumber,
		AccountReference: request.AccountReference,
		TransactionDesc:  request.TransactionDesc,
		TransactionType:  request.TransactionType,
	})
	if err != nil {
		logger.WithError(err).Error("failed to initiate STK push")
		http.Error(w, err.Error(), pushErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":              "success",
		"merchant_request_id": intent.MerchantRequestID,
		"checkout_request_id": intent.CheckoutRequestID,
	}); err != nil {
		logger.WithError(err).Error("failed to encode push response")
	}
}

// GetIntentStatus returns the persisted intent for one checkout request id,
// the surface downstream UIs poll while the customer decides.
func (js *JobServer) GetIntentStatus(w http.ResponseWriter, r *http.Request) {
	logger := js.Log.WithField("type", "IntentStatusHandler")

	checkoutRequestID := mux.Vars(r)["checkoutRequestID"]
	intent, err := js.Business.GetIntent(r.Context(), checkoutRequestID)
	if err != nil {
		if errors.Is(err, business.ErrorIntentDoesNotExist) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.WithError(err).Error("failed to load intent")
		http.Error(w, "Failed to load payment intent", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"checkout_request_id": intent.CheckoutRequestID,
		"merchant_request_id": intent.MerchantRequestID,
		"status":              intent.Status,
		"receipt":             intent.Receipt,
	}); err != nil {
		logger.WithError(err).Error("failed to encode intent response")
	}
}

// pushErrorStatus maps the error taxonomy onto HTTP statuses: the caller
// can tell a bad request from a gateway verdict from a transport failure.
func pushErrorStatus(err error) int {
	var configErr *coreapi.ConfigError
	switch {
	case coreapi.IsValidationError(err):
		return http.StatusBadRequest
	case errors.As(err, &configErr):
		return http.StatusInternalServerError
	case coreapi.IsGatewayError(err):
		return http.StatusBadGateway
	case coreapi.IsNetworkError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
