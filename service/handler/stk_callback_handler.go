package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/antinvestor/mpesa-api/service/models"
)

// HandleStkCallback consumes the gateway's asynchronous result delivery.
//
// It answers HTTP 200 with a minimal acknowledgement for every request it
// receives, including malformed ones: the gateway retries non-200 responses
// and a strict handler here would turn one bad delivery into a storm of
// duplicates. All real error handling happens after the acknowledgement is
// decided, inside the reconciler, where failures are logged and swallowed.
func (js *JobServer) HandleStkCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Log.WithField("type", "CallbackHandler")

	var envelope models.StkCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		logger.WithError(err).Error("failed to decode callback request")
		acknowledge(w)
		return
	}

	callback := envelope.Body.StkCallback
	logger = logger.
		WithField("merchant_request_id", callback.MerchantRequestID).
		WithField("checkout_request_id", callback.CheckoutRequestID).
		WithField("result_code", callback.ResultCode)

	if err := js.Business.ReconcileCallback(ctx, &envelope); err != nil {
		logger.WithError(err).Error("failed to reconcile callback")
		acknowledge(w)
		return
	}

	logger.Info("callback reconciled")
	acknowledge(w)
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}
