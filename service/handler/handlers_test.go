package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/mpesa-api/service/business"
	"github.com/antinvestor/mpesa-api/service/coreapi"
	"github.com/antinvestor/mpesa-api/service/models"
)

// stubBusiness lets each test script the business layer's answers directly.
type stubBusiness struct {
	pushIntent   *models.PaymentIntent
	pushErr      error
	reconcileErr error
	intent       *models.PaymentIntent
	intentErr    error

	reconciled []*models.StkCallbackEnvelope
}

func (s *stubBusiness) InitiatePush(_ context.Context, _ business.PushRequest) (*models.PaymentIntent, error) {
	return s.pushIntent, s.pushErr
}

func (s *stubBusiness) ReconcileCallback(_ context.Context, envelope *models.StkCallbackEnvelope) error {
	s.reconciled = append(s.reconciled, envelope)
	return s.reconcileErr
}

func (s *stubBusiness) GetIntent(_ context.Context, _ string) (*models.PaymentIntent, error) {
	return s.intent, s.intentErr
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitiateStkPushSuccess(t *testing.T) {
	stub := &stubBusiness{pushIntent: &models.PaymentIntent{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: "ws_CO_1",
		Status:            models.StatusPending,
	}}
	js := NewJobServer(stub, nil)

	body := `{"amount": 100, "phone_number": "0712345678", "account_reference": "ORDER-1"}`
	rec := httptest.NewRecorder()
	js.InitiateStkPush(rec, httptest.NewRequest(http.MethodPost, "/payments/stkpush", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "ws_CO_1", response["checkout_request_id"])
}

func TestInitiateStkPushMalformedBody(t *testing.T) {
	js := NewJobServer(&stubBusiness{}, nil)

	rec := httptest.NewRecorder()
	js.InitiateStkPush(rec, httptest.NewRequest(http.MethodPost, "/payments/stkpush", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiateStkPushErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "validation failure",
			err:      &coreapi.ValidationError{Field: "amount", Reason: "must be at least 1"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "misconfiguration",
			err:      &coreapi.ConfigError{Field: "passkey"},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "gateway rejection",
			err:      &coreapi.GatewayError{Op: "stk push", StatusCode: 400, Code: "400.002.02"},
			expected: http.StatusBadGateway,
		},
		{
			name:     "transport failure",
			err:      &coreapi.NetworkError{Op: "stk push", Err: errors.New("timeout")},
			expected: http.StatusGatewayTimeout,
		},
		{
			name:     "unclassified failure",
			err:      errors.New("boom"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js := NewJobServer(&stubBusiness{pushErr: tt.err}, nil)

			body := `{"amount": 100, "phone_number": "0712345678"}`
			rec := httptest.NewRecorder()
			js.InitiateStkPush(rec, httptest.NewRequest(http.MethodPost, "/payments/stkpush", strings.NewReader(body)))
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestGetIntentStatus(t *testing.T) {
	stub := &stubBusiness{intent: &models.PaymentIntent{
		CheckoutRequestID: "ws_CO_1",
		Status:            models.StatusPaid,
		Receipt:           "NLJ7RT61SV",
	}}
	js := NewJobServer(stub, nil)

	rec := httptest.NewRecorder()
	js.GetIntentStatus(rec, httptest.NewRequest(http.MethodGet, "/payments/ws_CO_1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, string(models.StatusPaid), response["status"])
	assert.Equal(t, "NLJ7RT61SV", response["receipt"])
}

func TestGetIntentStatusNotFound(t *testing.T) {
	js := NewJobServer(&stubBusiness{intentErr: business.ErrorIntentDoesNotExist}, nil)

	rec := httptest.NewRecorder()
	js.GetIntentStatus(rec, httptest.NewRequest(http.MethodGet, "/payments/ws_CO_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
