//nolint:revive // package name matches directory structure
package events_stk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antinvestor/mpesa-api/service/business"
	"github.com/antinvestor/mpesa-api/service/coreapi"
	"github.com/antinvestor/mpesa-api/service/models"
)

// stubBusiness scripts the business layer's answer for one Execute call.
type stubBusiness struct {
	pushErr      error
	reconcileErr error
}

func (s *stubBusiness) InitiatePush(_ context.Context, _ business.PushRequest) (*models.PaymentIntent, error) {
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	return &models.PaymentIntent{CheckoutRequestID: "ws_CO_1", Status: models.StatusPending}, nil
}

func (s *stubBusiness) ReconcileCallback(_ context.Context, _ *models.StkCallbackEnvelope) error {
	return s.reconcileErr
}

func (s *stubBusiness) GetIntent(_ context.Context, _ string) (*models.PaymentIntent, error) {
	return nil, business.ErrorIntentDoesNotExist
}

func TestInitiatePushName(t *testing.T) {
	handler := &InitiatePush{}
	assert.Equal(t, "initiate.stk.push", handler.Name())
	assert.IsType(t, &models.PushPrompt{}, handler.PayloadType())
}

func TestInitiatePushValidate(t *testing.T) {
	handler := &InitiatePush{}

	tests := []struct {
		name        string
		payload     any
		expectError bool
	}{
		{
			name: "valid prompt",
			payload: &models.PushPrompt{
				ID:          "prompt-1",
				Amount:      100,
				PhoneNumber: "0712345678",
			},
		},
		{
			name:        "missing id",
			payload:     &models.PushPrompt{Amount: 100, PhoneNumber: "0712345678"},
			expectError: true,
		},
		{
			name:        "zero amount",
			payload:     &models.PushPrompt{ID: "prompt-1", PhoneNumber: "0712345678"},
			expectError: true,
		},
		{
			name:        "missing phone number",
			payload:     &models.PushPrompt{ID: "prompt-1", Amount: 100},
			expectError: true,
		},
		{
			name:        "wrong payload type",
			payload:     &models.PaymentIntent{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Validate(context.Background(), tt.payload)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitiatePushExecuteDoesNotRequeueFinalFailures(t *testing.T) {
	prompt := &models.PushPrompt{ID: "prompt-1", Amount: 100, PhoneNumber: "0712345678"}

	tests := []struct {
		name          string
		err           error
		expectRequeue bool
	}{
		{
			name: "gateway rejection is final",
			err:  &coreapi.GatewayError{Op: coreapi.OpSTKPush, StatusCode: 400, Code: "400.002.02"},
		},
		{
			name: "validation failure is final",
			err:  &coreapi.ValidationError{Field: "phone", Reason: "not a recognisable mobile number"},
		},
		{
			name: "push transport failure is final, the prompt may have landed",
			err:  &coreapi.NetworkError{Op: coreapi.OpSTKPush, Err: errors.New("timeout")},
		},
		{
			name:          "token transport failure is retryable",
			err:           &coreapi.NetworkError{Op: coreapi.OpToken, Err: errors.New("connection refused")},
			expectRequeue: true,
		},
		{
			name:          "persistence failure is retryable",
			err:           errors.New("database unavailable"),
			expectRequeue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewInitiatePush(&stubBusiness{pushErr: tt.err}, nil)
			err := handler.Execute(context.Background(), prompt)
			if tt.expectRequeue {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err, "a final failure must not error out of the subscriber")
			}
		})
	}
}

func TestInitiatePushExecuteSuccess(t *testing.T) {
	handler := NewInitiatePush(&stubBusiness{}, nil)
	prompt := &models.PushPrompt{ID: "prompt-1", Amount: 100, PhoneNumber: "0712345678"}
	assert.NoError(t, handler.Execute(context.Background(), prompt))
}

func TestStkCallbackExecuteRequeuesReconcileFailure(t *testing.T) {
	envelope := &models.StkCallbackEnvelope{}
	envelope.Body.StkCallback.CheckoutRequestID = "ws_CO_1"
	envelope.Body.StkCallback.MerchantRequestID = "29115-34620561-1"

	assert.NoError(t, NewStkCallback(&stubBusiness{}, nil).Execute(context.Background(), envelope))

	// Reconciliation is idempotent, so erroring out for a redelivery is safe
	// and the right call for a transient store failure.
	handler := NewStkCallback(&stubBusiness{reconcileErr: errors.New("database unavailable")}, nil)
	assert.Error(t, handler.Execute(context.Background(), envelope))
}

func TestStkCallbackName(t *testing.T) {
	handler := &StkCallback{}
	assert.Equal(t, "mpesa.stk.callback", handler.Name())
	assert.IsType(t, &models.StkCallbackEnvelope{}, handler.PayloadType())
}

func TestStkCallbackValidate(t *testing.T) {
	handler := &StkCallback{}

	valid := &models.StkCallbackEnvelope{}
	valid.Body.StkCallback.CheckoutRequestID = "ws_CO_1"
	assert.NoError(t, handler.Validate(context.Background(), valid))

	assert.Error(t, handler.Validate(context.Background(), &models.StkCallbackEnvelope{}))
	assert.Error(t, handler.Validate(context.Background(), &models.PushPrompt{}))
}
