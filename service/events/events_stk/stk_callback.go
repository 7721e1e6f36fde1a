//nolint:revive // package name matches directory structure
package events_stk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antinvestor/mpesa-api/service/business"
	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/sirupsen/logrus"
)

// StkCallback reconciles gateway result callbacks delivered over the queue.
// Reconciliation is idempotent, so redelivery after a transient failure is
// always safe.
type StkCallback struct {
	Business business.PaymentBusiness
	Log      logrus.FieldLogger
}

func NewStkCallback(biz business.PaymentBusiness, log logrus.FieldLogger) *StkCallback {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StkCallback{Business: biz, Log: log}
}

func (h *StkCallback) Name() string {
	return "mpesa.stk.callback"
}

func (h *StkCallback) PayloadType() any {
	return &models.StkCallbackEnvelope{}
}

func (h *StkCallback) Validate(_ context.Context, payload any) error {
	envelope, ok := payload.(*models.StkCallbackEnvelope)
	if !ok {
		return errors.New("invalid payload type, expected *models.StkCallbackEnvelope")
	}

	if envelope.Body.StkCallback.CheckoutRequestID == "" {
		return errors.New("checkout request ID is required")
	}

	return nil
}

// Handle implements the frame.SubscribeWorker interface.
func (h *StkCallback) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	payload := h.PayloadType()
	if err := json.Unmarshal(message, payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := h.Validate(ctx, payload); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}

	return h.Execute(ctx, payload)
}

func (h *StkCallback) Execute(ctx context.Context, payload any) error {
	envelope, ok := payload.(*models.StkCallbackEnvelope)
	if !ok {
		return errors.New("invalid payload type, expected *models.StkCallbackEnvelope")
	}

	logger := h.Log.WithField("checkout_request_id", envelope.Body.StkCallback.CheckoutRequestID)
	logger.Info("processing mpesa.stk.callback event")

	if err := h.Business.ReconcileCallback(ctx, envelope); err != nil {
		logger.WithError(err).Error("failed to reconcile callback")
		return fmt.Errorf("reconcile callback: %w", err)
	}

	return nil
}
