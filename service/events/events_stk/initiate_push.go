//nolint:revive // package name matches directory structure
package events_stk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antinvestor/mpesa-api/service/business"
	"github.com/antinvestor/mpesa-api/service/coreapi"
	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/sirupsen/logrus"
)

// InitiatePush handles queued push prompts published by upstream services.
type InitiatePush struct {
	Business business.PaymentBusiness
	Log      logrus.FieldLogger
}

func NewInitiatePush(biz business.PaymentBusiness, log logrus.FieldLogger) *InitiatePush {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &InitiatePush{Business: biz, Log: log}
}

// Name returns the name of the event handler.
func (h *InitiatePush) Name() string {
	return "initiate.stk.push"
}

// PayloadType returns the type of payload this event expects.
func (h *InitiatePush) PayloadType() any {
	return &models.PushPrompt{}
}

// Validate validates the payload.
func (h *InitiatePush) Validate(_ context.Context, payload any) error {
	prompt, ok := payload.(*models.PushPrompt)
	if !ok {
		return errors.New("invalid payload type, expected *models.PushPrompt")
	}

	if prompt.ID == "" {
		return errors.New("prompt ID is required")
	}
	if prompt.Amount < 1 {
		return errors.New("payment amount is required")
	}
	if prompt.PhoneNumber == "" {
		return errors.New("phone number is required")
	}

	return nil
}

// Handle implements the frame.SubscribeWorker interface.
func (h *InitiatePush) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	payload := h.PayloadType()
	if err := json.Unmarshal(message, payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := h.Validate(ctx, payload); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}

	return h.Execute(ctx, payload)
}

// Execute initiates the push for one queued prompt. The broker redelivers
// any event whose handler errors, so only failures a retry can actually fix
// are allowed to propagate; everything else is logged and dropped.
func (h *InitiatePush) Execute(ctx context.Context, payload any) error {
	prompt, ok := payload.(*models.PushPrompt)
	if !ok {
		return errors.New("invalid payload type, expected *models.PushPrompt")
	}

	logger := h.Log.WithField("promptId", prompt.ID)
	logger.Info("processing initiate.stk.push event")

	intent, err := h.Business.InitiatePush(ctx, business.PushRequest{
		Amount:           prompt.Amount,
		PhoneNumber:      prompt.PhoneNumber,
		AccountReference: prompt.AccountReference,
		TransactionDesc:  prompt.TransactionDesc,
		TransactionType:  prompt.TransactionType,
	})
	if err != nil {
		if isFinalPushError(err) {
			logger.WithError(err).Error("push cannot be retried, dropping event")
			return nil
		}
		logger.WithError(err).Error("failed to initiate STK push")
		return fmt.Errorf("initiate STK push: %w", err)
	}

	logger.WithField("checkout_request_id", intent.CheckoutRequestID).Info("queued push initiated")
	return nil
}

// isFinalPushError reports failures a redelivery cannot fix: the inputs are
// invalid, the gateway has already answered, or the push POST itself died
// mid-flight and may have reached the customer anyway. Failures before the
// push leaves the building, like the token exchange, stay retryable.
func isFinalPushError(err error) bool {
	if coreapi.IsValidationError(err) || coreapi.IsGatewayError(err) {
		return true
	}
	var netErr *coreapi.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Op == coreapi.OpSTKPush
	}
	return false
}
