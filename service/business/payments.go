package business

import (
	"context"
	"errors"
	"time"

	"github.com/antinvestor/mpesa-api/service/coreapi"
	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/antinvestor/mpesa-api/service/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PushRequest carries the caller's inputs for one push attempt. Reference,
// description and transaction type may be empty to take the configured
// defaults; RequestRetries stays zero unless the caller accepts the
// duplicate-prompt risk of retrying a non-idempotent operation.
type PushRequest struct {
	Amount           int64
	PhoneNumber      string
	AccountReference string
	TransactionDesc  string
	TransactionType  string
	Timeout          time.Duration
	RequestRetries   int
}

type PaymentBusiness interface {
	InitiatePush(ctx context.Context, request PushRequest) (*models.PaymentIntent, error)
	ReconcileCallback(ctx context.Context, envelope *models.StkCallbackEnvelope) error
	GetIntent(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error)
}

type paymentBusiness struct {
	client  coreapi.DarajaApiClient
	tokens  *coreapi.TokenSource
	builder *coreapi.PayloadBuilder
	repo    repository.PaymentIntentRepository
	log     logrus.FieldLogger
}

func NewPaymentBusiness(_ context.Context, client coreapi.DarajaApiClient, tokens *coreapi.TokenSource,
	builder *coreapi.PayloadBuilder, repo repository.PaymentIntentRepository, log logrus.FieldLogger) (PaymentBusiness, error) {
	if client == nil || tokens == nil || builder == nil || repo == nil {
		return nil, ErrorInitializationFail
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &paymentBusiness{
		client:  client,
		tokens:  tokens,
		builder: builder,
		repo:    repo,
		log:     log,
	}, nil
}

// InitiatePush validates the request, ensures a bearer token, issues the
// push and persists a PENDING intent keyed by the returned correlation
// identifiers.
func (pb *paymentBusiness) InitiatePush(ctx context.Context, request PushRequest) (*models.PaymentIntent, error) {
	payload, err := pb.builder.BuildSTKPush(request.Amount, request.PhoneNumber,
		request.AccountReference, request.TransactionDesc, request.TransactionType)
	if err != nil {
		return nil, err
	}

	logger := pb.log.WithField("mobile_number", coreapi.MaskMSISDN(payload.PhoneNumber)).
		WithField("reference", payload.AccountReference)

	token, err := pb.tokens.AccessToken(ctx, false)
	if err != nil {
		logger.WithError(err).Error("could not obtain access token")
		return nil, err
	}

	response, err := pb.client.InitiateSTKPush(ctx, payload, token, coreapi.PushOptions{
		Timeout:        request.Timeout,
		RequestRetries: request.RequestRetries,
	})
	if err != nil {
		logger.WithError(err).Error("stk push was not accepted")
		return nil, err
	}

	intent := &models.PaymentIntent{
		MerchantRequestID: response.MerchantRequestID,
		CheckoutRequestID: response.CheckoutRequestID,
		Amount:            decimal.NullDecimal{Valid: true, Decimal: decimal.NewFromInt(request.Amount)},
		MSISDN:            payload.PhoneNumber,
		Status:            models.StatusPending,
		Extra: map[string]any{
			"customer_message":     response.CustomerMessage,
			"response_description": response.ResponseDescription,
		},
	}
	intent.GenID(ctx)

	if err := pb.repo.Create(ctx, intent); err != nil {
		// The push is already on its way to the customer; surfacing the
		// persistence failure lets the caller decide how to reconcile.
		logger.WithError(err).Error("could not persist pending intent")
		return nil, err
	}

	logger.WithField("checkout_request_id", intent.CheckoutRequestID).Info("payment intent recorded")
	return intent, nil
}

// GetIntent looks a persisted intent up by its stable correlation id.
func (pb *paymentBusiness) GetIntent(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error) {
	intent, err := pb.repo.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorIntentDoesNotExist
		}
		return nil, err
	}
	return intent, nil
}

// ReconcileCallback merges one gateway result delivery into the persisted
// intent. Deliveries may duplicate, race the push path's own insert, or
// arrive out of order; the merge is idempotent and strictly monotonic, so a
// PAID row is never downgraded whatever arrives after it.
func (pb *paymentBusiness) ReconcileCallback(ctx context.Context, envelope *models.StkCallbackEnvelope) error {
	event := envelope.Body.StkCallback.ToEvent()
	if event.CheckoutRequestID == "" || event.MerchantRequestID == "" {
		return ErrorCallbackMissingIDs
	}

	logger := pb.log.WithField("checkout_request_id", event.CheckoutRequestID).
		WithField("result_code", event.ResultCode)

	existing, err := pb.repo.GetByCheckoutRequestID(ctx, event.CheckoutRequestID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		// The callback beat the push path's insert. Create the row
		// directly in the terminal state it reports; the racing insert is
		// folded away by the conflict guard on checkout_request_id.
		intent := intentFromEvent(ctx, event)
		if createErr := pb.repo.Create(ctx, intent); createErr != nil {
			return createErr
		}
		// The push insert may also have landed between the read above and
		// the create, in which case the create was the side folded away.
		// The guarded update writes the result onto whichever row won.
		if applyErr := pb.repo.ApplyResult(ctx, intent); applyErr != nil {
			return applyErr
		}
		logger.WithField("status", intent.Status).Info("intent created from callback")
		return nil
	}

	if existing.IsPaid() {
		// PAID is authoritative: duplicate success deliveries and late
		// failure deliveries are both no-ops.
		logger.Info("intent already paid, callback ignored")
		return nil
	}

	applyEvent(existing, event)
	if err := pb.repo.ApplyResult(ctx, existing); err != nil {
		return err
	}

	logger.WithField("status", existing.Status).Info("intent reconciled")
	return nil
}

func intentFromEvent(ctx context.Context, event *models.CallbackEvent) *models.PaymentIntent {
	intent := &models.PaymentIntent{
		MerchantRequestID: event.MerchantRequestID,
		CheckoutRequestID: event.CheckoutRequestID,
	}
	intent.GenID(ctx)
	applyEvent(intent, event)
	return intent
}

// applyEvent writes the callback outcome onto the intent. Success fills the
// confirmation fields; failure records the gateway's verdict without
// touching whatever amount/phone the push path stored.
func applyEvent(intent *models.PaymentIntent, event *models.CallbackEvent) {
	if intent.Extra == nil {
		intent.Extra = map[string]any{}
	}
	intent.Extra["result_desc"] = event.ResultDesc

	if !event.Succeeded() {
		intent.Status = models.StatusFailed
		intent.Extra["result_code"] = event.ResultCode
		return
	}

	intent.Status = models.StatusPaid
	intent.Receipt = event.Receipt
	if event.Amount.Valid {
		intent.Amount = event.Amount
	}
	if event.MSISDN != "" {
		intent.MSISDN = event.MSISDN
	}
	intent.TransactionDate = event.TransactionDate
}
