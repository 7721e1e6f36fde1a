package repository

import (
	"context"

	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/pitabwire/frame"
	"gorm.io/gorm/clause"
)

type PaymentIntentRepository interface {
	GetByID(ctx context.Context, id string) (*models.PaymentIntent, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error)
	Create(ctx context.Context, intent *models.PaymentIntent) error
	Save(ctx context.Context, intent *models.PaymentIntent) error
	ApplyResult(ctx context.Context, intent *models.PaymentIntent) error
}

type paymentIntentRepository struct {
	abstractRepository
}

func NewPaymentIntentRepository(_ context.Context, service *frame.Service) PaymentIntentRepository {
	return &paymentIntentRepository{abstractRepository{service: service}}
}

func (repo *paymentIntentRepository) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	intent := models.PaymentIntent{}
	err := repo.readDB(ctx).First(&intent, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (repo *paymentIntentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error) {
	intent := models.PaymentIntent{}
	err := repo.readDB(ctx).First(&intent, "checkout_request_id = ?", checkoutRequestID).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Create inserts a new intent. A concurrent insert for the same checkout
// request id (push persistence racing the gateway callback) is folded into a
// no-op so whichever writer loses the race does not error out.
func (repo *paymentIntentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return repo.writeDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "checkout_request_id"}},
		DoNothing: true,
	}).Create(intent).Error
}

func (repo *paymentIntentRepository) Save(ctx context.Context, intent *models.PaymentIntent) error {
	return repo.writeDB(ctx).Save(intent).Error
}

// ApplyResult writes a callback outcome guarded by the monotonic-status
// rule: the update lands only while the stored row is not already PAID, so
// duplicate or out-of-order deliveries can never downgrade a paid intent.
func (repo *paymentIntentRepository) ApplyResult(ctx context.Context, intent *models.PaymentIntent) error {
	return repo.writeDB(ctx).Model(&models.PaymentIntent{}).
		Where("checkout_request_id = ? AND status <> ?", intent.CheckoutRequestID, models.StatusPaid).
		Updates(map[string]any{
			"status":           intent.Status,
			"receipt":          intent.Receipt,
			"msisdn":           intent.MSISDN,
			"amount":           intent.Amount,
			"transaction_date": intent.TransactionDate,
			"extra":            intent.Extra,
		}).Error
}
