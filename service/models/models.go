package models

import (
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
)

// PaymentIntent is the unit of work for one STK push attempt. A row is
// created PENDING as soon as the gateway accepts the push and is mutated
// only by the callback reconciler. Rows are never deleted here.
type PaymentIntent struct {
	frame.BaseModel

	MerchantRequestID string `gorm:"type:varchar(50)"`
	CheckoutRequestID string `gorm:"type:varchar(50);uniqueIndex"`

	Amount decimal.NullDecimal `gorm:"type:numeric" json:"amount"`
	//nolint:revive // MSISDN follows telco naming convention
	MSISDN string `gorm:"type:varchar(15)"`
	Status string `gorm:"type:varchar(10)"`
	// Receipt is populated only once the intent is PAID.
	Receipt         string `gorm:"type:varchar(50)"`
	TransactionDate *time.Time

	Extra datatypes.JSONMap `gorm:"index:,type:gin,option:jsonb_path_ops" json:"extra"`
}

// IsPaid reports whether the intent reached the authoritative terminal
// state. A PAID row never moves backwards, whatever arrives later.
func (model *PaymentIntent) IsPaid() bool {
	return model.Status == StatusPaid
}

// STKPushRequest is the wire payload of the M-Pesa Express processrequest
// call. Field names follow the gateway contract exactly.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	//nolint:revive // CallBackURL follows external API naming convention
	CallBackURL      string `json:"CallBackURL"`
	AccountReference string `json:"AccountReference"`
	TransactionDesc  string `json:"TransactionDesc"`
}

// STKPushResponse is the gateway's synchronous answer. ResponseCode "0"
// means the push was accepted and a customer prompt is on its way; the two
// request identifiers correlate the later asynchronous callback.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// PushPrompt is the queued request an upstream service publishes to have a
// push initiated on its behalf.
type PushPrompt struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	PhoneNumber      string `json:"phone_number"`
	AccountReference string `json:"account_reference"`
	TransactionDesc  string `json:"transaction_desc"`
	TransactionType  string `json:"transaction_type"`
}
