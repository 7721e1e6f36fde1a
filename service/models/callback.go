package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StkCallbackEnvelope is the nested structure the gateway POSTs to the
// callback URL once the customer answers (or ignores) the prompt.
type StkCallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is a schema-free list of {Name, Value} pairs. Order is
// not guaranteed, so values are always looked up by name.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Lookup returns the named metadata value. The second return distinguishes
// an absent item from one present with a null value.
func (m *CallbackMetadata) Lookup(name string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, item := range m.Item {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}

func (m *CallbackMetadata) lookupString(name string) string {
	val, ok := m.Lookup(name)
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (m *CallbackMetadata) lookupDecimal(name string) decimal.NullDecimal {
	val, ok := m.Lookup(name)
	if !ok || val == nil {
		return decimal.NullDecimal{}
	}
	switch v := val.(type) {
	case float64:
		return decimal.NullDecimal{Valid: true, Decimal: decimal.NewFromFloat(v)}
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Valid: true, Decimal: d}
	default:
		return decimal.NullDecimal{}
	}
}

// CallbackEvent is the typed intermediate a raw callback parses into before
// it touches any persisted record. Success-only fields stay zero on failure.
type CallbackEvent struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	Amount          decimal.NullDecimal
	Receipt         string
	MSISDN          string
	TransactionDate *time.Time
}

// Succeeded reports whether the gateway delivered a payment confirmation.
func (ev *CallbackEvent) Succeeded() bool {
	return ev.ResultCode == 0
}

const transactionDateLayout = "20060102150405"

// ToEvent extracts the correlation identifiers, result and (on success) the
// metadata fields by name. Missing or malformed metadata items degrade to
// their zero values rather than failing the whole callback.
func (c *StkCallback) ToEvent() *CallbackEvent {
	ev := &CallbackEvent{
		MerchantRequestID: c.MerchantRequestID,
		CheckoutRequestID: c.CheckoutRequestID,
		ResultCode:        c.ResultCode,
		ResultDesc:        c.ResultDesc,
	}
	if c.ResultCode != 0 || c.CallbackMetadata == nil {
		return ev
	}

	ev.Amount = c.CallbackMetadata.lookupDecimal("Amount")
	ev.Receipt = c.CallbackMetadata.lookupString("MpesaReceiptNumber")
	ev.MSISDN = c.CallbackMetadata.lookupString("PhoneNumber")

	if raw := c.CallbackMetadata.lookupString("TransactionDate"); raw != "" {
		if ts, err := time.ParseInLocation(transactionDateLayout, raw, time.Local); err == nil {
			ev.TransactionDate = &ts
		}
	}
	return ev
}
