package coreapi

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder(t *testing.T) *PayloadBuilder {
	t.Helper()
	builder, err := NewPayloadBuilder("174379", "test-passkey", "https://example.com/callback", "")
	require.NoError(t, err)
	builder.now = func() time.Time {
		return time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)
	}
	return builder
}

func TestNormalizeMSISDN(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{name: "local format with leading zero", input: "0712345678", expected: "254712345678"},
		{name: "bare subscriber number", input: "712345678", expected: "254712345678"},
		{name: "already international", input: "254712345678", expected: "254712345678"},
		{name: "plus prefix and spaces", input: "+254 712 345 678", expected: "254712345678"},
		{name: "dashes", input: "0712-345-678", expected: "254712345678"},
		{name: "new 1xx range", input: "0110345678", expected: "254110345678"},
		{name: "too short", input: "123", expectError: true},
		{name: "landline prefix", input: "0201234567", expectError: true},
		{name: "empty", input: "", expectError: true},
		{name: "letters only", input: "not-a-phone", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, err := NormalizeMSISDN(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, normalized)
		})
	}
}

func TestBuildSTKPushValidation(t *testing.T) {
	builder := testBuilder(t)

	tests := []struct {
		name   string
		amount int64
		phone  string
	}{
		{name: "zero amount", amount: 0, phone: "0712345678"},
		{name: "negative amount", amount: -5, phone: "0712345678"},
		{name: "malformed phone", amount: 10, phone: "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := builder.BuildSTKPush(tt.amount, tt.phone, "", "", "")
			assert.Nil(t, payload)
			assert.True(t, IsValidationError(err), "expected a validation error, got %v", err)
		})
	}
}

func TestBuildSTKPushPayload(t *testing.T) {
	builder := testBuilder(t)

	payload, err := builder.BuildSTKPush(150, "0712345678", "ORDER-2024-00087", strings.Repeat("x", 40), "")
	require.NoError(t, err)

	assert.Equal(t, "174379", payload.BusinessShortCode)
	assert.Equal(t, "174379", payload.PartyB)
	assert.Equal(t, "254712345678", payload.PartyA)
	assert.Equal(t, "254712345678", payload.PhoneNumber)
	assert.Equal(t, int64(150), payload.Amount)
	assert.Equal(t, TransactionTypePayBill, payload.TransactionType)
	assert.Equal(t, "https://example.com/callback", payload.CallBackURL)

	// Protocol-mandated maximum field widths.
	assert.Equal(t, "ORDER-2024-0", payload.AccountReference)
	assert.Len(t, payload.TransactionDesc, 32)

	// Fixed-width numeric timestamp and a reproducible digest.
	assert.Equal(t, "20240315093045", payload.Timestamp)
	assert.Equal(t, Password("174379", "test-passkey", "20240315093045"), payload.Password)
}

func TestBuildSTKPushTruncatesOnRuneBoundary(t *testing.T) {
	builder := testBuilder(t)

	// 41 bytes of two-byte runes after a one-byte prefix, so a plain byte
	// slice at 32 would land inside a rune.
	description := "a" + strings.Repeat("é", 20)
	payload, err := builder.BuildSTKPush(10, "0712345678", "x"+strings.Repeat("é", 8), description, "")
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(payload.TransactionDesc))
	assert.LessOrEqual(t, len(payload.TransactionDesc), 32)
	assert.Equal(t, "a"+strings.Repeat("é", 15), payload.TransactionDesc)

	assert.True(t, utf8.ValidString(payload.AccountReference))
	assert.LessOrEqual(t, len(payload.AccountReference), 12)
	assert.Equal(t, "x"+strings.Repeat("é", 5), payload.AccountReference)
}

func TestBuildSTKPushDefaults(t *testing.T) {
	builder := testBuilder(t)

	payload, err := builder.BuildSTKPush(10, "0712345678", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT", payload.AccountReference)
	assert.Equal(t, "Payment", payload.TransactionDesc)
}

func TestBuildSTKPushModeOverride(t *testing.T) {
	builder := testBuilder(t)

	payload, err := builder.BuildSTKPush(10, "0712345678", "", "", TransactionTypeBuyGoods)
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeBuyGoods, payload.TransactionType)

	_, err = builder.BuildSTKPush(10, "0712345678", "", "", "CustomerTeleport")
	assert.True(t, IsValidationError(err))
}

func TestPasswordDeterministic(t *testing.T) {
	first := Password("174379", "key", "20240315093045")
	second := Password("174379", "key", "20240315093045")
	assert.Equal(t, first, second)
	// base64("174379" + "key" + "20240315093045")
	assert.Equal(t, "MTc0Mzc5a2V5MjAyNDAzMTUwOTMwNDU=", first)
}

func TestMaskMSISDN(t *testing.T) {
	masked := MaskMSISDN("254712345678")
	assert.NotContains(t, masked, "1234")
	assert.Equal(t, "2547******78", masked)
	assert.Equal(t, "***", MaskMSISDN("123"))
}
