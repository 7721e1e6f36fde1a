package coreapi

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antinvestor/mpesa-api/service/models"
)

const (
	countryPrefix   = "254"
	msisdnLength    = 12
	referenceMaxLen = 12
	descMaxLen      = 32
	timestampLayout = "20060102150405"

	defaultReference = "PAYMENT"
	defaultDesc      = "Payment"

	// TransactionTypePayBill and TransactionTypeBuyGoods are the two push
	// variants the gateway accepts.
	TransactionTypePayBill  = "CustomerPayBillOnline"
	TransactionTypeBuyGoods = "CustomerBuyGoodsOnline"
)

var msisdnPattern = regexp.MustCompile(`^254(7|1)\d{8}$`)
var nonDigits = regexp.MustCompile(`\D`)

// PayloadBuilder derives the protocol fields of an STK push request from the
// merchant credentials. The zero value is unusable; construct with
// NewPayloadBuilder.
type PayloadBuilder struct {
	ShortCode   string
	Passkey     string
	CallbackURL string
	// DefaultTransactionType is used when a request does not carry an
	// explicit mode override.
	DefaultTransactionType string
	// now is swappable for tests.
	now func() time.Time
}

func NewPayloadBuilder(shortCode, passkey, callbackURL, defaultTransactionType string) (*PayloadBuilder, error) {
	if shortCode == "" {
		return nil, &ConfigError{Field: "short code"}
	}
	if passkey == "" {
		return nil, &ConfigError{Field: "passkey"}
	}
	if callbackURL == "" {
		return nil, &ConfigError{Field: "callback URL"}
	}
	if defaultTransactionType == "" {
		defaultTransactionType = TransactionTypePayBill
	}
	return &PayloadBuilder{
		ShortCode:              shortCode,
		Passkey:                passkey,
		CallbackURL:            callbackURL,
		DefaultTransactionType: defaultTransactionType,
		now:                    time.Now,
	}, nil
}

// NormalizeMSISDN rewrites a customer phone number into the international
// 2547XXXXXXXX / 2541XXXXXXXX form the gateway requires.
func NormalizeMSISDN(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")

	switch {
	case strings.HasPrefix(digits, countryPrefix) && len(digits) >= msisdnLength:
		digits = digits[:msisdnLength]
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = countryPrefix + digits[1:]
	case len(digits) == 9:
		digits = countryPrefix + digits
	}

	if !msisdnPattern.MatchString(digits) {
		return "", &ValidationError{Field: "phone", Reason: "not a recognisable mobile number"}
	}
	return digits, nil
}

// MaskMSISDN hides the subscriber digits of a phone number so a full MSISDN
// is never written to logs.
func MaskMSISDN(msisdn string) string {
	if len(msisdn) <= 6 {
		return strings.Repeat("*", len(msisdn))
	}
	return msisdn[:4] + strings.Repeat("*", len(msisdn)-6) + msisdn[len(msisdn)-2:]
}

// Password derives the gateway password digest for one timestamp. This is
// protocol conformance, not secrecy: base64(shortCode + passkey + timestamp),
// reproducible byte for byte given the same inputs.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

func truncate(s, fallback string, limit int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		s = fallback
	}
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary so a multi-byte character is never cut in
	// half on the wire.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// BuildSTKPush validates and normalizes the caller's inputs and assembles a
// complete push payload. A ValidationError is returned before any network
// activity; transactionType may be empty to use the configured default.
func (b *PayloadBuilder) BuildSTKPush(amount int64, phone, reference, description, transactionType string) (*models.STKPushRequest, error) {
	if amount < 1 {
		return nil, &ValidationError{Field: "amount", Reason: "must be at least 1"}
	}

	msisdn, err := NormalizeMSISDN(phone)
	if err != nil {
		return nil, err
	}

	if transactionType == "" {
		transactionType = b.DefaultTransactionType
	}
	if transactionType != TransactionTypePayBill && transactionType != TransactionTypeBuyGoods {
		return nil, &ValidationError{Field: "transaction type", Reason: "unknown mode " + transactionType}
	}

	timestamp := b.now().Format(timestampLayout)

	return &models.STKPushRequest{
		BusinessShortCode: b.ShortCode,
		Password:          Password(b.ShortCode, b.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            msisdn,
		PartyB:            b.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       b.CallbackURL,
		AccountReference:  truncate(reference, defaultReference, referenceMaxLen),
		TransactionDesc:   truncate(description, defaultDesc, descMaxLen),
	}, nil
}
