package coreapi

import (
	"errors"
	"fmt"
)

// Operation labels carried by NetworkError and GatewayError so callers can
// tell a failure of the token exchange from one of the push itself.
const (
	OpToken   = "token"
	OpSTKPush = "stk push"
)

// ConfigError reports a missing credential or endpoint value. It is never
// retried; the deployment is broken until the environment is fixed.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mpesa configuration missing: %s", e.Field)
}

// ValidationError reports a bad amount, phone or field value. It is returned
// before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NetworkError wraps a transport-level failure: timeout, connection reset,
// abort. These are the only failures the retry policy will ever retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("mpesa %s network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// GatewayError carries a definitive non-success answer from the gateway.
// The remote system has spoken, so it is never retried automatically.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mpesa %s rejected: code=%s message=%s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("mpesa %s failed: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

// IsNetworkError reports whether err is classified as network-class and is
// therefore eligible for retry.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsGatewayError reports whether the gateway returned a definitive rejection.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// IsValidationError reports whether err was raised before any network call.
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}

// classifyTransportError folds the assorted shapes an *http.Client transport
// failure can take (url.Error wrapping timeouts, connection resets, EOF,
// context expiry) into a NetworkError. Anything Do returns without an HTTP
// response is transport-class.
func classifyTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &NetworkError{Op: op, Err: err}
}
