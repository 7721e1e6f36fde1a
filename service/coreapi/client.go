package coreapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/sirupsen/logrus"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"

	defaultPushTimeout  = 12 * time.Second
	defaultTokenTimeout = 10 * time.Second
)

// Client talks to the Daraja gateway over HTTP.
type Client struct {
	ConsumerKey    string
	ConsumerSecret string
	BaseURL        string
	//nolint:revive // HttpClient follows original API naming convention
	HttpClient *http.Client
	Log        logrus.FieldLogger

	// TokenTimeout and PushTimeout bound a single attempt of the respective
	// call. Zero means the package defaults (10s token, 12s push).
	TokenTimeout time.Duration
	PushTimeout  time.Duration
}

// New creates a new instance of the Daraja API client.
func New(consumerKey, consumerSecret, baseURL string) (*Client, error) {
	if consumerKey == "" || consumerSecret == "" {
		return nil, &ConfigError{Field: "consumer key/secret"}
	}
	if baseURL == "" {
		return nil, &ConfigError{Field: "base URL"}
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:       10,
		IdleConnTimeout:    30 * time.Second,
		DisableCompression: true,
	}

	httpClient := &http.Client{
		Transport: tr,
		Timeout:   30 * time.Second,
	}

	return &Client{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		BaseURL:        baseURL,
		HttpClient:     httpClient,
		Log:            logrus.StandardLogger(),
	}, nil
}

// AccessTokenResponse is the token endpoint payload. ExpiresIn arrives as a
// string from the production gateway and as a number from some sandboxes.
type AccessTokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// Lifetime converts expires_in into a duration, defaulting to an hour when
// the field is missing or unparseable.
func (r *AccessTokenResponse) Lifetime() time.Duration {
	secs, err := r.ExpiresIn.Int64()
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}

// RequestAccessToken performs one client-credentials exchange. Callers are
// expected to go through a TokenSource rather than hitting this directly.
func (c *Client) RequestAccessToken(ctx context.Context) (*AccessTokenResponse, error) {
	timeout := c.TokenTimeout
	if timeout <= 0 {
		timeout = defaultTokenTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+tokenPath, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(OpToken, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.Log.WithError(closeErr).Warn("failed to close token response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(OpToken, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{Op: OpToken, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var tokenResponse AccessTokenResponse
	if err := json.Unmarshal(respBody, &tokenResponse); err != nil {
		return nil, &GatewayError{Op: OpToken, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if tokenResponse.AccessToken == "" {
		return nil, &GatewayError{Op: OpToken, StatusCode: resp.StatusCode, Message: "response missing access_token", Body: string(respBody)}
	}
	return &tokenResponse, nil
}

// PushOptions tune a single push call. The zero value means the default
// per-attempt timeout and no retries: the push is not idempotent, so a
// timed-out attempt that actually landed server-side would re-prompt the
// customer if blindly repeated. Callers must opt in to retries explicitly.
type PushOptions struct {
	Timeout        time.Duration
	RequestRetries int
}

// darajaErrorBody is the error envelope the gateway wraps rejections in.
type darajaErrorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// InitiateSTKPush issues the push request. Exactly one POST per attempt;
// network-class failures are retried only when opts.RequestRetries > 0, and
// a gateway rejection is always final.
func (c *Client) InitiateSTKPush(ctx context.Context, request *models.STKPushRequest, accessToken string, opts PushOptions) (*models.STKPushResponse, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.PushTimeout
	}
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}

	logger := c.Log.WithField("mobile_number", MaskMSISDN(request.PhoneNumber)).
		WithField("reference", request.AccountReference)

	policy := RetryPolicy{MaxRetries: opts.RequestRetries, Base: defaultBackoffBase, Cap: defaultBackoffCap}

	var response *models.STKPushResponse
	err := policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var attemptErr error
		response, attemptErr = c.pushOnce(attemptCtx, request, accessToken)
		if attemptErr != nil {
			logger.WithError(attemptErr).Warn("stk push attempt failed")
		}
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("checkout_request_id", response.CheckoutRequestID).Info("stk push accepted")
	return response, nil
}

func (c *Client) pushOnce(ctx context.Context, request *models.STKPushRequest, accessToken string) (*models.STKPushResponse, error) {
	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+pushPath, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(OpSTKPush, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.Log.WithError(closeErr).Warn("failed to close push response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(OpSTKPush, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody darajaErrorBody
		_ = json.Unmarshal(respBody, &errBody)
		return nil, &GatewayError{
			Op:         OpSTKPush,
			StatusCode: resp.StatusCode,
			Code:       errBody.ErrorCode,
			Message:    errBody.ErrorMessage,
			Body:       string(respBody),
		}
	}

	var pushResponse models.STKPushResponse
	if err := json.Unmarshal(respBody, &pushResponse); err != nil {
		return nil, &GatewayError{Op: OpSTKPush, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if pushResponse.ResponseCode != "0" {
		return nil, &GatewayError{
			Op:         OpSTKPush,
			StatusCode: resp.StatusCode,
			Code:       pushResponse.ResponseCode,
			Message:    pushResponse.ResponseDescription,
			Body:       string(respBody),
		}
	}
	if pushResponse.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: OpSTKPush, StatusCode: resp.StatusCode, Message: fmt.Sprintf("response missing correlation ids: %s", string(respBody))}
	}

	return &pushResponse, nil
}
