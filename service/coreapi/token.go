package coreapi

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// tokenSkewMargin keeps a lease from being used right at the edge of its
// expiry.
const tokenSkewMargin = 30 * time.Second

// TokenRequester is the one call a TokenSource needs from the gateway
// client.
type TokenRequester interface {
	RequestAccessToken(ctx context.Context) (*AccessTokenResponse, error)
}

type tokenLease struct {
	value     string
	expiresAt time.Time
}

func (l *tokenLease) validAt(now time.Time) bool {
	return l != nil && l.value != "" && now.Add(tokenSkewMargin).Before(l.expiresAt)
}

// TokenSource caches one bearer token per process and deduplicates
// concurrent refreshes: under N concurrent callers with an empty or expired
// cache exactly one outbound token request is made, and every caller
// observes either the cached lease or the result of that one flight.
type TokenSource struct {
	requester TokenRequester
	retry     RetryPolicy
	log       logrus.FieldLogger

	mu    sync.Mutex
	lease *tokenLease

	group singleflight.Group
	// now is swappable for tests.
	now func() time.Time
}

func NewTokenSource(requester TokenRequester, maxRetries int, log logrus.FieldLogger) *TokenSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TokenSource{
		requester: requester,
		retry:     NewRetryPolicy(maxRetries),
		log:       log,
		now:       time.Now,
	}
}

// AccessToken returns a bearer token, refreshing the cached lease when it is
// absent, expired or forceRefresh is set. A failed refresh surfaces the same
// error to every waiter of that flight and leaves any previous lease
// untouched; a cancelled waiter abandons the flight without poisoning it for
// the callers still waiting.
func (ts *TokenSource) AccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		ts.mu.Lock()
		lease := ts.lease
		now := ts.now()
		ts.mu.Unlock()
		if lease.validAt(now) {
			return lease.value, nil
		}
	}

	ch := ts.group.DoChan("access-token", func() (any, error) {
		return ts.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", classifyTransportError(OpToken, ctx.Err())
	}
}

// refresh performs the client-credentials exchange under the retry policy
// and atomically replaces the lease on success.
func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	var token *AccessTokenResponse
	err := ts.retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		token, attemptErr = ts.requester.RequestAccessToken(ctx)
		if attemptErr != nil {
			ts.log.WithError(attemptErr).Warn("token refresh attempt failed")
		}
		return attemptErr
	})
	if err != nil {
		return "", err
	}

	lease := &tokenLease{
		value:     token.AccessToken,
		expiresAt: ts.now().Add(token.Lifetime()),
	}

	ts.mu.Lock()
	ts.lease = lease
	ts.mu.Unlock()

	ts.log.WithField("expires_at", lease.expiresAt).Debug("token lease replaced")
	return lease.value, nil
}
