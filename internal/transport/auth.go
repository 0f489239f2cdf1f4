package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conductorsdk/worker-go/internal/logger"
)

// defaultTokenTTL applies when the bearer token carries no usable expiry.
const defaultTokenTTL = 30 * time.Minute

// refreshMargin keeps a token from being used right up to its expiry.
const refreshMargin = 30 * time.Second

// authState caches the bearer token shared by all runners. Refresh is
// guarded by a single mutex with double-checked freshness so concurrent
// 401s cause exactly one token exchange.
type authState struct {
	key    string
	secret string

	mu              sync.Mutex
	token           string
	tokenUpdateTime time.Time
	tokenTTL        time.Duration
}

func newAuthState(key, secret string) *authState {
	return &authState{key: key, secret: secret, tokenTTL: defaultTokenTTL}
}

type tokenRequest struct {
	KeyID     string `json:"keyId"`
	KeySecret string `json:"keySecret"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// token returns a fresh bearer token. stale is the token a 401 rejected
// (empty on a first attempt); if the cache already holds a different,
// unexpired token some other request refreshed it and that one is reused,
// so concurrent 401s cause exactly one exchange.
func (c *Client) token(ctx context.Context, stale string) (string, error) {
	a := c.auth
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.token != stale && time.Since(a.tokenUpdateTime) < a.tokenTTL {
		return a.token, nil
	}

	var resp tokenResponse
	_, err := c.do(ctx, request{
		method:  "POST",
		pattern: "/token",
		path:    "/token",
		body:    tokenRequest{KeyID: a.key, KeySecret: a.secret},
		out:     &resp,
		noAuth:  true,
	})
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("token exchange returned an empty token")
	}

	a.token = resp.Token
	a.tokenUpdateTime = time.Now()
	a.tokenTTL = tokenTTL(resp.Token)

	logger.Debug().Dur("ttl", a.tokenTTL).Msg("auth token refreshed")
	return a.token, nil
}

// tokenTTL reads the exp claim from the bearer token, without verifying the
// signature, to schedule the next refresh ahead of expiry.
func tokenTTL(token string) time.Duration {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return defaultTokenTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTokenTTL
	}
	ttl := time.Until(exp.Time) - refreshMargin
	if ttl <= 0 {
		return defaultTokenTTL
	}
	return ttl
}
