// Package auth verifies identity tokens issued by a Cognito user pool against
// the pool's published JWKS.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// FetchKeys downloads the well-known JWKS document for a user pool.
func FetchKeys(ctx context.Context, region, poolID string) (json.RawMessage, error) {
	url := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, poolID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build jwks request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks for pool %v: %w", poolID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected jwks response for pool %v: %v", poolID, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read jwks response: %w", err)
	}
	return data, nil
}

// Verifier validates bearer tokens against a known key set and an expected
// audience.
type Verifier struct {
	audience string
	keys     keyfunc.Keyfunc
	leeway   time.Duration
}

// NewVerifier builds a verifier from a JWKS document.
func NewVerifier(audience string, jwks json.RawMessage) (*Verifier, error) {
	keys, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwks: %w", err)
	}
	return &Verifier{
		audience: audience,
		keys:     keys,
		leeway:   defaultLeeway,
	}, nil
}

// Verify checks the token's signature, expiry, and audience, and returns the
// decoded claims. Any failure, including an unknown key id, rejects the
// token.
func (v *Verifier) Verify(token string) (map[string]interface{}, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
	)
	parsed, err := parser.Parse(token, v.keys.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	return claims, nil
}
