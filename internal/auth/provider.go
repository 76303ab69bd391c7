package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrCodeRejected is returned when the identity provider refuses an
// authorization code.
var ErrCodeRejected = errors.New("identity provider rejected the code")

// IdentityProvider exchanges an authorization code for an identity.
// The provider's internals (OAuth, magic link, whatever) are out of
// scope here.
type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code string) (Identity, error)
}

// HTTPProvider exchanges codes against a remote endpoint that accepts
// {"code": ...} and answers {"sub": ..., "email": ...}.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a provider for the given exchange endpoint.
func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ExchangeCode posts the authorization code to the provider.
func (p *HTTPProvider) ExchangeCode(ctx context.Context, code string) (Identity, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return Identity{}, fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Identity{}, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Identity{}, ErrCodeRejected
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if ident.Subject == "" {
		return Identity{}, ErrCodeRejected
	}
	return ident, nil
}
