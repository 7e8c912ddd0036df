// Package auth supplies bearer tokens for requests to protected GraphQL
// endpoints.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/torosent/gqlfire/internal/config"
)

// DefaultRefreshLeeway is subtracted from a token's lifetime when no
// refresh_before_expiry is configured.
const DefaultRefreshLeeway = 30 * time.Second

// Provider defines the interface for authentication providers that can
// obtain tokens and inject them into HTTP requests.
type Provider interface {
	// Token retrieves a valid authentication token, using cached values
	// when available and valid.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}

// New builds the provider described by cfg. It returns nil, nil when no auth
// type is configured.
func New(cfg config.AuthConfig) (Provider, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case config.AuthTypeStatic:
		return NewStaticTokenProvider(cfg.StaticToken), nil
	case config.AuthTypeOAuth2ClientCredentials:
		leeway := cfg.RefreshBeforeExpiry
		if leeway <= 0 {
			leeway = DefaultRefreshLeeway
		}
		p, err := NewClientCredentialsProvider(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scopes, leeway)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", cfg.Type)
	}
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
