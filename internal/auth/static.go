package auth

import (
	"context"
	"net/http"
)

// StaticTokenProvider sends a pre-issued token, for example one obtained from
// an identity provider outside gqlfire.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token returns the static token without any network calls.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.token, nil
}

func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	setBearer(req, p.token)
	return nil
}

func (p *StaticTokenProvider) Close() error {
	return nil
}
