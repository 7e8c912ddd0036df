package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

const (
	tokenRequestTimeout = 30 * time.Second
	// defaultTokenLifetime applies when the token response has no expires_in.
	defaultTokenLifetime = 5 * time.Minute
	maxTokenResponse     = 1 << 20
)

// ClientCredentialsProvider implements the OAuth2 client credentials grant.
// Tokens are cached until refreshBeforeExpiry ahead of their expiry and
// concurrent refreshes collapse into one token request.
type ClientCredentialsProvider struct {
	tokenURL            string
	clientID            string
	clientSecret        string
	scopes              []string
	refreshBeforeExpiry time.Duration
	httpClient          *http.Client
	now                 func() time.Time

	fetches singleflight.Group
	mu      sync.RWMutex
	token   string
	expiry  time.Time
}

func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes []string, refreshBeforeExpiry time.Duration) (*ClientCredentialsProvider, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, errors.New("token URL is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("client ID is required")
	}
	return &ClientCredentialsProvider{
		tokenURL:            tokenURL,
		clientID:            clientID,
		clientSecret:        clientSecret,
		scopes:              append([]string(nil), scopes...),
		refreshBeforeExpiry: refreshBeforeExpiry,
		httpClient:          &http.Client{Timeout: tokenRequestTimeout},
		now:                 time.Now,
	}, nil
}

// Token returns the cached access token or fetches a new one.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}
	// The fetch outlives any single caller's cancellation; the client timeout
	// still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := p.fetches.Do("token", func() (interface{}, error) {
		if token, ok := p.cached(); ok {
			return token, nil
		}
		token, lifetime, err := p.fetchToken(fetchCtx)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.token = token
		p.expiry = p.now().Add(lifetime - p.refreshBeforeExpiry)
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *ClientCredentialsProvider) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token != "" && p.now().Before(p.expiry) {
		return p.token, true
	}
	return "", false
}

func (p *ClientCredentialsProvider) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(p.scopes) > 0 {
		form.Set("scope", strings.Join(p.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(p.clientID), url.QueryEscape(p.clientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}

	if oauthErr := gjson.GetBytes(body, "error"); oauthErr.Exists() {
		return "", 0, fmt.Errorf("oauth2 error: %s - %s", oauthErr.String(), gjson.GetBytes(body, "error_description").String())
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", 0, errors.New("failed to decode token response: invalid JSON")
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", 0, errors.New("no access token in response")
	}
	lifetime := defaultTokenLifetime
	if secs := gjson.GetBytes(body, "expires_in").Int(); secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}
	return token, lifetime, nil
}

// InjectHeader injects the OAuth2 token into the Authorization header.
func (p *ClientCredentialsProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	setBearer(req, token)
	return nil
}

func (p *ClientCredentialsProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
