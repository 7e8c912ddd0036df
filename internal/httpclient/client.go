package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/gqlfire/internal/config"
	"github.com/torosent/gqlfire/internal/tracing"
)

// RequestError reports a request that could not be built. It never reaches
// the network.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "build request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// AuthProvider supplies authentication tokens and injects them into HTTP requests.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
	InjectHeader(ctx context.Context, req *http.Request) error
	Close() error
}

type RequestBuilder struct {
	target        string
	operationName string
	headers       http.Header
	body          BodySource
	propagate     bool
	authProvider  AuthProvider
}

// NewRequestBuilder prepares POST requests to cfg.Endpoint. Caller headers
// are merged over the JSON defaults and may replace Content-Type.
func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.Endpoint)
	if target == "" {
		return nil, errors.New("endpoint URL is required")
	}

	payload, err := NewPayload(cfg)
	if err != nil {
		return nil, err
	}
	body, err := NewBodySource(payload)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		target:        target,
		operationName: payload.OperationName,
		headers:       headers,
		body:          body,
		propagate:     cfg.Tracing.ShouldPropagate(),
	}, nil
}

// NewRequestBuilderWithAuth is NewRequestBuilder plus a bearer token from
// provider on every request.
func NewRequestBuilderWithAuth(cfg *config.Config, provider AuthProvider) (*RequestBuilder, error) {
	builder, err := NewRequestBuilder(cfg)
	if err != nil {
		return nil, err
	}
	builder.authProvider = provider
	return builder, nil
}

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return b.body.NewReader()
	}

	if b.authProvider != nil {
		if err := b.authProvider.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	if b.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	return req, nil
}

// Target returns the endpoint URL requests are sent to.
func (b *RequestBuilder) Target() string {
	return b.target
}

// OperationName returns the GraphQL operation name, if any.
func (b *RequestBuilder) OperationName() string {
	return b.operationName
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
