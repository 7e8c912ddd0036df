package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/gqlfire/internal/threshold"
)

const (
	// MaxSafeInteger bounds every numeric volume setting (2^53 - 1).
	MaxSafeInteger = 1<<53 - 1

	DefaultNumberRequests   = 200
	DefaultConcurrencyLimit = 10
	DefaultTimeout          = 30 * time.Second

	highRateWarning        = 1000
	highConcurrencyWarning = 500
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
	OutputHTML OutputFormat = "html"
)

// Config describes one load test against a single GraphQL endpoint.
type Config struct {
	Endpoint      string            `mapstructure:"endpoint"`
	Headers       map[string]string `mapstructure:"headers"`
	Query         string            `mapstructure:"query"`
	QueryFile     string            `mapstructure:"query_file"`
	Variables     json.RawMessage   `mapstructure:"variables"`
	VariablesFile string            `mapstructure:"variables_file"`
	OperationName string            `mapstructure:"operation_name"`

	// NumberRequests and Duration are mutually exclusive. When both are set
	// Duration is ignored.
	NumberRequests   int `mapstructure:"number_requests"`
	Duration         int `mapstructure:"duration"` // seconds
	RateLimit        int `mapstructure:"rate_limit"`
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`

	Timeout          time.Duration `mapstructure:"timeout"`
	Phases           []Phase       `mapstructure:"phases"`
	Arrival          ArrivalModel  `mapstructure:"arrival"`
	Output           OutputFormat  `mapstructure:"output"`
	OutputFile       string        `mapstructure:"output_file"`
	Thresholds       []string      `mapstructure:"thresholds"`
	LogErrors        bool          `mapstructure:"log_errors"`
	Verbose          bool          `mapstructure:"verbose"`
	Tracing          TracingConfig `mapstructure:"tracing"`
	Auth             AuthConfig    `mapstructure:"auth"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	ConfigFile       string        `mapstructure:"-"`
}

// Phase is one open-model stage: ArrivalRate request starts per second for
// Duration seconds, followed by Pause seconds of idle time.
type Phase struct {
	ArrivalRate int `mapstructure:"arrival_rate"`
	Duration    int `mapstructure:"duration"`
	Pause       int `mapstructure:"pause"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether trace context goes out on requests.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Enabled() && t.Propagate
}

type AuthType string

const (
	AuthTypeStatic                  AuthType = "static"
	AuthTypeOAuth2ClientCredentials AuthType = "oauth2_client_credentials"
)

// AuthConfig configures the bearer token sent on every request.
type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	StaticToken         string        `mapstructure:"static_token"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Scopes              []string      `mapstructure:"scopes"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

// Enabled reports whether an auth type is configured.
func (a AuthConfig) Enabled() bool {
	return a.Type != ""
}

// Validation is the verdict of Config.Validate.
type Validation struct {
	Valid    bool
	Reason   string
	Warnings []string
	issues   []string
}

// Err returns nil for a valid configuration, otherwise a *ValidationError.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{issues: append([]string(nil), v.issues...)}
}

// ValidationError is returned for a configuration that must not run.
type ValidationError struct {
	issues []string
}

func (e *ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e *ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// ApplyDefaults fills in the request volume and worker count when unset.
func (c *Config) ApplyDefaults() {
	if c.NumberRequests == 0 && c.Duration == 0 && len(c.Phases) == 0 {
		c.NumberRequests = DefaultNumberRequests
	}
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if c.Arrival == "" {
		c.Arrival = ArrivalModelUniform
	}
	if c.Output == "" {
		c.Output = OutputText
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
}

// Err is shorthand for c.Validate().Err().
func (c Config) Err() error {
	return c.Validate().Err()
}

// Validate checks the configuration without side effects. Every problem is
// reported; Reason joins them in the order they were found.
func (c Config) Validate() Validation {
	var issues []string
	var warnings []string

	issues = append(issues, validateEndpoint(c.Endpoint)...)
	if strings.TrimSpace(c.Query) == "" && strings.TrimSpace(c.QueryFile) == "" {
		issues = append(issues, "query is required (use --query or --query-file)")
	}
	if strings.TrimSpace(c.Query) != "" && strings.TrimSpace(c.QueryFile) != "" {
		issues = append(issues, "query and query-file are mutually exclusive")
	}
	if len(c.Variables) > 0 && strings.TrimSpace(c.VariablesFile) != "" {
		issues = append(issues, "variables and variables-file are mutually exclusive")
	}
	if len(c.Variables) > 0 && !json.Valid(c.Variables) {
		issues = append(issues, "variables must be valid JSON")
	}

	for _, f := range []struct {
		name  string
		value int
	}{
		{"duration", c.Duration},
		{"number of requests", c.NumberRequests},
		{"rate limit", c.RateLimit},
		{"concurrency limit", c.ConcurrencyLimit},
	} {
		if issue := validateCount(f.name, f.value); issue != "" {
			issues = append(issues, issue)
		}
	}

	if c.NumberRequests > 0 && c.RateLimit > 0 && c.NumberRequests < c.RateLimit {
		issues = append(issues, fmt.Sprintf("number of requests (%d) must not be smaller than the rate limit (%d)", c.NumberRequests, c.RateLimit))
	}
	// Each worker paces at ceil(rate/concurrency) starts per second, which is at
	// least one, so a rate below the worker count cannot be held.
	if c.RateLimit > 0 && c.ConcurrencyLimit > c.RateLimit {
		issues = append(issues, fmt.Sprintf("rate limit (%d) must not be smaller than the concurrency limit (%d)", c.RateLimit, c.ConcurrencyLimit))
	}
	if c.NumberRequests > 0 && c.Duration > 0 {
		warnings = append(warnings, "both number of requests and duration are set; duration is ignored")
	}

	issues = append(issues, validatePhases(c.Phases)...)

	switch c.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.Arrival))
	}
	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML, OutputHTML:
	default:
		issues = append(issues, fmt.Sprintf("output format %q is not supported (use text, json, yaml or html)", c.Output))
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.ProgressInterval < 0 {
		issues = append(issues, "progress interval must be >= 0")
	}
	issues = append(issues, validateTracing(c.Tracing)...)
	issues = append(issues, validateAuth(c.Auth, c.Headers)...)

	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	if c.RateLimit > highRateWarning {
		warnings = append(warnings, fmt.Sprintf("high rate limit configured (%d RPS); ensure you have authorization to test the target system", c.RateLimit))
	}
	if c.ConcurrencyLimit > highConcurrencyWarning {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d workers); ensure you have authorization to test the target system", c.ConcurrencyLimit))
	}

	return Validation{
		Valid:    len(issues) == 0,
		Reason:   strings.Join(issues, "; "),
		Warnings: warnings,
		issues:   issues,
	}
}

func validateEndpoint(endpoint string) []string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return []string{"endpoint is required (use --help for usage information)"}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return []string{fmt.Sprintf("endpoint %q is not a valid URL: %v", endpoint, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("endpoint %q must use http or https", endpoint)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("endpoint %q has no host", endpoint)}
	}
	return nil
}

// validateCount accepts zero (unset) or a positive value below MaxSafeInteger.
func validateCount(name string, v int) string {
	if v == 0 {
		return ""
	}
	if v < 0 || v >= MaxSafeInteger {
		return fmt.Sprintf("%s must be a positive integer less than %d", name, int64(MaxSafeInteger))
	}
	return ""
}

func validatePhases(phases []Phase) []string {
	var issues []string
	for idx, p := range phases {
		if p.ArrivalRate < 1 {
			issues = append(issues, fmt.Sprintf("phases[%d]: arrival rate must be >= 1", idx))
		}
		if p.Duration < 1 {
			issues = append(issues, fmt.Sprintf("phases[%d]: duration must be >= 1", idx))
		}
		if p.Pause < 0 {
			issues = append(issues, fmt.Sprintf("phases[%d]: pause must be >= 0", idx))
		}
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	if !t.Enabled() {
		return nil
	}
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample rate must be between 0 and 1")
	}
	return issues
}

func validateAuth(auth AuthConfig, headers map[string]string) []string {
	if !auth.Enabled() {
		return nil
	}
	var issues []string
	switch auth.Type {
	case AuthTypeStatic:
		if strings.TrimSpace(auth.StaticToken) == "" {
			issues = append(issues, "auth: static_token is required for static auth")
		}
	case AuthTypeOAuth2ClientCredentials:
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, "auth: token_url is required for oauth2_client_credentials")
		} else if u, err := url.Parse(auth.TokenURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, fmt.Sprintf("auth: token_url %q must be an http or https URL", auth.TokenURL))
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, "auth: client_id is required for oauth2_client_credentials")
		}
		if strings.TrimSpace(auth.ClientSecret) == "" {
			issues = append(issues, "auth: client_secret is required for oauth2_client_credentials")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: unsupported type %q", auth.Type))
	}
	if auth.RefreshBeforeExpiry < 0 {
		issues = append(issues, "auth: refresh_before_expiry must be >= 0")
	}
	if _, ok := headers["Authorization"]; ok {
		issues = append(issues, "auth: cannot be combined with an explicit Authorization header")
	}
	return issues
}
