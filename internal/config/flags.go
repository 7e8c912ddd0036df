package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gqlfire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Request flags
	flags.StringP("endpoint", "e", "", "GraphQL endpoint URL")
	flags.StringSliceP("header", "H", nil, "Additional request header in key=value or 'Key: value' form")
	flags.StringP("query", "q", "", "GraphQL query document")
	flags.String("query-file", "", "Path to a file containing the GraphQL query")
	flags.String("variables", "", "GraphQL variables as a JSON document")
	flags.String("variables-file", "", "Path to a JSON file containing the GraphQL variables")
	flags.String("operation-name", "", "GraphQL operation name")

	// Load control flags
	flags.IntP("requests", "n", 0, fmt.Sprintf("Number of requests to send (default %d when no duration is given)", DefaultNumberRequests))
	flags.IntP("duration", "d", 0, "How long to run the test, in seconds (ignored when --requests is set)")
	flags.IntP("rate", "r", 0, "Maximum request starts per second (0 means unlimited)")
	flags.IntP("concurrency", "c", DefaultConcurrencyLimit, "Number of concurrent workers")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model for phases (uniform or poisson)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json, yaml or html")
	flags.String("output-file", "", "Write the report to this file instead of stdout")
	flags.Duration("progress-interval", 0, "Print progress at this interval while running (0 disables)")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint; enables tracing")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "gqlfire", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1, "Fraction of requests to trace (0 to 1)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Send W3C trace context headers to the endpoint")

	// Auth flags; secrets may also come from GQLFIRE_AUTH_STATIC_TOKEN and GQLFIRE_AUTH_CLIENT_SECRET
	flags.String("auth-type", "", "Authentication type: static or oauth2_client_credentials")
	flags.String("auth-static-token", "", "Bearer token for static auth")
	flags.String("auth-token-url", "", "OAuth2 token endpoint")
	flags.String("auth-client-id", "", "OAuth2 client ID")
	flags.String("auth-client-secret", "", "OAuth2 client secret")
	flags.StringSlice("auth-scopes", nil, "OAuth2 scopes (repeatable)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'latency:p95 < 500')")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"endpoint", &cfg.Endpoint},
		{"operation-name", &cfg.OperationName},
		{"output-file", &cfg.OutputFile},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"auth-static-token", &cfg.Auth.StaticToken},
		{"auth-token-url", &cfg.Auth.TokenURL},
		{"auth-client-id", &cfg.Auth.ClientID},
		{"auth-client-secret", &cfg.Auth.ClientSecret},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	if fs.Changed("query") {
		val, err := fs.GetString("query")
		if err != nil {
			return err
		}
		cfg.Query = val
		cfg.QueryFile = ""
	}
	if fs.Changed("query-file") {
		val, err := fs.GetString("query-file")
		if err != nil {
			return err
		}
		cfg.QueryFile = val
		cfg.Query = ""
	}
	if fs.Changed("variables") {
		val, err := fs.GetString("variables")
		if err != nil {
			return err
		}
		vars, err := asJSON(val)
		if err != nil {
			return fmt.Errorf("variables: %w", err)
		}
		cfg.Variables = vars
		cfg.VariablesFile = ""
	}
	if fs.Changed("variables-file") {
		val, err := fs.GetString("variables-file")
		if err != nil {
			return err
		}
		cfg.VariablesFile = val
		cfg.Variables = nil
	}

	intFlags := []struct {
		name string
		dst  *int
	}{
		{"requests", &cfg.NumberRequests},
		{"duration", &cfg.Duration},
		{"rate", &cfg.RateLimit},
		{"concurrency", &cfg.ConcurrencyLimit},
	}
	for _, f := range intFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	durationFlags := []struct {
		name string
		dst  *time.Duration
	}{
		{"timeout", &cfg.Timeout},
		{"progress-interval", &cfg.ProgressInterval},
	}
	for _, f := range durationFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetDuration(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"log-errors", &cfg.LogErrors},
		{"verbose", &cfg.Verbose},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("auth-type") {
		val, err := fs.GetString("auth-type")
		if err != nil {
			return err
		}
		cfg.Auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("auth-scopes") {
		values, err := fs.GetStringSlice("auth-scopes")
		if err != nil {
			return err
		}
		cfg.Auth.Scopes = values
	}
	if fs.Changed("header") {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, h := range values {
			key, value, err := parseHeader(h)
			if err != nil {
				return err
			}
			cfg.Headers[key] = value
		}
	}
	if fs.Changed("threshold") {
		values, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = values
	}
	return nil
}

// parseHeader accepts "Key=value" and "Key: value".
func parseHeader(h string) (string, string, error) {
	sep := strings.IndexAny(h, "=:")
	if sep <= 0 {
		return "", "", fmt.Errorf("invalid header %q, expected key=value", h)
	}
	key := strings.TrimSpace(h[:sep])
	if key == "" {
		return "", "", fmt.Errorf("invalid header %q, empty key", h)
	}
	return http.CanonicalHeaderKey(key), strings.TrimSpace(h[sep+1:]), nil
}
