package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file into a
// Config. Flags override file values. Defaults are applied but the result is
// not validated.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Headers:    map[string]string{},
		Timeout:    DefaultTimeout,
		ConfigFile: configPath,
		Arrival:    ArrivalModelUniform,
		Output:     OutputText,
		Tracing:    TracingConfig{Protocol: "grpc", ServiceName: "gqlfire", SampleRate: 1},
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if configPath != "" {
		vars, err := fileVariables(configPath)
		if err != nil {
			return nil, fmt.Errorf("variables: %w", err)
		}
		if vars != nil {
			cfg.Variables = vars
		}
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	applyAuthEnvironment(&cfg.Auth)

	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.QueryFile = strings.TrimSpace(cfg.QueryFile)
	cfg.VariablesFile = strings.TrimSpace(cfg.VariablesFile)
	cfg.ApplyDefaults()
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringFields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"endpoint", "url", "target"}, &cfg.Endpoint},
		{[]string{"query"}, &cfg.Query},
		{[]string{"queryfile", "query_file", "query-file"}, &cfg.QueryFile},
		{[]string{"variablesfile", "variables_file", "variables-file"}, &cfg.VariablesFile},
		{[]string{"operationname", "operation_name", "operation-name"}, &cfg.OperationName},
		{[]string{"outputfile", "output_file", "output-file"}, &cfg.OutputFile},
		{[]string{"metricsaddr", "metrics_addr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, s := range stringFields {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "variables"); ok {
		vars, err := asJSON(raw)
		if err != nil {
			return fmt.Errorf("variables: %w", err)
		}
		cfg.Variables = vars
	}

	ints := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"numberrequests", "number_requests", "number-requests", "requests"}, &cfg.NumberRequests},
		{[]string{"ratelimit", "rate_limit", "rate-limit", "rate"}, &cfg.RateLimit},
		{[]string{"concurrencylimit", "concurrency_limit", "concurrency-limit", "concurrency"}, &cfg.ConcurrencyLimit},
	}
	for _, s := range ints {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		secs, err := asSeconds(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = secs
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "progressinterval", "progress_interval", "progress-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("progressInterval: %w", err)
		}
		cfg.ProgressInterval = dur
	}

	if raw, ok := lookupSetting(settings, "phases"); ok {
		phases, err := parsePhases(raw)
		if err != nil {
			return fmt.Errorf("phases: %w", err)
		}
		cfg.Phases = phases
	}

	if raw, ok := lookupSetting(settings, "arrival", "arrivalmodel", "arrival_model", "arrival-model"); ok {
		model, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if model != "" {
			cfg.Arrival = model
		}
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.Output = OutputFormat(val)
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		list, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = list
	}

	bools := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"logerrors", "log_errors", "log-errors"}, &cfg.LogErrors},
		{[]string{"verbose"}, &cfg.Verbose},
	}
	for _, s := range bools {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw, cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		cfg.Auth = auth
	}

	return nil
}

func parsePhases(value interface{}) ([]Phase, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	phases := make([]Phase, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("phases[%d]: %w", idx, err)
		}
		var p Phase
		if raw, ok := lookupSetting(entry, "arrivalrate", "arrival_rate", "arrival-rate", "rate"); ok {
			if p.ArrivalRate, err = asInt(raw); err != nil {
				return nil, fmt.Errorf("phases[%d].arrival_rate: %w", idx, err)
			}
		}
		if raw, ok := lookupSetting(entry, "duration"); ok {
			if p.Duration, err = asSeconds(raw); err != nil {
				return nil, fmt.Errorf("phases[%d].duration: %w", idx, err)
			}
		}
		if raw, ok := lookupSetting(entry, "pause"); ok {
			if p.Pause, err = asSeconds(raw); err != nil {
				return nil, fmt.Errorf("phases[%d].pause: %w", idx, err)
			}
		}
		phases = append(phases, p)
	}
	return phases, nil
}

func parseArrival(value interface{}) (ArrivalModel, error) {
	if value == nil {
		return "", nil
	}
	switch v := value.(type) {
	case string:
		return ArrivalModel(strings.ToLower(strings.TrimSpace(v))), nil
	default:
		entry, err := toStringKeyMap(value)
		if err != nil {
			return "", err
		}
		if raw, ok := lookupSetting(entry, "model"); ok {
			val, err := asString(raw)
			if err != nil {
				return "", fmt.Errorf("model: %w", err)
			}
			return ArrivalModel(strings.ToLower(strings.TrimSpace(val))), nil
		}
		return "", fmt.Errorf("model field is required")
	}
}

// parseTracing overlays the file's tracing block on base.
func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	tc := base
	if value == nil {
		return tc, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return tc, err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		if tc.Endpoint, err = asString(raw); err != nil {
			return tc, fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		if tc.Protocol, err = asString(raw); err != nil {
			return tc, fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		if tc.ServiceName, err = asString(raw); err != nil {
			return tc, fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		if tc.SampleRate, err = asFloat64(raw); err != nil {
			return tc, fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		if tc.Insecure, err = asBool(raw); err != nil {
			return tc, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		if tc.Propagate, err = asBool(raw); err != nil {
			return tc, fmt.Errorf("propagate: %w", err)
		}
	}
	return tc, nil
}

// parseAuth overlays the file's auth block on base.
func parseAuth(value interface{}, base AuthConfig) (AuthConfig, error) {
	auth := base
	if value == nil {
		return auth, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return auth, err
	}
	if raw, ok := lookupSetting(entry, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return auth, fmt.Errorf("type: %w", err)
		}
		auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	fields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"statictoken", "static_token", "static-token"}, &auth.StaticToken},
		{[]string{"tokenurl", "token_url", "token-url"}, &auth.TokenURL},
		{[]string{"clientid", "client_id", "client-id"}, &auth.ClientID},
		{[]string{"clientsecret", "client_secret", "client-secret"}, &auth.ClientSecret},
	}
	for _, f := range fields {
		if raw, ok := lookupSetting(entry, f.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return auth, fmt.Errorf("%s: %w", f.keys[1], err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(entry, "scopes"); ok {
		scopes, err := asStringSlice(raw)
		if err != nil {
			return auth, fmt.Errorf("scopes: %w", err)
		}
		auth.Scopes = scopes
	}
	if raw, ok := lookupSetting(entry, "refreshbeforeexpiry", "refresh_before_expiry", "refresh-before-expiry"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return auth, fmt.Errorf("refresh_before_expiry: %w", err)
		}
		auth.RefreshBeforeExpiry = dur
	}
	return auth, nil
}

// applyAuthEnvironment fills secrets left empty by the file and flags.
func applyAuthEnvironment(auth *AuthConfig) {
	if auth.StaticToken == "" {
		auth.StaticToken = os.Getenv("GQLFIRE_AUTH_STATIC_TOKEN")
	}
	if auth.ClientSecret == "" {
		auth.ClientSecret = os.Getenv("GQLFIRE_AUTH_CLIENT_SECRET")
	}
}

// fileVariables re-reads the variables block of a YAML or JSON config file.
// Viper lowercases nested keys, which would corrupt GraphQL variable names.
func fileVariables(path string) (json.RawMessage, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for k, v := range doc {
		if strings.EqualFold(k, "variables") {
			return asJSON(v)
		}
	}
	return nil, nil
}

// asJSON accepts variables either as a JSON document string or as a structure
// decoded from the config file, and returns them as raw JSON.
func asJSON(value interface{}) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return json.RawMessage(v), nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(normalizeJSON(value))
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

// normalizeJSON converts YAML-decoded map[interface{}]interface{} values into
// string-keyed maps that encoding/json accepts.
func normalizeJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = normalizeJSON(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = normalizeJSON(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalizeJSON(val)
		}
		return out
	default:
		return v
	}
}
