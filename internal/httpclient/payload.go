package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/torosent/gqlfire/internal/config"
)

// Payload is the JSON body of a GraphQL request.
type Payload struct {
	Query         string          `json:"query"`
	Variables     json.RawMessage `json:"variables,omitempty"`
	OperationName string          `json:"operationName,omitempty"`
}

// NewPayload builds the request payload from cfg, reading the query and
// variables files when they are set.
func NewPayload(cfg *config.Config) (Payload, error) {
	if cfg == nil {
		return Payload{}, errors.New("config cannot be nil")
	}

	p := Payload{
		Query:         cfg.Query,
		Variables:     cfg.Variables,
		OperationName: strings.TrimSpace(cfg.OperationName),
	}

	if path := strings.TrimSpace(cfg.QueryFile); path != "" {
		if strings.TrimSpace(cfg.Query) != "" {
			return Payload{}, errors.New("query and query file cannot both be provided")
		}
		data, err := readFile("query file", path)
		if err != nil {
			return Payload{}, err
		}
		p.Query = string(data)
	}
	if strings.TrimSpace(p.Query) == "" {
		return Payload{}, errors.New("query cannot be empty")
	}

	if path := strings.TrimSpace(cfg.VariablesFile); path != "" {
		if len(cfg.Variables) > 0 {
			return Payload{}, errors.New("variables and variables file cannot both be provided")
		}
		data, err := readFile("variables file", path)
		if err != nil {
			return Payload{}, err
		}
		data = bytes.TrimSpace(data)
		if !json.Valid(data) {
			return Payload{}, fmt.Errorf("variables file %q does not contain valid JSON", path)
		}
		p.Variables = data
	}
	if len(p.Variables) > 0 && !json.Valid(p.Variables) {
		return Payload{}, errors.New("variables must be valid JSON")
	}

	return p, nil
}

func readFile(label, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s %q is a directory", label, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return data, nil
}

// BodySource produces a fresh reader over the request body for every request.
type BodySource interface {
	NewReader() (io.ReadCloser, error)
	ContentLength() (int64, bool)
}

// NewBodySource encodes p once; every request replays the same bytes.
func NewBodySource(p Payload) (BodySource, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &inlineBodySource{data: data}, nil
}

type inlineBodySource struct {
	data []byte
}

func (s *inlineBodySource) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *inlineBodySource) ContentLength() (int64, bool) {
	return int64(len(s.data)), true
}
