package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter(t *testing.T) {
	h := newRouter(zap.NewNop())
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"ok", "/ok", http.StatusOK, `{"data":{}}`},
		{"errors", "/errors", http.StatusOK, `"message":"mock failure"`},
		{"status", "/status/503", http.StatusServiceUnavailable, `{"data":{}}`},
		{"status out of range", "/status/999", http.StatusBadRequest, "invalid status code"},
		{"status not numeric", "/status/abc", http.StatusNotFound, ""},
		{"slow", "/slow?ms=1", http.StatusOK, `"delayMs":1`},
		{"slow missing ms", "/slow", http.StatusBadRequest, "non-negative"},
		{"unknown", "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.target, `{"query":"{ me { id } }"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want substring %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouterRejectsGet(t *testing.T) {
	h := newRouter(zap.NewNop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestSlowWaits(t *testing.T) {
	h := newRouter(zap.NewNop())
	start := time.Now()
	rec := post(t, h, "/slow?ms=30", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("responded after %v, want >= 30ms", elapsed)
	}
}

func TestEcho(t *testing.T) {
	h := newRouter(zap.NewNop())
	rec := post(t, h, "/echo", `{"query":"query Me { me { id } }","variables":{"id":"42"},"operationName":"Me"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Data struct {
			Query         string            `json:"query"`
			Variables     map[string]string `json:"variables"`
			OperationName string            `json:"operationName"`
			ContentType   string            `json:"contentType"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.OperationName != "Me" || resp.Data.Variables["id"] != "42" {
		t.Errorf("echo = %+v", resp.Data)
	}
	if resp.Data.ContentType != "application/json" {
		t.Errorf("contentType = %q", resp.Data.ContentType)
	}

	bad := post(t, h, "/echo", "not json")
	if bad.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d", bad.Code)
	}
}
