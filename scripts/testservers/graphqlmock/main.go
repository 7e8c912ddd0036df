// Command graphqlmock serves canned GraphQL responses for manual gqlfire runs.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const maxSlowDelay = 30 * time.Second

type graphqlRequest struct {
	Query         string          `json:"query"`
	Variables     json.RawMessage `json:"variables,omitempty"`
	OperationName string          `json:"operationName,omitempty"`
}

func main() {
	port := pflag.IntP("port", "p", 4000, "Listening port")
	pflag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("graphql mock server listening", zap.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newRouter(logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ok", handleOK).Methods(http.MethodPost)
	r.HandleFunc("/errors", handleErrors).Methods(http.MethodPost)
	r.HandleFunc("/status/{code:[0-9]{3}}", handleStatus).Methods(http.MethodPost)
	r.HandleFunc("/slow", handleSlow).Methods(http.MethodPost)
	r.HandleFunc("/echo", handleEcho).Methods(http.MethodPost)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Debug("request", zap.String("method", req.Method), zap.String("path", req.URL.Path))
			next.ServeHTTP(w, req)
		})
	})
	return r
}

func handleOK(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	respondJSON(w, http.StatusOK, map[string]any{"data": map[string]any{}})
}

func handleErrors(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	respondJSON(w, http.StatusOK, map[string]any{
		"data":   nil,
		"errors": []map[string]any{{"message": "mock failure"}},
	})
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	code, err := strconv.Atoi(mux.Vars(r)["code"])
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	respondJSON(w, code, map[string]any{"data": map[string]any{}})
}

func handleSlow(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
		return
	}
	delay := time.Duration(ms) * time.Millisecond
	if delay > maxSlowDelay {
		delay = maxSlowDelay
	}
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"delayMs": ms}})
}

// handleEcho returns the decoded GraphQL payload so callers can check what
// was sent.
func handleEcho(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []map[string]any{{"message": "invalid request body: " + err.Error()}},
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"query":         req.Query,
		"variables":     req.Variables,
		"operationName": req.OperationName,
		"contentType":   r.Header.Get("Content-Type"),
		"authorization": r.Header.Get("Authorization"),
	}})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
