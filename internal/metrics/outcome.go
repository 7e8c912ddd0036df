package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Outcome is the result of a single GraphQL request.
type Outcome struct {
	Duration      time.Duration // start to response parsed (or to failure)
	StatusCode    int           // 0 when the request never got a response
	GraphQLErrors []string      // messages from a non-empty "errors" array
	Err           error         // transport failure (DNS, connect, timeout)
}

// TransportFailure reports whether the request failed before a response arrived.
func (o Outcome) TransportFailure() bool {
	return o.Err != nil
}

// Failed reports whether the outcome counts as an error in the error distribution.
func (o Outcome) Failed() bool {
	if o.Err != nil {
		return true
	}
	if o.StatusCode < 200 || o.StatusCode > 299 {
		return true
	}
	return len(o.GraphQLErrors) > 0
}

// DurationMs returns the duration in fractional milliseconds.
func (o Outcome) DurationMs() float64 {
	return durationMs(o.Duration)
}

// Class returns a short label for a failed outcome, or "" on success.
func (o Outcome) Class() string {
	switch {
	case o.Err != nil:
		return "transport: " + transportLabel(o.Err)
	case o.StatusCode < 200 || o.StatusCode > 299:
		return fmt.Sprintf("http: %d", o.StatusCode)
	case len(o.GraphQLErrors) > 0:
		return "graphql: " + truncate(o.GraphQLErrors[0], 80)
	default:
		return ""
	}
}

// Detail renders the failure for logs. It returns "" for successes.
func (o Outcome) Detail() string {
	switch {
	case o.Err != nil:
		return o.Err.Error()
	case o.StatusCode < 200 || o.StatusCode > 299:
		return fmt.Sprintf("unexpected status %d", o.StatusCode)
	case len(o.GraphQLErrors) > 0:
		return "graphql errors: " + strings.Join(o.GraphQLErrors, "; ")
	default:
		return ""
	}
}

// transportLabel looks through *url.Error so failures group by their cause.
func transportLabel(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Context deadline exceeded"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	return FriendlyErrorName(fmt.Sprintf("%T", err))
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
