package tracing

import (
	"strings"
	"testing"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio   float64
		want    string
		wantErr bool
	}{
		{ratio: 0, want: "AlwaysOffSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0.5, want: "TraceIDRatioBased"},
		{ratio: -0.1, wantErr: true},
		{ratio: 1.01, wantErr: true},
	}
	for _, tt := range tests {
		s, err := newSampler(tt.ratio)
		if tt.wantErr {
			if err == nil {
				t.Errorf("newSampler(%g) error = nil, want error", tt.ratio)
			}
			continue
		}
		if err != nil {
			t.Fatalf("newSampler(%g) error = %v", tt.ratio, err)
		}
		if !strings.HasPrefix(s.Description(), tt.want) {
			t.Errorf("newSampler(%g) = %q, want prefix %q", tt.ratio, s.Description(), tt.want)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "c"); got != "c" {
		t.Errorf("firstNonEmpty = %q, want c", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}
