package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gptkit/gptkit-cli/internal/api"
)

func TestTraceWriter_WriteRequestStart(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestStart(api.RequestInfo{Method: "GET", URL: "https://api.example.com/auth/me"})

	output := buf.String()
	if !strings.Contains(output, "-> GET https://api.example.com/auth/me") {
		t.Errorf("expected request line, got: %s", output)
	}
	if !strings.HasPrefix(output, "[") {
		t.Errorf("expected timestamp prefix, got: %s", output)
	}
}

func TestTraceWriter_WriteRequestEnd(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestEnd(api.RequestResult{StatusCode: 200, Duration: 45 * time.Millisecond})

	output := buf.String()
	if !strings.Contains(output, "<- 200 (45ms)") {
		t.Errorf("expected status and duration, got: %s", output)
	}
}

func TestTraceWriter_WriteRequestEnd_Error(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestEnd(api.RequestResult{Err: errors.New("connection refused")})

	output := buf.String()
	if !strings.Contains(output, "<- ERROR: connection refused") {
		t.Errorf("expected error line, got: %s", output)
	}
}

func TestTraceWriter_Refresh(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRefreshStart()
	w.WriteRefreshEnd(nil, 12*time.Millisecond)
	w.WriteRefreshEnd(errors.New("Session expired"), 0)
	w.WriteAuthRetry("wp/config")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), lines)
	}
	for i, want := range []string{"Refreshing session", "Session refreshed (12ms)", "Refresh failed: Session expired", "RETRY wp/config"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d: expected %q, got %q", i, want, lines[i])
		}
	}
}

func TestTraceWriter_RedactsSensitiveParams(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestStart(api.RequestInfo{Method: "GET", URL: "https://api.example.com/wp/auth/callback?code=abc&state=xyz&page=2&refreshToken=r1"})

	output := buf.String()
	for _, secret := range []string{"abc", "xyz", "r1"} {
		if strings.Contains(output, secret) {
			t.Errorf("expected %q to be redacted, got: %s", secret, output)
		}
	}
	if !strings.Contains(output, "page=2") {
		t.Errorf("expected non-sensitive param kept, got: %s", output)
	}
}

func TestScrubURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com/auth/me", "https://api.example.com/auth/me"},
		{"/wp/site-url?token=abc", "/wp/site-url?token=%5BREDACTED%5D"},
		{"https://x.test/?Password=hunter2", "https://x.test/?Password=%5BREDACTED%5D"},
		{"://bad", "[unparseable URL]"},
	}
	for _, tt := range tests {
		if got := scrubURL(tt.in); got != tt.want {
			t.Errorf("scrubURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTraceWriter_Reset(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRefreshStart()
	firstOutput := buf.String()

	time.Sleep(50 * time.Millisecond)
	buf.Reset()
	w.Reset()

	w.WriteRefreshStart()
	secondOutput := buf.String()

	if !strings.HasPrefix(firstOutput, "[0.0") {
		t.Errorf("first output should start with near-zero timestamp: %s", firstOutput)
	}
	if !strings.HasPrefix(secondOutput, "[0.0") {
		t.Errorf("second output after reset should start with near-zero timestamp: %s", secondOutput)
	}
}
