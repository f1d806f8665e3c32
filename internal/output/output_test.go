package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/auth"
)

// =============================================================================
// Exit Codes Tests
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{CodeUsage, ExitUsage},
		{CodeNotFound, ExitNotFound},
		{CodeAuth, ExitAuth},
		{CodeForbidden, ExitForbidden},
		{CodeRateLimit, ExitRateLimit},
		{CodeNetwork, ExitNetwork},
		{CodeAPI, ExitAPI},
		{CodeDecoding, ExitDecoding},
		{"unknown_code", ExitAPI},
		{"", ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ExitCodeFor(tt.code); got != tt.expected {
				t.Errorf("ExitCodeFor(%q) = %d, want %d", tt.code, got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func TestAsErrorMapsAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		message  string
		exitCode int
	}{
		{"transport", api.ErrTransport(errors.New("connection refused")), CodeNetwork, "Network error", ExitNetwork},
		{"invalid response", api.ErrInvalidResponse(errors.New("malformed HTTP response")), CodeAPI, "Invalid server response", ExitAPI},
		{"decoding", api.ErrDecoding(errors.New("unexpected EOF")), CodeDecoding, "Unable to read server response", ExitDecoding},
		{"unauthorized", api.ErrServer(401, "Invalid email or password"), CodeAuth, "Invalid email or password", ExitAuth},
		{"forbidden", api.ErrServer(403, ""), CodeForbidden, "Request failed with status code 403", ExitForbidden},
		{"not found", api.ErrServer(404, "No such thing"), CodeNotFound, "No such thing", ExitNotFound},
		{"rate limited", api.ErrServer(429, "Slow down"), CodeRateLimit, "Slow down", ExitRateLimit},
		{"validation", api.ErrServer(422, "email: already taken"), CodeAPI, "email: already taken", ExitAPI},
		{"wrapped", fmt.Errorf("loading config: %w", api.ErrServer(500, "Boom")), CodeAPI, "Boom", ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := AsError(tt.err)
			if e.Code != tt.code {
				t.Errorf("Code = %q, want %q", e.Code, tt.code)
			}
			if e.Message != tt.message {
				t.Errorf("Message = %q, want %q", e.Message, tt.message)
			}
			if e.ExitCode() != tt.exitCode {
				t.Errorf("ExitCode() = %d, want %d", e.ExitCode(), tt.exitCode)
			}
			if !errors.Is(e, tt.err) && e.Cause != tt.err {
				t.Errorf("Cause does not preserve original error")
			}
		})
	}
}

func TestAsErrorTransportHintCarriesCause(t *testing.T) {
	e := AsError(api.ErrTransport(errors.New("dial tcp: connection refused")))
	if e.Hint != "dial tcp: connection refused" {
		t.Errorf("Hint = %q", e.Hint)
	}
}

func TestAsErrorKeepsHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		code   string
		hint   string
	}{
		{401, CodeAuth, loginHint},
		{404, CodeNotFound, ""},
		{422, CodeAPI, ""},
		{500, CodeAPI, ""},
	}

	for _, tt := range tests {
		e := AsError(api.ErrServer(tt.status, "nope"))
		if e.Code != tt.code || e.HTTPStatus != tt.status || e.Hint != tt.hint {
			t.Errorf("status %d: got code=%q http=%d hint=%q", tt.status, e.Code, e.HTTPStatus, e.Hint)
		}
	}
}

func TestAsErrorNotAuthenticated(t *testing.T) {
	e := AsError(fmt.Errorf("loading user: %w", auth.ErrNotAuthenticated))
	if e.Code != CodeAuth {
		t.Errorf("Code = %q, want %q", e.Code, CodeAuth)
	}
	if e.Hint != loginHint {
		t.Errorf("Hint = %q, want %q", e.Hint, loginHint)
	}
}

func TestAsErrorPassesThroughOutputError(t *testing.T) {
	orig := ErrUsageHint("bad flag", "see --help")
	if got := AsError(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("AsError did not return the wrapped *Error")
	}
}

func TestAsErrorGeneric(t *testing.T) {
	e := AsError(errors.New("something odd"))
	if e.Code != CodeAPI || e.Message != "something odd" {
		t.Errorf("got %+v", e)
	}
}

func TestErrorString(t *testing.T) {
	if got := ErrUsage("bad").Error(); got != "bad" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrAuth("Session expired").Error(); got != "Session expired: "+loginHint {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrNotFound("No such site").Error(); got != "No such site" {
		t.Errorf("Error() = %q", got)
	}
}

// =============================================================================
// Envelope Tests
// =============================================================================

func TestWriterJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	err := w.OK(map[string]any{"email": "a@example.com"},
		WithSummary("Logged in"),
		WithBreadcrumbs(Breadcrumb{Action: "status", Cmd: "gptkit auth status", Description: "Show session"}),
		WithMeta("state", "authenticated"),
	)
	if err != nil {
		t.Fatalf("OK: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if !resp.OK || resp.Summary != "Logged in" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if len(resp.Breadcrumbs) != 1 || resp.Breadcrumbs[0].Cmd != "gptkit auth status" {
		t.Errorf("breadcrumbs = %+v", resp.Breadcrumbs)
	}
	if resp.Meta["state"] != "authenticated" {
		t.Errorf("meta = %+v", resp.Meta)
	}
}

func TestWriterJSONOmitsDocument(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	if err := w.OK(map[string]any{"id": "1"}, WithDocument("# Heading")); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Heading") {
		t.Errorf("document leaked into JSON: %s", buf.String())
	}
}

func TestWriterErrEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	if err := w.Err(api.ErrServer(401, "Session expired")); err != nil {
		t.Fatal(err)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.OK {
		t.Error("ok should be false")
	}
	if resp.Code != CodeAuth || resp.Error != "Session expired" || resp.Hint != loginHint {
		t.Errorf("unexpected error envelope: %+v", resp)
	}
}

func TestWriterQuietEmitsDataOnly(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf})

	if err := w.OK(map[string]any{"siteUrl": "https://blog.example.com"}, WithSummary("ignored")); err != nil {
		t.Fatal(err)
	}
	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if data["siteUrl"] != "https://blog.example.com" {
		t.Errorf("data = %+v", data)
	}
	if _, ok := data["ok"]; ok {
		t.Error("quiet output should not include the envelope")
	}
}

func TestEffectiveFormatNonTTYIsJSON(t *testing.T) {
	w := New(Options{Format: FormatAuto, Writer: &bytes.Buffer{}})
	if got := w.EffectiveFormat(); got != FormatJSON {
		t.Errorf("EffectiveFormat() = %v, want FormatJSON", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatAuto,
		"auto":     FormatAuto,
		"json":     FormatJSON,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"styled":   FormatStyled,
		"quiet":    FormatQuiet,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

// =============================================================================
// JQ Tests
// =============================================================================

func TestWriterJQFilter(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf, JQ: ".data.email"})

	if err := w.OK(map[string]any{"email": "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "a@example.com" {
		t.Errorf("jq output = %q", got)
	}
}

func TestWriterJQFilterStructured(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf, JQ: "[.[] | .name]"})

	data := []map[string]any{{"name": "a"}, {"name": "b"}}
	if err := w.OK(data); err != nil {
		t.Fatal(err)
	}
	var got []string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v (%s)", err, buf.String())
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}
}

func TestWriterJQSkipsErrors(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf, JQ: ".data"})

	if err := w.Err(ErrUsage("bad")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"code": "usage"`) {
		t.Errorf("error envelope should bypass jq: %s", buf.String())
	}
}

func TestValidateJQ(t *testing.T) {
	if err := ValidateJQ(".data | length"); err != nil {
		t.Errorf("valid query rejected: %v", err)
	}
	err := ValidateJQ(".data[")
	if err == nil {
		t.Fatal("invalid query accepted")
	}
	if AsError(err).Code != CodeUsage {
		t.Errorf("invalid jq should be a usage error, got %q", AsError(err).Code)
	}
}

// =============================================================================
// Locale Tests
// =============================================================================

func TestLocaleFormatNumber(t *testing.T) {
	tests := []struct {
		locale string
		in     float64
		want   string
	}{
		{"", 1234567, "1,234,567"},
		{"en_US.UTF-8", 1234.5, "1,234.5"},
		{"de_DE.UTF-8", 1234567, "1.234.567"},
		{"C", 42, "42"},
		{"garbage!!", 1000, "1,000"},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			if got := NewLocale(tt.locale).FormatNumber(tt.in); got != tt.want {
				t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_NUMERIC", "de_DE.UTF-8")
	t.Setenv("LANG", "en_US.UTF-8")
	if got := DetectLocale().FormatInt(1000); got != "1.000" {
		t.Errorf("FormatInt = %q, want 1.000", got)
	}
}

func TestFormatStats(t *testing.T) {
	stats := map[string]any{
		"requests":     3,
		"refreshes":    1,
		"auth_retries": 0,
		"latency_ms":   int64(1250),
	}
	got := strings.Join(FormatStats(stats, NewLocale("")), " | ")
	want := "3 requests | 1 refresh | 1,250ms"
	if got != want {
		t.Errorf("FormatStats = %q, want %q", got, want)
	}
	if FormatStats(nil, NewLocale("")) != nil {
		t.Error("empty stats should produce nothing")
	}
}

// =============================================================================
// Markdown Rendering Tests
// =============================================================================

func TestMarkdownRendersObject(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf})

	err := w.OK(map[string]any{"email": "a@example.com", "name": "Ada"},
		WithSummary("Current user"),
		WithBreadcrumbs(Breadcrumb{Cmd: "gptkit auth logout", Description: "End session"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"## Current user",
		"- **Name:** Ada",
		"- **Email:** a@example.com",
		"### Next",
		"- `gptkit auth logout`: End session",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "Name") > strings.Index(out, "Email") {
		t.Error("name should sort before email")
	}
}

func TestMarkdownRendersTable(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf})

	type row struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := w.OK([]row{{"1", "First | post"}, {"2", "Second"}}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "| Id | Title |") {
		t.Errorf("missing header row:\n%s", out)
	}
	if !strings.Contains(out, `First \| post`) {
		t.Errorf("pipes should be escaped:\n%s", out)
	}
}

func TestMarkdownRendersDocument(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf})

	if err := w.OK(map[string]any{"htmlContent": "<h1>T</h1>"}, WithDocument("# T\n\nBody")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "# T\n\nBody") {
		t.Errorf("document not rendered:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "htmlContent") {
		t.Errorf("data should be replaced by document:\n%s", buf.String())
	}
}

func TestMarkdownRendersError(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf})

	if err := w.Err(ErrAuth("Session expired")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "**Error:** Session expired") || !strings.Contains(out, "*Hint: "+loginHint+"*") {
		t.Errorf("unexpected error markdown:\n%s", out)
	}
}

func TestMarkdownRendersStats(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf, Locale: NewLocale("de_DE")})

	err := w.OK("done", WithMeta("stats", map[string]any{"requests": 1200}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "*Stats: 1.200 requests*") {
		t.Errorf("stats not localized:\n%s", buf.String())
	}
}

// =============================================================================
// Styled Rendering Tests
// =============================================================================

func TestStyledRendersWithoutColorUnderNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	err := w.OK([]map[string]any{{"id": "1", "name": "Ada"}}, WithSummary("Users"))
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("NO_COLOR output contains ANSI escapes: %q", out)
	}
	for _, want := range []string{"Users", "Id", "Name", "Ada"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestStyledRendersEmptyList(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	if err := w.OK([]map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestStyledRendersError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	if err := w.Err(api.ErrTransport(errors.New("no route to host"))); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Error: Network error") || !strings.Contains(out, "Hint: no route to host") {
		t.Errorf("unexpected styled error:\n%s", out)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestFormatHeader(t *testing.T) {
	tests := map[string]string{
		"siteUrl":      "Site Url",
		"site_url":     "Site Url",
		"wpAuthStatus": "Wp Auth Status",
		"id":           "Id",
	}
	for in, want := range tests {
		if got := formatHeader(in); got != want {
			t.Errorf("formatHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{true, "yes"},
		{false, "no"},
		{float64(42), "42"},
		{1.5, "1.5"},
		{[]any{"a", "b"}, "a, b"},
		{map[string]any{"name": "Ada", "id": "1"}, "Ada"},
	}
	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Errorf("formatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDataStructs(t *testing.T) {
	type item struct {
		Name string `json:"name"`
	}
	got, ok := NormalizeData([]item{{"a"}}).([]map[string]any)
	if !ok || len(got) != 1 || got[0]["name"] != "a" {
		t.Errorf("NormalizeData slice = %#v", got)
	}
	obj, ok := NormalizeData(item{"b"}).(map[string]any)
	if !ok || obj["name"] != "b" {
		t.Errorf("NormalizeData struct = %#v", obj)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("line one\nline two", 8); got != "line on…" {
		t.Errorf("got %q", got)
	}
}
