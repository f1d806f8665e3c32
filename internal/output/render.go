package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/muesli/termenv"

	"github.com/gptkit/gptkit-cli/internal/richtext"
)

// Palette used for styled output.
var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorMuted   = lipgloss.Color("#6C6C6C")
	colorText    = lipgloss.Color("#E4E4E4")
	colorError   = lipgloss.Color("#FF5F87")
	colorSuccess = lipgloss.Color("#5FD787")
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool
	locale Locale

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Success lipgloss.Style
	Header  lipgloss.Style
	Key     lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true. NO_COLOR disables it regardless.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	// lipgloss.NewRenderer does not carry the profile through in this
	// version, so the global profile is set instead.
	if styled {
		lipgloss.SetColorProfile(termenv.TrueColor)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	r := &Renderer{width: width, styled: styled, locale: NewLocale("")}
	if !styled {
		plain := lipgloss.NewStyle()
		r.Summary, r.Muted, r.Data, r.Error, r.Hint, r.Success, r.Header, r.Key =
			plain, plain, plain, plain, plain, plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(colorMuted)
	r.Data = lipgloss.NewStyle().Foreground(colorText)
	r.Error = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	r.Success = lipgloss.NewStyle().Foreground(colorSuccess)
	r.Header = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	r.Key = lipgloss.NewStyle().Foreground(colorMuted)
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80

	if f, ok := w.(*os.File); ok {
		if w, _, err := term.GetSize(f.Fd()); err == nil && w >= 40 {
			width = w
		}
		fi, err := f.Stat()
		if err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
			isTTY = true
		}
	}
	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}

	if resp.document != "" {
		b.WriteString(r.renderDocument(resp.document))
		b.WriteString("\n")
	} else {
		r.renderData(&b, NormalizeData(resp.Data))
	}

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n")
		b.WriteString(r.Muted.Render("Next:"))
		b.WriteString("\n")
		for _, bc := range resp.Breadcrumbs {
			line := r.Muted.Render("  " + bc.Cmd)
			if bc.Description != "" {
				line += r.Muted.Render("  # " + bc.Description)
			}
			b.WriteString(line + "\n")
		}
	}

	if parts := FormatStats(extractStats(resp.Meta), r.locale); len(parts) > 0 {
		b.WriteString("\n")
		b.WriteString(r.Muted.Render("Stats: " + strings.Join(parts, " | ")))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")
	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderDocument renders Markdown through glamour, falling back to the
// literal text when styling is off or rendering fails.
func (r *Renderer) renderDocument(md string) string {
	if !r.styled {
		return md
	}
	out, err := richtext.RenderMarkdown(md, r.width)
	if err != nil {
		return md
	}
	return out
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		r.renderTable(b, d)
	case map[string]any:
		r.renderObject(b, d)
	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}
	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
	default:
		b.WriteString(r.Data.Render(formatCell(d)))
		b.WriteString("\n")
	}
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := sortedKeys(data)
	width := 0
	for _, k := range keys {
		if n := len(formatHeader(k)); n > width {
			width = n
		}
	}
	for _, k := range keys {
		label := fmt.Sprintf("%-*s", width, formatHeader(k))
		b.WriteString(r.Key.Render(label))
		b.WriteString("  ")
		b.WriteString(r.Data.Render(formatCell(data[k])))
		b.WriteString("\n")
	}
}

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	cols := detectColumns(data)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = formatHeader(c)
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header.PaddingRight(2)
			}
			return r.Data.PaddingRight(2)
		})
	for _, item := range data {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = truncate(formatCell(item[c]), 60)
		}
		t.Row(row...)
	}
	b.WriteString(t.Render())
	b.WriteString("\n")
}

// MarkdownRenderer emits literal Markdown.
type MarkdownRenderer struct {
	width  int
	locale Locale
}

// NewMarkdownRenderer creates a renderer for literal Markdown output.
func NewMarkdownRenderer(w io.Writer) *MarkdownRenderer {
	width, _ := terminalInfo(w)
	return &MarkdownRenderer{width: width, locale: NewLocale("")}
}

// RenderResponse renders a success response as literal Markdown.
func (r *MarkdownRenderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString("## " + resp.Summary + "\n\n")
	}

	if resp.document != "" {
		b.WriteString(strings.TrimSpace(resp.document) + "\n")
	} else {
		r.renderData(&b, NormalizeData(resp.Data))
	}

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n### Next\n\n")
		for _, bc := range resp.Breadcrumbs {
			line := "- `" + bc.Cmd + "`"
			if bc.Description != "" {
				line += ": " + bc.Description
			}
			b.WriteString(line + "\n")
		}
	}

	if parts := FormatStats(extractStats(resp.Meta), r.locale); len(parts) > 0 {
		b.WriteString("\n*Stats: " + strings.Join(parts, " | ") + "*\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response as literal Markdown.
func (r *MarkdownRenderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString("**Error:** " + resp.Error + "\n")
	if resp.Hint != "" {
		b.WriteString("\n*Hint: " + resp.Hint + "*\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *MarkdownRenderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString("*No results*\n")
			return
		}
		cols := detectColumns(d)
		headers := make([]string, len(cols))
		seps := make([]string, len(cols))
		for i, c := range cols {
			headers[i] = formatHeader(c)
			seps[i] = "---"
		}
		b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
		b.WriteString("| " + strings.Join(seps, " | ") + " |\n")
		for _, item := range d {
			cells := make([]string, len(cols))
			for i, c := range cols {
				cells[i] = strings.ReplaceAll(formatCell(item[c]), "|", "\\|")
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	case map[string]any:
		for _, k := range sortedKeys(d) {
			b.WriteString("- **" + formatHeader(k) + ":** " + formatCell(d[k]) + "\n")
		}
	case []any:
		if len(d) == 0 {
			b.WriteString("*No results*\n")
			return
		}
		for _, item := range d {
			b.WriteString("- " + formatCell(item) + "\n")
		}
	case nil:
		b.WriteString("*No data*\n")
	default:
		b.WriteString(formatCell(d) + "\n")
	}
}

// NormalizeData converts typed values into the map/slice shapes the
// renderers understand.
func NormalizeData(data any) any {
	switch data.(type) {
	case nil, string, []map[string]any, map[string]any, []any:
		return data
	}

	var raw []byte
	if rm, ok := data.(json.RawMessage); ok {
		raw = rm
	} else {
		b, err := json.Marshal(data)
		if err != nil {
			return data
		}
		raw = b
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return data
	}
	if list, ok := v.([]any); ok {
		maps := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return list
			}
			maps = append(maps, m)
		}
		return maps
	}
	return v
}

// columnPriority orders table columns; unknown keys sort after these.
var columnPriority = map[string]int{
	"id":           1,
	"name":         2,
	"title":        2,
	"email":        3,
	"model":        4,
	"status":       5,
	"siteUrl":      6,
	"wpAuthStatus": 7,
}

// skipColumns are too large for a table cell.
var skipColumns = map[string]bool{
	"htmlContent":  true,
	"customPrompt": true,
}

func detectColumns(data []map[string]any) []string {
	seen := map[string]bool{}
	var cols []string
	for _, item := range data {
		for k := range item {
			if !seen[k] && !skipColumns[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		pi, pj := priority(cols[i]), priority(cols[j])
		if pi != pj {
			return pi < pj
		}
		return cols[i] < cols[j]
	})
	if len(cols) > 6 {
		cols = cols[:6]
	}
	return cols
}

func priority(key string) int {
	if p, ok := columnPriority[key]; ok {
		return p
	}
	return 100
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := priority(keys[i]), priority(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// formatHeader turns "siteUrl" or "site_url" into "Site Url".
func formatHeader(key string) string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for i, c := range key {
		switch {
		case c == '_' || c == '-' || c == ' ':
			flush()
		case c >= 'A' && c <= 'Z' && i > 0:
			flush()
			cur.WriteRune(c)
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatCell(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		for _, k := range []string{"name", "title", "id"} {
			if s, ok := v[k]; ok {
				return formatCell(s)
			}
		}
		data, _ := json.Marshal(v)
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncate flattens s to one line of at most n terminal cells.
func truncate(s string, n int) string {
	return ansi.Truncate(strings.ReplaceAll(s, "\n", " "), n, "…")
}

// extractStats pulls stats from response meta if present.
func extractStats(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	stats, _ := meta["stats"].(map[string]any)
	return stats
}

// statFields lists the stats keys in display order with their labels.
var statFields = []struct {
	key, singular, plural string
}{
	{"requests", "request", "requests"},
	{"failed_requests", "failed", "failed"},
	{"refreshes", "refresh", "refreshes"},
	{"auth_retries", "retry", "retries"},
}

// FormatStats renders session stats as short locale-formatted parts.
func FormatStats(stats map[string]any, loc Locale) []string {
	if len(stats) == 0 {
		return nil
	}
	if loc.printer == nil {
		loc = NewLocale("")
	}
	var parts []string
	for _, f := range statFields {
		n, ok := toFloat(stats[f.key])
		if !ok || (n == 0 && f.key != "requests") {
			continue
		}
		label := f.plural
		if n == 1 {
			label = f.singular
		}
		parts = append(parts, loc.FormatNumber(n)+" "+label)
	}
	if ms, ok := toFloat(stats["latency_ms"]); ok {
		parts = append(parts, loc.FormatNumber(ms)+"ms")
	}
	return parts
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
