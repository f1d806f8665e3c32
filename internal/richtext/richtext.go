// Package richtext converts generated post HTML into Markdown for terminal
// display.
package richtext

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
)

// rule is a single regex rewrite applied by HTMLToMarkdown, in order.
type rule struct {
	re   *regexp.Regexp
	repl string
}

var (
	reHeading    = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	reBlockquote = regexp.MustCompile(`(?is)<blockquote[^>]*>(.*?)</blockquote>`)
	rePreCode    = regexp.MustCompile(`(?is)<pre[^>]*>\s*<code([^>]*)>(.*?)</code>\s*</pre>`)
	reLang       = regexp.MustCompile(`class="language-([^"]*)"`)
	reList       = regexp.MustCompile(`(?is)<(ul|ol)[^>]*>(.*?)</(?:ul|ol)>`)
	reListItem   = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	reAnyTag     = regexp.MustCompile(`<[^>]+>`)
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)
	reHTMLTag    = regexp.MustCompile(`<[a-zA-Z][^>]*>`)
)

// inlineRules run after block elements have been rewritten.
var inlineRules = []rule{
	{regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`), "$1\n\n"},
	{regexp.MustCompile(`(?i)<br\s*/?\s*>`), "\n"},
	{regexp.MustCompile(`(?i)<hr\s*/?\s*>`), "\n---\n\n"},
	{regexp.MustCompile(`(?is)<(?:strong|b)(?:\s[^>]*)?>(.*?)</(?:strong|b)>`), "**$1**"},
	{regexp.MustCompile(`(?is)<(?:em|i)(?:\s[^>]*)?>(.*?)</(?:em|i)>`), "*$1*"},
	{regexp.MustCompile(`(?is)<code[^>]*>(.*?)</code>`), "`$1`"},
	{regexp.MustCompile(`(?is)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`), "[$2]($1)"},
	{regexp.MustCompile(`(?i)<img[^>]*src="([^"]*)"[^>]*alt="([^"]*)"[^>]*/?\s*>`), "![$2]($1)"},
	{regexp.MustCompile(`(?i)<img[^>]*alt="([^"]*)"[^>]*src="([^"]*)"[^>]*/?\s*>`), "![$1]($2)"},
	{regexp.MustCompile(`(?i)<img[^>]*src="([^"]*)"[^>]*/?\s*>`), "![]($1)"},
	{regexp.MustCompile(`(?is)<(?:del|s|strike)(?:\s[^>]*)?>(.*?)</(?:del|s|strike)>`), "~~$1~~"},
}

var entities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

// HTMLToMarkdown converts post HTML to Markdown. Unknown tags are stripped.
func HTMLToMarkdown(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}

	html = reHeading.ReplaceAllStringFunc(html, func(s string) string {
		m := reHeading.FindStringSubmatch(s)
		level, _ := strconv.Atoi(m[1])
		return strings.Repeat("#", level) + " " + strings.TrimSpace(m[2]) + "\n\n"
	})

	html = reBlockquote.ReplaceAllStringFunc(html, func(s string) string {
		m := reBlockquote.FindStringSubmatch(s)
		lines := strings.Split(strings.TrimSpace(m[1]), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n") + "\n\n"
	})

	html = rePreCode.ReplaceAllStringFunc(html, func(s string) string {
		m := rePreCode.FindStringSubmatch(s)
		lang := ""
		if lm := reLang.FindStringSubmatch(m[1]); lm != nil {
			lang = lm[1]
		}
		return "```" + lang + "\n" + entities.Replace(m[2]) + "\n```\n\n"
	})

	html = reList.ReplaceAllStringFunc(html, func(s string) string {
		m := reList.FindStringSubmatch(s)
		ordered := strings.EqualFold(m[1], "ol")
		items := reListItem.FindAllStringSubmatch(m[2], -1)
		out := make([]string, 0, len(items))
		for i, item := range items {
			marker := "- "
			if ordered {
				marker = strconv.Itoa(i+1) + ". "
			}
			out = append(out, marker+strings.TrimSpace(item[1]))
		}
		return strings.Join(out, "\n") + "\n\n"
	})

	for _, r := range inlineRules {
		html = r.re.ReplaceAllString(html, r.repl)
	}

	html = reAnyTag.ReplaceAllString(html, "")
	html = entities.Replace(html)
	html = reBlankRuns.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}

// IsHTML reports whether s contains at least one HTML tag.
func IsHTML(s string) bool {
	return reHTMLTag.MatchString(s)
}

// RenderMarkdown renders Markdown for the terminal, wrapping at width.
func RenderMarkdown(md string, width int) (string, error) {
	if md == "" {
		return "", nil
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	out, err := r.Render(md)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
