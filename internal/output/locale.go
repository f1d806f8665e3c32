package output

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale formats numbers using the user's grouping and decimal conventions.
type Locale struct {
	tag     language.Tag
	printer *message.Printer
}

// DetectLocale resolves the user's locale from LC_ALL, LC_NUMERIC or LANG.
// Falls back to en-US if nothing is set or parseable.
func DetectLocale() Locale {
	for _, env := range []string{"LC_ALL", "LC_NUMERIC", "LANG"} {
		if raw := os.Getenv(env); raw != "" {
			return NewLocale(raw)
		}
	}
	return NewLocale("")
}

// NewLocale creates a Locale from a POSIX locale string (e.g. "de_DE.UTF-8")
// or BCP 47 tag (e.g. "de-DE"). Returns en-US for empty or unparseable input.
func NewLocale(raw string) Locale {
	if idx := strings.IndexByte(raw, '.'); idx != -1 {
		raw = raw[:idx]
	}
	raw = strings.ReplaceAll(raw, "_", "-")

	tag, _ := language.Parse(raw)
	if tag == language.Und || raw == "C" || raw == "POSIX" {
		tag = language.AmericanEnglish
	}
	return Locale{tag: tag, printer: message.NewPrinter(tag)}
}

// Tag returns the resolved language tag.
func (l Locale) Tag() language.Tag {
	return l.tag
}

// FormatNumber formats v with locale grouping; fractions keep at most two digits.
func (l Locale) FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return l.printer.Sprint(number.Decimal(int64(v)))
	}
	return l.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// FormatInt formats n with locale grouping.
func (l Locale) FormatInt(n int64) string {
	return l.printer.Sprint(number.Decimal(n))
}
