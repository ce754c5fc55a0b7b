// Package sanitize scrubs secrets from text before it is stored or shipped
// anywhere. Every tailer runs its extracted text through Clean; an empty
// result means the event is dropped.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxTextLen bounds the length of any sanitized message, in runes.
const MaxTextLen = 4000

type replacement struct {
	re   *regexp.Regexp
	repl string
}

// Redactions are applied in order. The capture-group patterns keep the key
// portion visible so redacted commands stay recognizable in artifacts.
var replacements = []replacement{
	{regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)([^\s"']+)`), "${1}***"},
	{regexp.MustCompile(`(?i)(token\s*[=:]\s*)([^\s"']+)`), "${1}***"},
	{regexp.MustCompile(`(?i)(password\s*[=:]\s*)([^\s"']+)`), "${1}***"},
	{regexp.MustCompile(`(?i)(--api-key\s+)(\S+)`), "${1}***"},
	{regexp.MustCompile(`(?i)(--token\s+)(\S+)`), "${1}***"},
	{regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{16,})\b`), "sk-***"},
}

// Clean trims whitespace, redacts secret-bearing patterns, and caps the
// result at MaxTextLen runes. It never fails; the result may be empty.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	out := strings.TrimSpace(text)
	for _, r := range replacements {
		out = r.re.ReplaceAllString(out, r.repl)
	}
	if runes := []rune(out); len(runes) > MaxTextLen {
		// The cut may land on whitespace; trim again so a second pass
		// leaves the result unchanged.
		out = strings.TrimSpace(string(runes[:MaxTextLen]))
	}
	return out
}

// Truncate caps s at n runes without any redaction. Used for per-message
// limits in artifact bodies where the text has already been cleaned.
func Truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}
