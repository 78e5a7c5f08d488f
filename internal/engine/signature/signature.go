// Package signature collapses variable log text into a stable fingerprint.
// Messages that differ only in volatile tokens (numbers, UUIDs, timestamps,
// IPs, emails, URLs, file paths) map to the same signature, which is what
// lets the rest of the system reason about patterns instead of raw lines.
package signature

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/winnow/internal/model"
)

// Placeholders substituted for volatile tokens during normalization.
const (
	phUUID  = "<uuid>"
	phTime  = "<ts>"
	phIP    = "<ip>"
	phEmail = "<email>"
	phURL   = "<url>"
	phPath  = "<path>"
	phNum   = "<n>"

	// emptyTemplate is hashed for blank messages so they still get a
	// well-defined signature instead of an error.
	emptyTemplate = "<empty>"
)

// Replacement order matters: specific shapes first, bare numbers last, so a
// UUID is not shredded into digit runs before its own rule can see it.
var replacements = []struct {
	re *regexp.Regexp
	ph string
}{
	{regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), phUUID},
	{regexp.MustCompile(`\b[0-9a-f]{32}\b`), phUUID},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:z|[+-]\d{2}:?\d{2})?`), phTime},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), phTime},
	{regexp.MustCompile(`\d{2}:\d{2}:\d{2}(?:\.\d+)?`), phTime},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), phIP},
	{regexp.MustCompile(`\b(?:[0-9a-f]{1,4}:){2,7}[0-9a-f]{1,4}\b`), phIP},
	{regexp.MustCompile(`\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`), phEmail},
	{regexp.MustCompile(`https?://[^\s]+`), phURL},
	{regexp.MustCompile(`\b[a-z]:\\[^\s]+`), phPath},
	{regexp.MustCompile(`(?:/[^\s/]+){2,}/?`), phPath},
	// No boundary guards: "job 42", "18ms" and "worker-3" all carry noise
	// digits. Placeholders contain no digits, so earlier rules are safe.
	{regexp.MustCompile(`\d+(?:\.\d+)?`), phNum},
}

var whitespace = regexp.MustCompile(`\s+`)

// Signature is the fingerprint of one log pattern.
type Signature struct {
	Value      string // 16 lowercase hex chars (xxhash64)
	Normalized string // the template text that was hashed
}

// Compute derives the signature of a log message. Pure and deterministic:
// the same message always yields the same signature, and two calls never
// observe shared state.
func Compute(message string) Signature {
	normalized := Normalize(message)
	return Signature{Value: hash(normalized), Normalized: normalized}
}

// ComputeWithSeverity folds the severity into the hash, for callers that
// want severity-specific pattern buckets. The normalized template is the
// same as Compute's; only the hash differs.
func ComputeWithSeverity(message string, severity model.Severity) Signature {
	normalized := Normalize(message)
	return Signature{
		Value:      hash(normalized + "|" + severity.String()),
		Normalized: normalized,
	}
}

// Normalize reduces a message to its pattern template: folded to lowercase
// ASCII-ish text with every volatile token replaced by a placeholder and
// whitespace collapsed. Blank input becomes the dedicated empty template.
func Normalize(message string) string {
	s := strings.TrimSpace(message)
	if s == "" {
		return emptyTemplate
	}
	s = foldCase(s)
	for _, r := range replacements {
		s = r.re.ReplaceAllString(s, r.ph)
	}
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// foldCase lowercases and strips combining diacritical marks after NFD
// normalization, so "Café" and "cafe" produce the same template.
func foldCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hash(normalized string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}
