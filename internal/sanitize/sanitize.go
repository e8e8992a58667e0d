// Package sanitize strips personal data from queries before they are
// searched. Sensitive context fields move to a private layer that never
// leaves the caller; free text has known PII patterns redacted.
package sanitize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type piiPattern struct {
	name string
	re   *regexp.Regexp
}

// Patterns run in order; SSNs must be redacted before the looser phone
// pattern can claim them.
var piiPatterns = []piiPattern{
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"email", regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)},
	{"address", regexp.MustCompile(`(?i)\b\d+\s+[A-Z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b`)},
}

var sensitiveKeywords = []string{
	"name", "ssn", "social_security", "email", "phone", "address",
	"exact_income", "salary", "account", "password", "dob",
	"birth_date", "credit_card", "bank",
}

type bracket struct {
	upper float64
	label string
}

var incomeBrackets = []bracket{
	{30000, "0-30k"},
	{50000, "30k-50k"},
	{80000, "50k-80k"},
	{100000, "80k-100k"},
	{150000, "100k-150k"},
	{250000, "150k-250k"},
}

// Summary reports what sanitization changed, for display.
type Summary struct {
	FieldsRemoved    []string `json:"fields_removed"`
	FieldsAnonymized []string `json:"fields_anonymized"`
	PIIProtected     bool     `json:"pii_protected"`
}

// Result is a query split into what may be sent and what stays local.
type Result struct {
	Text    string         `json:"query"`
	Public  map[string]any `json:"public"`
	Private map[string]any `json:"-"`
	Summary Summary        `json:"summary"`
}

// RedactText replaces SSNs, email addresses, phone numbers and street
// addresses in s with [REDACTED_<TYPE>] markers.
func RedactText(s string) string {
	for _, p := range piiPatterns {
		s = p.re.ReplaceAllString(s, "[REDACTED_"+strings.ToUpper(p.name)+"]")
	}
	return s
}

// IsSensitiveField reports whether a context key names personal data.
func IsSensitiveField(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IncomeBracket maps an exact income to a coarse range label.
func IncomeBracket(income float64) string {
	for _, b := range incomeBrackets {
		if income < b.upper {
			return b.label
		}
	}
	return "250k+"
}

// Context splits ctx into public and private layers. Sensitive fields are
// copied to the private layer; numeric income and salary fields stay public
// as a bracket label, everything else sensitive is dropped from the public
// layer. Non-sensitive fields pass through unchanged.
func Context(ctx map[string]any) (public, private map[string]any) {
	public = make(map[string]any, len(ctx))
	private = make(map[string]any)
	for k, v := range ctx {
		if !IsSensitiveField(k) {
			public[k] = v
			continue
		}
		private[k] = v
		if anon, ok := anonymize(k, v); ok {
			public[k] = anon
		}
	}
	return public, private
}

func anonymize(key string, v any) (string, bool) {
	lower := strings.ToLower(key)
	if !strings.Contains(lower, "income") && !strings.Contains(lower, "salary") {
		return "", false
	}
	n, ok := toFloat(v)
	if !ok {
		return "", false
	}
	return IncomeBracket(n), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Query sanitizes free text and its context together.
func Query(text string, ctx map[string]any) Result {
	public, private := Context(ctx)
	return Result{
		Text:    RedactText(text),
		Public:  public,
		Private: private,
		Summary: Summarize(ctx, public),
	}
}

// Summarize lists the fields that were removed from or rewritten in the
// public layer, sorted by key.
func Summarize(raw, public map[string]any) Summary {
	s := Summary{
		FieldsRemoved:    []string{},
		FieldsAnonymized: []string{},
		PIIProtected:     true,
	}
	for k, v := range raw {
		pv, ok := public[k]
		switch {
		case !ok:
			s.FieldsRemoved = append(s.FieldsRemoved, k)
		case fmt.Sprint(pv) != fmt.Sprint(v):
			s.FieldsAnonymized = append(s.FieldsAnonymized, k)
		}
	}
	sort.Strings(s.FieldsRemoved)
	sort.Strings(s.FieldsAnonymized)
	return s
}
