package panels

import "regexp"

// Redactor applies configured regex patterns to the message field of
// structured records only, never to the legacy token stream, per
// spec.md §4.7 item 7.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor compiles patterns, silently skipping ones that fail to
// compile (a malformed operator-supplied pattern should degrade to
// "no redaction for this pattern", not crash panel emission).
func NewRedactor(patterns []string, replacement string) *Redactor {
	r := &Redactor{replacement: replacement}
	for _, p := range patterns {
		compiled, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, compiled)
	}
	return r
}

// Redact returns message with every configured pattern's matches
// replaced. A nil Redactor (no patterns configured) is a no-op.
func (r *Redactor) Redact(message string) string {
	if r == nil {
		return message
	}
	out := message
	for _, p := range r.patterns {
		out = p.ReplaceAllString(out, r.replacement)
	}
	return out
}
