// Package sanitize cleans free-text user input and enforces byte ceilings.
//
// Sanitize never fails: known-dangerous fragments are removed and the
// remaining HTML metacharacters are escaped. Size checks count UTF-8 bytes.
package sanitize

import (
	"regexp"
	"strings"
)

// DefaultMaxBytes is the default ceiling for a single text value.
const DefaultMaxBytes = 10 * 1024 * 1024

// DefaultPatterns are removed case-insensitively, in order.
var DefaultPatterns = []string{
	`(?s)<script[^>]*>.*?</script>`, // XSS
	`javascript:`,                   // XSS
	`on\w+\s*=`,                     // XSS event handlers
	`union\s+select`,                // SQL injection
	`drop\s+table`,
	`insert\s+into`,
	`delete\s+from`,
	`\.\./\.\.`, // Path traversal
	`eval\s*\(`, // Code injection
	`exec\s*\(`,
}

// escaper leaves '&' alone so already-escaped entities are not doubled.
var escaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitizer is stateless after construction and safe for concurrent use.
type Sanitizer struct {
	patterns []*regexp.Regexp
	maxBytes int
}

// New compiles patterns case-insensitively. A nil slice selects
// DefaultPatterns; maxBytes <= 0 selects DefaultMaxBytes.
func New(patterns []string, maxBytes int) (*Sanitizer, error) {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	s := &Sanitizer{maxBytes: maxBytes}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Default returns a Sanitizer with the built-in pattern list.
func Default() *Sanitizer {
	s, err := New(nil, DefaultMaxBytes)
	if err != nil {
		panic(err)
	}
	return s
}

// Sanitize removes every pattern match, then escapes < > " and '. Removal
// repeats until a full pass changes nothing, so fragments nested inside one
// another cannot reassemble a pattern.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	for {
		before := text
		for _, re := range s.patterns {
			text = re.ReplaceAllString(text, "")
		}
		// Every match is non-empty, so each changing pass shrinks text.
		if text == before {
			break
		}
	}
	return escaper.Replace(text)
}

// SanitizeOptional sanitizes a value that may be absent.
func (s *Sanitizer) SanitizeOptional(text *string) *string {
	if text == nil {
		return nil
	}
	out := s.Sanitize(*text)
	return &out
}

// ValidateSize reports whether text fits the configured ceiling.
func (s *Sanitizer) ValidateSize(text string) bool {
	return len(text) <= s.maxBytes
}

// ValidateSizeLimit reports whether text fits limit bytes.
func (s *Sanitizer) ValidateSizeLimit(text string, limit int) bool {
	return len(text) <= limit
}

func (s *Sanitizer) MaxBytes() int {
	return s.maxBytes
}
