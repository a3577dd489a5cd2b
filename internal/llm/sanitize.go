package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"healthdoc/internal/common"
)

const (
	snippetLen   = 500
	windowRadius = 50
)

// Control characters that are never valid inside a JSON document. The
// printable escapes (\n, \r, \t) are left alone.
var reControl = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

// Sanitize strips invalid control characters and repairs the escaping
// mistakes models commonly make (over-escaped quotes, stray backslashes).
// The repairs run to a fixpoint, so Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	out := reControl.ReplaceAllString(s, "")
	for i := 0; i < 32; i++ {
		next := strings.ReplaceAll(out, `\"`, `"`)
		next = strings.ReplaceAll(next, `\\`, `\`)
		if next == out {
			break
		}
		out = next
	}
	return out
}

// MalformedResponseError reports model output that failed to parse even
// after sanitization. Snippet and Window carry diagnostics for logs; the
// error matches common.ErrMalformedResponse under errors.Is.
type MalformedResponseError struct {
	Snippet string
	Window  string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v (near %q)", e.Err, e.Window)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool {
	return target == common.ErrMalformedResponse
}

// ParseOrFail decodes raw into v. On a parse failure it sanitizes the text
// and retries once; a second failure yields a *MalformedResponseError.
// It never panics, whatever the input.
func ParseOrFail(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	cleaned := Sanitize(raw)
	err := json.Unmarshal([]byte(cleaned), v)
	if err == nil {
		return nil
	}
	return &MalformedResponseError{
		Snippet: head(raw, snippetLen),
		Window:  window(cleaned, offsetOf(err)),
		Err:     err,
	}
}

func offsetOf(err error) int {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return int(syn.Offset)
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return int(typ.Offset)
	}
	return 0
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func window(s string, off int) string {
	lo := max(0, off-windowRadius)
	hi := min(len(s), off+windowRadius)
	if lo >= hi {
		return ""
	}
	return s[lo:hi]
}
