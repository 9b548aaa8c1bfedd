// Package extract recovers a name -> delta mapping from free-form model text.
//
// The model is asked for a bare JSON object but may wrap it in a markdown
// fence or surround it with prose. Extraction is a best-effort salvage: take
// the span from the first '{' to the last '}' and parse it as a JSON object.
// When that span is not valid, the first balanced object is tried instead.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Deltas is the parsed mapping keyed by case-folded name. Values are kept as
// decoded (json.Number, string, bool, nil, or composite) and coerced later.
type Deltas struct {
	values map[string]any

	// Collisions lists original keys dropped because an earlier key folded
	// to the same name.
	Collisions []string
}

// Fold normalises a name for matching. Only case is folded.
func Fold(name string) string {
	return strings.ToLower(name)
}

// Lookup returns the raw value for name, matched case-insensitively.
func (d Deltas) Lookup(name string) (any, bool) {
	v, ok := d.values[Fold(name)]
	return v, ok
}

// Len reports the number of distinct folded keys.
func (d Deltas) Len() int { return len(d.values) }

// Extract parses raw into Deltas. It fails with *Error (matching
// ErrExtraction) when no object can be recovered; it never returns an empty
// mapping in place of a failure.
func Extract(raw string) (Deltas, error) {
	if strings.TrimSpace(raw) == "" {
		return Deltas{}, &Error{Reason: ReasonEmpty, Raw: raw}
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end < start {
		return Deltas{}, &Error{Reason: ReasonNoObject, Raw: raw}
	}

	d, err := parseObject(raw[start : end+1])
	if err == nil {
		return d, nil
	}
	if span, ok := balancedObject(raw[start:]); ok && len(span) < end+1-start {
		if d, err2 := parseObject(span); err2 == nil {
			return d, nil
		}
	}
	return Deltas{}, &Error{Reason: ReasonInvalidJSON, Raw: raw, Err: err}
}

// parseObject decodes exactly one JSON object, preserving key order so that
// the first of several case-colliding keys wins.
func parseObject(span string) (Deltas, error) {
	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Deltas{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Deltas{}, fmt.Errorf("expected object, got %v", tok)
	}

	d := Deltas{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Deltas{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Deltas{}, fmt.Errorf("expected string key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return Deltas{}, fmt.Errorf("value for %q: %w", key, err)
		}

		folded := Fold(key)
		if _, dup := d.values[folded]; dup {
			d.Collisions = append(d.Collisions, key)
			continue
		}
		d.values[folded] = v
	}

	if _, err := dec.Token(); err != nil {
		return Deltas{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Deltas{}, errors.New("unexpected content after object")
	}
	return d, nil
}

// balancedObject returns the first brace-balanced span of s, ignoring braces
// inside JSON strings. s must start with '{'.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// Truncate shortens s to at most n bytes for log lines without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
