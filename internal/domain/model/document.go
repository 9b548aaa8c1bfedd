// Package model contains the roster document persisted between cycles and
// its on-disk encoding.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// On-disk keys. They match what the published front-end reads.
const (
	KeyEntities      = "celebrities"
	KeyLastRefreshed = "last_updated"

	keyName          = "name"
	keyScore         = "aura_score"
	keyPreviousScore = "previous_aura_score"
	keyTrend         = "trend_7_days"
)

const indent = "    "

// ErrMissingName is returned when an entity record has no usable name.
var ErrMissingName = errors.New("entity has no name")

// Entity is one tracked subject.
type Entity struct {
	// Name is the join key against model output and is never rewritten.
	Name string
	// Score is the current value.
	Score float64
	// PreviousScore is the score before the most recent cycle. Nil when the
	// record has never been updated.
	PreviousScore *float64
	// Trend holds recent scores, oldest first. Nil means the record has no
	// trend yet, which is distinct from an empty one.
	Trend []float64
	// Extra keeps fields this process does not own so they round-trip.
	Extra map[string]json.RawMessage

	order []string // key order as read from disk
}

// listForm records how the entity list appeared on disk when it was empty.
type listForm int

const (
	listPresent listForm = iota
	listAbsent
	listNull
)

// Document is the full roster file.
type Document struct {
	Entities      []Entity
	LastRefreshed string
	// Extra keeps top-level fields this process does not own.
	Extra map[string]json.RawMessage

	order    []string
	listForm listForm
}

// Names returns entity names in document order.
func (d *Document) Names() []string {
	names := make([]string, len(d.Entities))
	for i := range d.Entities {
		names[i] = d.Entities[i].Name
	}
	return names
}

// DuplicateNames reports names that occur more than once, in first-seen order.
func (d *Document) DuplicateNames() []string {
	seen := make(map[string]int, len(d.Entities))
	var dups []string
	for _, e := range d.Entities {
		seen[e.Name]++
		if seen[e.Name] == 2 {
			dups = append(dups, e.Name)
		}
	}
	return dups
}

// UnmarshalJSON decodes an entity, keeping unknown fields in Extra.
func (e *Entity) UnmarshalJSON(data []byte) error {
	order, raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("entity: %w", ErrMissingName)
	}

	out := Entity{order: order}
	if err := json.Unmarshal(raw[keyName], &out.Name); err != nil || out.Name == "" {
		return fmt.Errorf("entity: %w", ErrMissingName)
	}
	delete(raw, keyName)

	var score *float64
	if err := decodeOptional(raw, keyScore, &score); err != nil {
		return fmt.Errorf("entity %q: %w", out.Name, err)
	}
	if score != nil {
		out.Score = *score
	}
	if err := decodeOptional(raw, keyPreviousScore, &out.PreviousScore); err != nil {
		return fmt.Errorf("entity %q: %w", out.Name, err)
	}
	if err := decodeOptional(raw, keyTrend, &out.Trend); err != nil {
		return fmt.Errorf("entity %q: %w", out.Name, err)
	}

	if len(raw) > 0 {
		out.Extra = raw
	}
	*e = out
	return nil
}

// MarshalJSON encodes the entity. Keys keep their on-disk order; keys new to
// the record follow in the order name, aura_score, previous_aura_score,
// trend_7_days, then remaining extras sorted.
func (e Entity) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(e.Extra)+4)
	for k, v := range e.Extra {
		fields[k] = v
	}

	name, err := marshal(e.Name)
	if err != nil {
		return nil, err
	}
	fields[keyName] = name
	fields[keyScore] = formatFloat(e.Score)
	if e.PreviousScore != nil {
		fields[keyPreviousScore] = formatFloat(*e.PreviousScore)
	}
	if e.Trend != nil {
		fields[keyTrend] = formatFloats(e.Trend)
	}
	return writeObject(fields, e.order, []string{keyName, keyScore, keyPreviousScore, keyTrend})
}

// UnmarshalJSON decodes a document, keeping unknown top-level fields in Extra.
func (d *Document) UnmarshalJSON(data []byte) error {
	order, raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	if raw == nil {
		return errors.New("document is null")
	}

	out := Document{order: order}
	switch v, ok := raw[KeyEntities]; {
	case !ok:
		out.listForm = listAbsent
	case string(bytes.TrimSpace(v)) == "null":
		out.listForm = listNull
	}
	if err := decodeOptional(raw, KeyEntities, &out.Entities); err != nil {
		return fmt.Errorf("%s: %w", KeyEntities, err)
	}
	// Always overwritten, so a non-string value is not worth failing over.
	if v, ok := raw[KeyLastRefreshed]; ok {
		_ = json.Unmarshal(v, &out.LastRefreshed)
		delete(raw, KeyLastRefreshed)
	}

	if len(raw) > 0 {
		out.Extra = raw
	}
	*d = out
	return nil
}

// MarshalJSON encodes the document in its on-disk key order. An empty entity
// list keeps the form it was read in: absent, null, or []. A document built
// in memory always gets a list.
func (d Document) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(d.Extra)+2)
	for k, v := range d.Extra {
		fields[k] = v
	}

	switch {
	case len(d.Entities) > 0 || d.listForm == listPresent:
		entities := d.Entities
		if entities == nil {
			entities = []Entity{}
		}
		raw, err := marshal(entities)
		if err != nil {
			return nil, err
		}
		fields[KeyEntities] = raw
	case d.listForm == listNull:
		fields[KeyEntities] = json.RawMessage("null")
	}

	stamp, err := marshal(d.LastRefreshed)
	if err != nil {
		return nil, err
	}
	fields[KeyLastRefreshed] = stamp
	return writeObject(fields, d.order, []string{KeyEntities, KeyLastRefreshed})
}

// Decode parses a roster document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode renders doc with stable key order and four-space indentation,
// terminated by a newline.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject reads a JSON object, returning its keys in order of first
// appearance and its raw values. A JSON null yields nil, nil, nil.
func decodeObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok == nil {
		return nil, nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var order []string
	raw := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected string key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, seen := raw[key]; !seen {
			order = append(order, key)
		}
		raw[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return order, raw, nil
}

// writeObject emits fields as a compact JSON object: keys from order first,
// then keys from known, then the rest sorted. Keys without a value are skipped.
func writeObject(fields map[string]json.RawMessage, order, known []string) ([]byte, error) {
	var buf bytes.Buffer
	written := make(map[string]bool, len(fields))
	emit := func(key string) error {
		v, ok := fields[key]
		if !ok || written[key] {
			return nil
		}
		if len(written) > 0 {
			buf.WriteByte(',')
		}
		k, err := marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		written[key] = true
		return nil
	}

	rest := make([]string, 0, len(fields))
	for k := range fields {
		rest = append(rest, k)
	}
	sort.Strings(rest)

	buf.WriteByte('{')
	for _, group := range [][]string{order, known, rest} {
		for _, key := range group {
			if err := emit(key); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// formatFloat writes f the way the front-end's original writer did: always
// with a fractional part or an exponent, so 100 is written as 100.0.
func formatFloat(f float64) json.RawMessage {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return json.RawMessage("0.0")
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64))
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return json.RawMessage(s)
}

func formatFloats(fs []float64) json.RawMessage {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(formatFloat(f))
	}
	return json.RawMessage("[" + strings.Join(parts, ",") + "]")
}

// decodeOptional decodes raw[key] into dst when present and removes it from raw.
// A JSON null leaves dst untouched.
func decodeOptional(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	delete(raw, key)
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// marshal encodes v without HTML escaping so names like "Tom & Jerry" stay readable.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
