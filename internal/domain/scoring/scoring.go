// Package scoring applies per-cycle deltas to entity scores and their
// rolling trend history.
package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/okian/aura/internal/domain/model"
	"github.com/spf13/cast"
)

// Default scoring configuration constants.
const (
	defaultTrendLength = 7
	defaultPrecision   = 2
)

// Lookup resolves the raw delta for an entity name. extract.Deltas satisfies it.
type Lookup interface {
	Lookup(name string) (any, bool)
}

// Option applies a configuration option to the Updater.
type Option func(*Updater)

// WithTrendLength sets the maximum number of trend points kept per entity.
func WithTrendLength(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.trendLength = n
		}
	}
}

// WithPrecision sets the number of decimals scores are rounded to.
func WithPrecision(decimals int) Option {
	return func(u *Updater) {
		if decimals >= 0 {
			u.precision = decimals
		}
	}
}

// Warning records a delta that could not be used and was replaced by zero.
type Warning struct {
	Entity string
	Value  any
	Reason string
}

// Change describes what happened to one entity.
type Change struct {
	Name     string
	Previous float64
	Current  float64
	Delta    float64
	Matched  bool // a value for the entity was present in the lookup
}

// Result summarises one Apply call.
type Result struct {
	Changes  []Change
	Warnings []Warning
	Missing  []string // entities with no value in the lookup
}

// Changed counts entities whose score moved.
func (r Result) Changed() int {
	n := 0
	for _, c := range r.Changes {
		if c.Current != c.Previous {
			n++
		}
	}
	return n
}

// Updater applies deltas. It has no failure path: unusable values become zero.
type Updater struct {
	trendLength int
	precision   int
}

// NewUpdater creates an Updater with configuration options.
func NewUpdater(opts ...Option) *Updater {
	u := &Updater{
		trendLength: defaultTrendLength,
		precision:   defaultPrecision,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// TrendLength reports the configured trend capacity.
func (u *Updater) TrendLength() int { return u.trendLength }

// Apply updates entities in place, in order:
//  1. look up the delta by case-folded name, zero when absent
//  2. coerce it to a float, zero with a warning when that fails
//  3. previous score := score
//  4. score := round(score + delta)
//  5. trend: seed with copies of the new score when absent, otherwise keep the
//     newest trendLength-1 points and append the new score
func (u *Updater) Apply(entities []model.Entity, deltas Lookup) Result {
	res := Result{Changes: make([]Change, 0, len(entities))}

	for i := range entities {
		e := &entities[i]

		var delta float64
		raw, matched := deltas.Lookup(e.Name)
		if matched {
			v, reason := Coerce(raw)
			if reason != "" {
				res.Warnings = append(res.Warnings, Warning{Entity: e.Name, Value: raw, Reason: reason})
			}
			delta = v
		} else {
			res.Missing = append(res.Missing, e.Name)
		}

		prev := e.Score
		e.PreviousScore = &prev
		e.Score = u.round(prev + delta)
		e.Trend = u.advanceTrend(e.Trend, e.Score)

		res.Changes = append(res.Changes, Change{
			Name:     e.Name,
			Previous: prev,
			Current:  e.Score,
			Delta:    delta,
			Matched:  matched,
		})
	}

	return res
}

// round works on the shortest decimal form of v, so 2.675 rounds to 2.67 the
// same way Python's round does.
func (u *Updater) round(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', u.precision, 64), 64)
	if err != nil || math.IsInf(r, 0) || math.IsNaN(r) {
		return v
	}
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

func (u *Updater) advanceTrend(trend []float64, score float64) []float64 {
	if trend == nil {
		seeded := make([]float64, u.trendLength)
		for i := range seeded {
			seeded[i] = score
		}
		return seeded
	}

	keep := u.trendLength - 1
	if len(trend) > keep {
		trend = trend[len(trend)-keep:]
	}
	out := make([]float64, 0, u.trendLength)
	out = append(out, trend...)
	return append(out, score)
}

// Coerce converts a raw delta to a finite float64. On failure it returns 0
// and a short reason; it never panics.
func Coerce(v any) (float64, string) {
	switch t := v.(type) {
	case nil:
		return 0, "null value"
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, "empty string"
		}
		if isHex(s) {
			return 0, "not a number"
		}
		v = s
	case json.Number:
		s := strings.TrimSpace(t.String())
		if isHex(s) {
			return 0, "not a number"
		}
		v = s
	case map[string]any, []any:
		return 0, "non-scalar value"
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, "not a number"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "not a finite number"
	}
	return f, ""
}

// isHex reports a 0x-prefixed literal, which ParseFloat would otherwise accept.
func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
