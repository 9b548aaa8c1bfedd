// Package prompt renders the batched request sent to the model for one cycle.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultWindow = 24 * time.Hour
	nameSeparator = ", "
	hoursPerDay   = 24
)

// ErrEmptyRoster is returned when there are no names to ask about. Callers
// must skip the model call entirely.
var ErrEmptyRoster = errors.New("no entity names to prompt for")

const template = "Analyze all significant positive and negative news, professional activities, " +
	"social media sentiment, and public statements for the following celebrities " +
	"over the last %s: %s. " +
	"Based on the overall real-world impact for EACH celebrity, generate a single numerical " +
	"value representing the change in their 'Aura Score'. " +
	"Provide the output as a single, valid JSON object where the keys are the celebrity names " +
	"(exactly as provided) and the values are their calculated numerical aura change. " +
	"The output MUST BE ONLY THE JSON OBJECT and nothing else: no markdown, no explanation."

// Option configures Build.
type Option func(*builder)

type builder struct {
	window time.Duration
}

// WithRecencyWindow sets how far back the model is asked to look.
// Non-positive values keep the default of 24 hours.
func WithRecencyWindow(d time.Duration) Option {
	return func(b *builder) {
		if d > 0 {
			b.window = d
		}
	}
}

// Build renders the prompt for names. Names are listed verbatim in the
// order given. Same input, same output.
func Build(names []string, opts ...Option) (string, error) {
	if len(names) == 0 {
		return "", ErrEmptyRoster
	}

	b := builder{window: defaultWindow}
	for _, opt := range opts {
		opt(&b)
	}

	return fmt.Sprintf(template, describeWindow(b.window), strings.Join(names, nameSeparator)), nil
}

// describeWindow prints whole days once the window spans at least two of
// them, hours otherwise.
func describeWindow(d time.Duration) string {
	hours := int(d / time.Hour)
	if hours < 1 {
		hours = 1
	}
	if hours >= 2*hoursPerDay && hours%hoursPerDay == 0 {
		return fmt.Sprintf("%d days", hours/hoursPerDay)
	}
	if hours == 1 {
		return "hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
