// Package scoring turns ledger rows into per-participant aggregates.
package scoring

import (
	"fmt"
	"strings"

	"github.com/okian/judgeboard/internal/domain/model"
)

// Default score range, inclusive.
const (
	DefaultMinScore = 1
	DefaultMaxScore = 100
)

// Mode selects how a participant's scores combine into a total.
type Mode string

// Supported aggregation modes.
const (
	ModeSum  Mode = "sum"
	ModeMean Mode = "mean"
)

// ParseMode accepts "sum" or "mean" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSum:
		return ModeSum, nil
	case ModeMean:
		return ModeMean, nil
	default:
		return "", fmt.Errorf("unknown aggregation mode %q", s)
	}
}

// Aggregator computes totals under one mode.
type Aggregator struct {
	mode Mode
}

// NewAggregator returns an Aggregator; an empty mode means sum.
func NewAggregator(mode Mode) Aggregator {
	if mode == "" {
		mode = ModeSum
	}
	return Aggregator{mode: mode}
}

// Mode reports the configured mode.
func (a Aggregator) Mode() Mode { return a.mode }

// Total is the sum, or the unrounded mean, of a tally. An empty tally is 0.
func (a Aggregator) Total(t model.Tally) float64 {
	if t.Count == 0 {
		return 0
	}
	if a.mode == ModeMean {
		return float64(t.Sum) / float64(t.Count)
	}
	return float64(t.Sum)
}

// Aggregate converts a tally into the participant's aggregate.
func (a Aggregator) Aggregate(t model.Tally) model.Aggregate {
	return model.Aggregate{Total: a.Total(t), JudgeCount: t.Count, LastScoreUpdate: t.LastUpdated}
}

// Bounds is the inclusive range every score must fall in.
type Bounds struct {
	Min int
	Max int
}

// DefaultBounds returns [DefaultMinScore, DefaultMaxScore].
func DefaultBounds() Bounds {
	return Bounds{Min: DefaultMinScore, Max: DefaultMaxScore}
}

// Validate rejects a value outside the range with a field error on "score".
func (b Bounds) Validate(value int) error {
	if value < b.Min || value > b.Max {
		return model.NewValidationError("score", fmt.Sprintf("must be between %d and %d", b.Min, b.Max))
	}
	return nil
}
