package simulate

import (
	"errors"
	"fmt"
	"strings"
)

// VerifyBoard checks the invariants every served board must hold: one row
// per participant, ranks 1..N in order, rows sorted by total descending
// then display name then id, and no participant scored by more judges than
// exist. exactTotals is false when totals are rounded means, in which case
// equal displayed totals are not checked by name.
func VerifyBoard(b Board, exactTotals bool) error {
	var errs []error
	if len(b.Standings) != b.Metadata.TotalParticipants {
		errs = append(errs, fmt.Errorf("%d rows for %d participants", len(b.Standings), b.Metadata.TotalParticipants))
	}
	for i, s := range b.Standings {
		if s.Rank != i+1 {
			errs = append(errs, fmt.Errorf("row %d has rank %d", i, s.Rank))
		}
		if s.JudgeCount > b.Metadata.TotalJudges {
			errs = append(errs, fmt.Errorf("%s scored by %d judges of %d", s.ID, s.JudgeCount, b.Metadata.TotalJudges))
		}
		if i == 0 {
			continue
		}
		if err := checkOrder(b.Standings[i-1], s, exactTotals); err != nil {
			errs = append(errs, fmt.Errorf("rows %d/%d: %w", i-1, i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvariant, errors.Join(errs...))
	}
	return nil
}

func checkOrder(prev, cur Standing, exactTotals bool) error {
	switch {
	case prev.TotalPoints > cur.TotalPoints:
		return nil
	case prev.TotalPoints < cur.TotalPoints:
		return fmt.Errorf("total %.2f before %.2f", prev.TotalPoints, cur.TotalPoints)
	case !exactTotals:
		// Rounding keeps order but can make distinct means display equal.
		return nil
	}
	switch c := strings.Compare(prev.DisplayName, cur.DisplayName); {
	case c < 0:
		return nil
	case c > 0:
		return fmt.Errorf("tied total: %q before %q", prev.DisplayName, cur.DisplayName)
	}
	if prev.ID > cur.ID {
		return fmt.Errorf("tied name: id %q before %q", prev.ID, cur.ID)
	}
	return nil
}

// VerifyTotals compares the final board against the baseline board taken
// before the run plus what the plan should have added. Judges are new to
// the run, so every planned pair adds a row. Totals are only compared when
// the server sums scores.
func VerifyTotals(final, baseline Board, want map[string]Expectation, summed bool) error {
	before := make(map[string]Standing, len(baseline.Standings))
	for _, s := range baseline.Standings {
		before[s.ID] = s
	}
	var errs []error
	for _, s := range final.Standings {
		e := want[s.ID]
		b := before[s.ID]
		if got, exp := s.JudgeCount, b.JudgeCount+e.Judges; got != exp {
			errs = append(errs, fmt.Errorf("%s: judgeCount %d, want %d", s.ID, got, exp))
		}
		if summed {
			if got, exp := s.TotalPoints, b.TotalPoints+float64(e.Sum); got != exp {
				errs = append(errs, fmt.Errorf("%s: total %.0f, want %.0f", s.ID, got, exp))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvariant, errors.Join(errs...))
	}
	return nil
}
