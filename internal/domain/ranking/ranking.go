// Package ranking orders participants into the scoreboard.
package ranking

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/okian/judgeboard/internal/domain/model"
)

// Board is a point-in-time scoreboard.
type Board struct {
	Standings         []model.Standing
	TotalParticipants int
	TotalJudges       int
	// LastUpdated is the newest score update, zero when nothing is scored.
	LastUpdated time.Time
	GeneratedAt time.Time
}

// Compute sorts participants by total descending, then display name
// ascending (byte-wise, case-sensitive), then id, and numbers them 1..n.
// Ties on total still get distinct consecutive ranks. Participants missing
// from aggs rank with a zero aggregate.
func Compute(participants []model.Participant, aggs map[string]model.Aggregate) []model.Standing {
	out := make([]model.Standing, len(participants))
	for i, p := range participants {
		out[i] = model.Standing{Participant: p, Aggregate: aggs[p.ID]}
	}
	slices.SortFunc(out, compare)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func compare(a, b model.Standing) int {
	return cmp.Or(
		cmp.Compare(b.Total, a.Total),
		strings.Compare(a.Participant.DisplayName, b.Participant.DisplayName),
		strings.Compare(a.Participant.ID, b.Participant.ID),
	)
}
