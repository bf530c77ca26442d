package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/model"
)

// Snapshot is the state a scoreboard is built from, read in one transaction.
type Snapshot struct {
	Participants []model.Participant
	Aggregates   map[string]model.Aggregate
	TotalJudges  int
	LastUpdated  time.Time
}

// Engine derives aggregates from durable ledger state on every call.
type Engine struct {
	store repository.Store
	agg   Aggregator
}

// NewEngine builds an Engine over store.
func NewEngine(store repository.Store, mode Mode) *Engine {
	return &Engine{store: store, agg: NewAggregator(mode)}
}

// Aggregator exposes the engine's aggregation rule.
func (e *Engine) Aggregator() Aggregator { return e.agg }

// Aggregate returns one participant's total and judge count.
func (e *Engine) Aggregate(ctx context.Context, participantID string) (model.Aggregate, error) {
	const op = "scoring.aggregate"
	var out model.Aggregate
	err := e.store.View(ctx, func(r repository.Reader) error {
		if _, err := r.Participant(participantID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NotFound(op, "participant", participantID)
			}
			return err
		}
		t, err := r.Tally(participantID)
		if err != nil {
			return err
		}
		out = e.agg.Aggregate(t)
		return nil
	})
	return out, wrapStorage(op, err)
}

// AggregateAll returns an aggregate for every participant, including those
// nobody has scored yet.
func (e *Engine) AggregateAll(ctx context.Context) (map[string]model.Aggregate, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Aggregates, nil
}

// Snapshot reads participants, tallies and the judge count together.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	const op = "scoring.snapshot"
	var snap Snapshot
	err := e.store.View(ctx, func(r repository.Reader) error {
		ps, err := r.Participants()
		if err != nil {
			return err
		}
		tallies, err := r.Tallies()
		if err != nil {
			return err
		}
		judges, err := r.CountJudges()
		if err != nil {
			return err
		}
		last, err := r.LastScoreUpdate()
		if err != nil {
			return err
		}
		aggs := make(map[string]model.Aggregate, len(ps))
		for _, p := range ps {
			aggs[p.ID] = e.agg.Aggregate(tallies[p.ID])
		}
		snap = Snapshot{Participants: ps, Aggregates: aggs, TotalJudges: judges, LastUpdated: last}
		return nil
	})
	if err != nil {
		return Snapshot{}, wrapStorage(op, err)
	}
	return snap, nil
}

// wrapStorage tags errors that carry no domain kind as storage failures.
func wrapStorage(op string, err error) error {
	if err == nil || model.KindOf(err) != nil {
		return err
	}
	return model.E(op, model.ErrStorage, err)
}
