package ranking

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/metrics"
)

// Snapshotter supplies the state a board is computed from.
type Snapshotter interface {
	Snapshot(ctx context.Context) (scoring.Snapshot, error)
}

// View serves scoreboards. Without a TTL every call recomputes from a fresh
// snapshot. With a TTL, boards are reused until they expire or Invalidate is
// called, and concurrent misses share one computation.
//
// Returned boards are shared; callers must not modify Standings.
type View struct {
	source Snapshotter
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	gen      uint64
	cached   *Board
	cachedAt time.Time
	sf       singleflight.Group
}

// NewView returns a View over source.
func NewView(source Snapshotter, opts ...Option) *View {
	v := &View{source: source, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Board returns the current scoreboard. A snapshot failure is returned as
// is; no partial board is ever produced.
func (v *View) Board(ctx context.Context) (Board, error) {
	if v.ttl <= 0 {
		return v.compute(ctx)
	}

	v.mu.Lock()
	if v.cached != nil && v.now().Sub(v.cachedAt) < v.ttl {
		b := *v.cached
		v.mu.Unlock()
		metrics.RecordRankingCacheHit()
		return b, nil
	}
	gen := v.gen
	v.mu.Unlock()

	// Keyed by generation so a caller arriving after an invalidation never
	// joins a computation that started before it.
	res, err, _ := v.sf.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		b, err := v.compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		if v.gen == gen {
			v.cached = &b
			v.cachedAt = b.GeneratedAt
		}
		v.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return Board{}, err
	}
	return res.(Board), nil
}

// Invalidate drops the cached board. Call it after every committed write.
func (v *View) Invalidate() {
	v.mu.Lock()
	v.gen++
	v.cached = nil
	v.mu.Unlock()
}

func (v *View) compute(ctx context.Context) (Board, error) {
	start := time.Now()
	snap, err := v.source.Snapshot(ctx)
	if err != nil {
		return Board{}, err
	}
	b := Board{
		Standings:         Compute(snap.Participants, snap.Aggregates),
		TotalParticipants: len(snap.Participants),
		TotalJudges:       snap.TotalJudges,
		LastUpdated:       snap.LastUpdated,
		GeneratedAt:       v.now(),
	}
	metrics.RecordRankingComputed(float64(time.Since(start).Microseconds()) / 1000)
	return b, nil
}
