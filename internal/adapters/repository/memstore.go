package repository

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/pkg/metrics"
)

type pairKey struct {
	judgeID       string
	participantID string
}

// memoryState is immutable once published; writers work on a clone.
type memoryState struct {
	judges       map[string]model.Judge
	byUsername   map[string]string
	byEmail      map[string]string
	specs        map[string][]string
	courts       map[string][]string
	participants map[string]model.Participant
	partByUser   map[string]string
	scores       map[pairKey]model.Score
}

func newMemoryState() *memoryState {
	return &memoryState{
		judges:       map[string]model.Judge{},
		byUsername:   map[string]string{},
		byEmail:      map[string]string{},
		specs:        map[string][]string{},
		courts:       map[string][]string{},
		participants: map[string]model.Participant{},
		partByUser:   map[string]string{},
		scores:       map[pairKey]model.Score{},
	}
}

// clone copies every map. Tag slices are shared and only ever replaced
// through a clipped append.
func (s *memoryState) clone() *memoryState {
	return &memoryState{
		judges:       maps.Clone(s.judges),
		byUsername:   maps.Clone(s.byUsername),
		byEmail:      maps.Clone(s.byEmail),
		specs:        maps.Clone(s.specs),
		courts:       maps.Clone(s.courts),
		participants: maps.Clone(s.participants),
		partByUser:   maps.Clone(s.partByUser),
		scores:       maps.Clone(s.scores),
	}
}

// MemoryStore is an in-process Store. Writers are serialized and commit by
// swapping in a modified copy of the state, so readers only ever observe
// committed snapshots.
type MemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memoryState
	closed  atomic.Bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// View runs fn against the latest committed snapshot.
func (m *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()

	err := fn(&memReader{st: st})
	metrics.RecordStoreTx("view", float64(time.Since(start).Microseconds())/1000, err != nil)
	return err
}

// Update runs fn on a private copy and publishes it only if fn returns nil.
func (m *MemoryStore) Update(ctx context.Context, fn func(Tx) error) (err error) {
	if m.closed.Load() {
		return ErrClosed
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	failed := true
	defer func() {
		metrics.RecordStoreTx("update", float64(time.Since(start).Microseconds())/1000, failed)
	}()

	m.mu.RLock()
	next := m.state.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{memReader{st: next}}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
	failed = false
	return nil
}

// Close marks the store unusable.
func (m *MemoryStore) Close() error {
	m.closed.Store(true)
	return nil
}

type memReader struct {
	st *memoryState
}

func (r *memReader) Judge(id string) (model.Judge, error) {
	j, ok := r.st.judges[id]
	if !ok {
		return model.Judge{}, ErrNotFound
	}
	return j, nil
}

func (r *memReader) JudgeByUsername(username string) (model.Judge, error) {
	id, ok := r.st.byUsername[username]
	if !ok {
		return model.Judge{}, ErrNotFound
	}
	return r.Judge(id)
}

func (r *memReader) JudgeByEmail(email string) (model.Judge, error) {
	id, ok := r.st.byEmail[strings.ToLower(email)]
	if !ok {
		return model.Judge{}, ErrNotFound
	}
	return r.Judge(id)
}

func (r *memReader) Specializations(judgeID string) ([]string, error) {
	return slices.Clone(r.st.specs[judgeID]), nil
}

func (r *memReader) CourtAssignments(judgeID string) ([]string, error) {
	return slices.Clone(r.st.courts[judgeID]), nil
}

func (r *memReader) CountJudges() (int, error) {
	return len(r.st.judges), nil
}

func (r *memReader) Participant(id string) (model.Participant, error) {
	p, ok := r.st.participants[id]
	if !ok {
		return model.Participant{}, ErrNotFound
	}
	return p, nil
}

func (r *memReader) Participants() ([]model.Participant, error) {
	out := slices.Collect(maps.Values(r.st.participants))
	slices.SortFunc(out, func(a, b model.Participant) int {
		return cmp.Or(strings.Compare(a.DisplayName, b.DisplayName), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *memReader) Score(judgeID, participantID string) (model.Score, error) {
	s, ok := r.st.scores[pairKey{judgeID, participantID}]
	if !ok {
		return model.Score{}, ErrNotFound
	}
	return s, nil
}

func (r *memReader) Tally(participantID string) (model.Tally, error) {
	var t model.Tally
	for k, s := range r.st.scores {
		if k.participantID == participantID {
			addToTally(&t, s)
		}
	}
	return t, nil
}

func (r *memReader) Tallies() (map[string]model.Tally, error) {
	out := make(map[string]model.Tally)
	for k, s := range r.st.scores {
		t := out[k.participantID]
		addToTally(&t, s)
		out[k.participantID] = t
	}
	return out, nil
}

func addToTally(t *model.Tally, s model.Score) {
	t.Sum += int64(s.Value)
	t.Count++
	if s.UpdatedAt.After(t.LastUpdated) {
		t.LastUpdated = s.UpdatedAt
	}
}

func (r *memReader) LastScoreUpdate() (time.Time, error) {
	var latest time.Time
	for _, s := range r.st.scores {
		if s.UpdatedAt.After(latest) {
			latest = s.UpdatedAt
		}
	}
	return latest, nil
}

func (r *memReader) ScoresByParticipant(participantID string) ([]model.ScoreView, error) {
	return r.scoreViews(func(k pairKey) bool { return k.participantID == participantID }, 0), nil
}

func (r *memReader) ScoresByJudge(judgeID string, limit int) ([]model.ScoreView, error) {
	return r.scoreViews(func(k pairKey) bool { return k.judgeID == judgeID }, limit), nil
}

func (r *memReader) RecentScores(limit int) ([]model.ScoreView, error) {
	return r.scoreViews(func(pairKey) bool { return true }, limit), nil
}

func (r *memReader) scoreViews(match func(pairKey) bool, limit int) []model.ScoreView {
	out := make([]model.ScoreView, 0)
	for k, s := range r.st.scores {
		if !match(k) {
			continue
		}
		out = append(out, model.ScoreView{
			Score:           s,
			JudgeName:       r.st.judges[k.judgeID].DisplayName,
			ParticipantName: r.st.participants[k.participantID].DisplayName,
		})
	}
	slices.SortFunc(out, func(a, b model.ScoreView) int {
		return cmp.Or(
			b.UpdatedAt.Compare(a.UpdatedAt),
			strings.Compare(a.JudgeID, b.JudgeID),
			strings.Compare(a.ParticipantID, b.ParticipantID),
		)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *memReader) Stats() (model.Stats, error) {
	st := model.Stats{
		Judges:       len(r.st.judges),
		Participants: len(r.st.participants),
		Scores:       len(r.st.scores),
	}
	if st.Scores > 0 {
		var sum int64
		for _, s := range r.st.scores {
			sum += int64(s.Value)
		}
		st.AverageScore = float64(sum) / float64(st.Scores)
	}
	return st, nil
}

type memTx struct {
	memReader
}

func (t *memTx) InsertJudge(j model.Judge) error {
	switch {
	case t.st.judges[j.ID].ID != "":
		return &UniqueViolationError{Constraint: ConstraintJudgeID}
	case t.st.byUsername[j.Username] != "":
		return &UniqueViolationError{Constraint: ConstraintJudgeUsername}
	case t.st.byEmail[strings.ToLower(j.Email)] != "":
		return &UniqueViolationError{Constraint: ConstraintJudgeEmail}
	}
	t.st.judges[j.ID] = j
	t.st.byUsername[j.Username] = j.ID
	t.st.byEmail[strings.ToLower(j.Email)] = j.ID
	return nil
}

func (t *memTx) InsertSpecialization(judgeID, tag string) error {
	if _, ok := t.st.judges[judgeID]; !ok {
		return ErrNotFound
	}
	t.st.specs[judgeID] = append(slices.Clip(t.st.specs[judgeID]), tag)
	return nil
}

func (t *memTx) InsertCourtAssignment(judgeID, tag string) error {
	if _, ok := t.st.judges[judgeID]; !ok {
		return ErrNotFound
	}
	t.st.courts[judgeID] = append(slices.Clip(t.st.courts[judgeID]), tag)
	return nil
}

func (t *memTx) UpsertParticipant(p model.Participant) error {
	if owner, ok := t.st.partByUser[p.Username]; ok && owner != p.ID {
		return &UniqueViolationError{Constraint: ConstraintParticipantUser}
	}
	if old, ok := t.st.participants[p.ID]; ok && old.Username != p.Username {
		delete(t.st.partByUser, old.Username)
	}
	t.st.participants[p.ID] = p
	t.st.partByUser[p.Username] = p.ID
	return nil
}

func (t *memTx) LockScore(judgeID, participantID string) (model.Score, error) {
	// The writer mutex already serializes every Update.
	return t.Score(judgeID, participantID)
}

func (t *memTx) InsertScore(s model.Score) error {
	k := pairKey{s.JudgeID, s.ParticipantID}
	if _, ok := t.st.scores[k]; ok {
		return &UniqueViolationError{Constraint: ConstraintScorePair}
	}
	t.st.scores[k] = s
	return nil
}

func (t *memTx) UpdateScore(s model.Score) error {
	k := pairKey{s.JudgeID, s.ParticipantID}
	old, ok := t.st.scores[k]
	if !ok {
		return ErrNotFound
	}
	s.CreatedAt = old.CreatedAt
	t.st.scores[k] = s
	return nil
}
