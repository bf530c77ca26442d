package ledger_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/ledger"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	m.Run()
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(ctx context.Context) *repository.MemoryStore {
	s := repository.NewMemoryStore()
	err := s.Update(ctx, func(tx repository.Tx) error {
		for _, p := range []model.Participant{
			{ID: "p1", Username: "ann", DisplayName: "Ann"},
			{ID: "p2", Username: "ben", DisplayName: "Ben"},
		} {
			if err := tx.UpsertParticipant(p); err != nil {
				return err
			}
		}
		for _, j := range []model.Judge{
			{ID: "j1", Active: true, JudgeProfile: model.JudgeProfile{Username: "judy", DisplayName: "Judy", Email: "judy@x.io"}},
			{ID: "j2", Active: true, JudgeProfile: model.JudgeProfile{Username: "jon", DisplayName: "Jon", Email: "jon@x.io"}},
			{ID: "j-off", Active: false, JudgeProfile: model.JudgeProfile{Username: "retired", DisplayName: "Retired", Email: "r@x.io"}},
		} {
			if err := tx.InsertJudge(j); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
	return s
}

func countScores(ctx context.Context, s repository.Store) int {
	var n int
	_ = s.View(ctx, func(r repository.Reader) error {
		st, err := r.Stats()
		n = st.Scores
		return err
	})
	return n
}

func TestSubmitScore(t *testing.T) {
	Convey("Given a ledger over a seeded store", t, func() {
		ctx := context.Background()
		store := newStore(ctx)
		clk := &clock{now: t0}
		l := ledger.New(store, ledger.WithClock(clk.Now), ledger.WithBounds(scoring.Bounds{Min: 1, Max: 100}))
		judy := model.Identity{JudgeID: "j1"}

		Convey("When a judge scores a participant for the first time", func() {
			res, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 70, Comment: "  solid  "})

			Convey("Then a row is created with equal stamps", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeCreated)
				So(res.Score.Value, ShouldEqual, 70)
				So(res.Score.Comment, ShouldEqual, "solid")
				So(res.Score.CreatedAt, ShouldEqual, t0)
				So(res.Score.UpdatedAt, ShouldEqual, t0)
			})

			Convey("And a second submission replaces it", func() {
				clk.Advance(time.Minute)
				res2, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 85})

				So(err, ShouldBeNil)
				So(res2.Outcome, ShouldEqual, model.OutcomeUpdated)
				So(countScores(ctx, store), ShouldEqual, 1)

				stored, err := l.JudgeScore(ctx, "j1", "p1")
				So(err, ShouldBeNil)
				So(stored.Value, ShouldEqual, 85)
				So(stored.Comment, ShouldEqual, "")
				So(stored.CreatedAt, ShouldEqual, t0)
				So(stored.UpdatedAt, ShouldEqual, t0.Add(time.Minute))
			})
		})

		Convey("When the value is outside the range", func() {
			for _, v := range []int{0, 101} {
				_, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: v})
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			}

			Convey("Then nothing is written", func() {
				So(countScores(ctx, store), ShouldEqual, 0)
			})
		})

		Convey("When an out-of-range value would overwrite an existing score", func() {
			_, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 50})
			So(err, ShouldBeNil)
			_, err = l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 101})

			Convey("Then the stored score is untouched", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				s, _ := l.JudgeScore(ctx, "j1", "p1")
				So(s.Value, ShouldEqual, 50)
			})
		})

		Convey("When several inputs are bad at once", func() {
			_, err := l.SubmitScore(ctx, model.Identity{}, model.Submission{Value: 0, Comment: strings.Repeat("é", ledger.MaxCommentLength+1)})

			Convey("Then every field is reported", func() {
				var verr *model.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				fields := make([]string, len(verr.Fields))
				for i, f := range verr.Fields {
					fields[i] = f.Field
				}
				So(fields, ShouldResemble, []string{"judge_id", "participant_id", "score", "comment"})
			})
		})

		Convey("When the comment is exactly at the limit in runes", func() {
			_, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 5, Comment: strings.Repeat("é", ledger.MaxCommentLength)})
			So(err, ShouldBeNil)
		})

		Convey("When the participant is unknown", func() {
			_, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "ghost", Value: 5})

			Convey("Then it is a not found error", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "participant")
			})
		})

		Convey("When the judge is unknown or inactive", func() {
			_, errUnknown := l.SubmitScore(ctx, model.Identity{JudgeID: "nobody"}, model.Submission{ParticipantID: "p1", Value: 5})
			_, errInactive := l.SubmitScore(ctx, model.Identity{JudgeID: "j-off"}, model.Submission{ParticipantID: "p1", Value: 5})

			Convey("Then both are not found and nothing is written", func() {
				So(errors.Is(errUnknown, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errInactive, model.ErrNotFound), ShouldBeTrue)
				So(countScores(ctx, store), ShouldEqual, 0)
			})
		})

		Convey("When the store is unavailable", func() {
			So(store.Close(), ShouldBeNil)
			_, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 5})

			Convey("Then it is a storage error", func() {
				So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			})
		})
	})
}

// racyStore commits a competing score just before the first write and hides
// it from that write's lookup, reproducing a lost insert race.
type racyStore struct {
	repository.Store
	races atomic.Int32
	limit int32
}

type staleTx struct {
	repository.Tx
}

func (staleTx) LockScore(string, string) (model.Score, error) {
	return model.Score{}, repository.ErrNotFound
}

func (r *racyStore) Update(ctx context.Context, fn func(repository.Tx) error) error {
	if r.races.Add(1) > r.limit {
		return r.Store.Update(ctx, fn)
	}
	_ = r.Store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.Score("j1", "p1"); err == nil {
			return nil
		}
		return tx.InsertScore(model.Score{JudgeID: "j1", ParticipantID: "p1", Value: 1, CreatedAt: t0, UpdatedAt: t0})
	})
	return r.Store.Update(ctx, func(tx repository.Tx) error {
		return fn(staleTx{tx})
	})
}

func TestSubmitScoreConflict(t *testing.T) {
	Convey("Given a concurrent writer wins the insert", t, func() {
		ctx := context.Background()
		judy := model.Identity{JudgeID: "j1"}

		Convey("When the race happens once", func() {
			store := &racyStore{Store: newStore(ctx), limit: 1}
			l := ledger.New(store)
			res, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 42})

			Convey("Then the retry updates the winner's row", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeUpdated)
				So(res.Score.Value, ShouldEqual, 42)
				So(res.Score.CreatedAt, ShouldEqual, t0)
				So(countScores(ctx, store), ShouldEqual, 1)
			})
		})

		Convey("When the race repeats on the retry", func() {
			store := &racyStore{Store: newStore(ctx), limit: 2}
			l := ledger.New(store)
			_, err := l.SubmitScore(ctx, judy, model.Submission{ParticipantID: "p1", Value: 42})

			Convey("Then the conflict surfaces", func() {
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
				So(store.races.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestSubmitScoreConcurrent(t *testing.T) {
	Convey("Given N concurrent submissions for one pair", t, func() {
		ctx := context.Background()
		store := newStore(ctx)
		l := ledger.New(store)

		const n = 40
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 1; i <= n; i++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				_, err := l.SubmitScore(ctx, model.Identity{JudgeID: "j1"}, model.Submission{ParticipantID: "p1", Value: v})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		Convey("Then all succeed and exactly one row holds one of the values", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			So(countScores(ctx, store), ShouldEqual, 1)
			s, err := l.JudgeScore(ctx, "j1", "p1")
			So(err, ShouldBeNil)
			So(s.Value, ShouldBeBetweenOrEqual, 1, n)
		})
	})
}

func TestLedgerReads(t *testing.T) {
	Convey("Given a ledger with a few scores", t, func() {
		ctx := context.Background()
		store := newStore(ctx)
		clk := &clock{now: t0}
		l := ledger.New(store, ledger.WithClock(clk.Now))

		for _, s := range []struct {
			judge, participant string
			value              int
		}{
			{"j1", "p1", 10}, {"j2", "p1", 20}, {"j1", "p2", 30},
		} {
			clk.Advance(time.Second)
			_, err := l.SubmitScore(ctx, model.Identity{JudgeID: s.judge}, model.Submission{ParticipantID: s.participant, Value: s.value})
			So(err, ShouldBeNil)
		}

		Convey("When a participant's scores are listed", func() {
			views, err := l.ParticipantScores(ctx, "p1")

			Convey("Then they carry judge names newest first", func() {
				So(err, ShouldBeNil)
				So(views, ShouldHaveLength, 2)
				So(views[0].JudgeName, ShouldEqual, "Jon")
				So(views[1].JudgeName, ShouldEqual, "Judy")
			})
		})

		Convey("When a judge's scores are listed with a limit", func() {
			views, err := l.JudgeScores(ctx, "j1", 1)

			Convey("Then only the newest is returned", func() {
				So(err, ShouldBeNil)
				So(views, ShouldHaveLength, 1)
				So(views[0].ParticipantName, ShouldEqual, "Ben")
			})
		})

		Convey("When recent activity and stats are read", func() {
			recent, err := l.RecentActivity(ctx, 10)
			So(err, ShouldBeNil)
			st, err := l.Stats(ctx)
			So(err, ShouldBeNil)

			Convey("Then they cover the whole ledger", func() {
				So(recent, ShouldHaveLength, 3)
				So(st.Scores, ShouldEqual, 3)
				So(st.AverageScore, ShouldEqual, 20)
			})
		})

		Convey("When unknown ids are read", func() {
			_, errP := l.ParticipantScores(ctx, "ghost")
			_, errJ := l.JudgeScores(ctx, "ghost", 5)
			_, errS := l.JudgeScore(ctx, "j2", "p2")

			Convey("Then each is not found", func() {
				So(errors.Is(errP, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errJ, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errS, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
