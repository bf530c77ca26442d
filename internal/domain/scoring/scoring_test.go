package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/scoring"
)

func TestAggregator(t *testing.T) {
	Convey("Given tallies of judge scores", t, func() {
		three := model.Tally{Sum: 7 + 8 + 10, Count: 3}

		Convey("When the mode is sum", func() {
			agg := scoring.NewAggregator(scoring.ModeSum)

			Convey("Then the total is the plain sum", func() {
				stamped := three
				stamped.LastUpdated = scoredAt
				So(agg.Aggregate(stamped).LastScoreUpdate, ShouldEqual, scoredAt)
				So(agg.Total(three), ShouldEqual, 25)
				So(agg.Aggregate(three), ShouldResemble, model.Aggregate{Total: 25, JudgeCount: 3})
			})
		})

		Convey("When the mode is mean", func() {
			agg := scoring.NewAggregator(scoring.ModeMean)

			Convey("Then the total is the unrounded mean", func() {
				So(agg.Total(three), ShouldAlmostEqual, 25.0/3.0, 1e-12)
			})
		})

		Convey("When there are no scores", func() {
			Convey("Then both modes yield zero without dividing", func() {
				So(scoring.NewAggregator(scoring.ModeMean).Aggregate(model.Tally{}), ShouldResemble, model.Aggregate{})
				So(scoring.NewAggregator(scoring.ModeSum).Total(model.Tally{}), ShouldEqual, 0)
			})
		})

		Convey("When no mode is given", func() {
			So(scoring.NewAggregator("").Mode(), ShouldEqual, scoring.ModeSum)
		})
	})
}

func TestParseMode(t *testing.T) {
	Convey("Given mode names", t, func() {
		m, err := scoring.ParseMode(" MEAN ")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, scoring.ModeMean)

		_, err = scoring.ParseMode("median")
		So(err, ShouldNotBeNil)
	})
}

func TestBounds(t *testing.T) {
	Convey("Given the default bounds", t, func() {
		b := scoring.DefaultBounds()

		Convey("Then the edges are accepted", func() {
			So(b.Validate(scoring.DefaultMinScore), ShouldBeNil)
			So(b.Validate(scoring.DefaultMaxScore), ShouldBeNil)
		})

		Convey("Then values outside are validation errors on score", func() {
			for _, v := range []int{scoring.DefaultMinScore - 1, scoring.DefaultMaxScore + 1, -5} {
				err := b.Validate(v)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				var verr *model.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Fields[0].Field, ShouldEqual, "score")
			}
		})
	})
}

var scoredAt = time.Unix(1_700_000_000, 0).UTC()

func newStore(ctx context.Context) repository.Store {
	s := repository.NewMemoryStore()
	err := s.Update(ctx, func(tx repository.Tx) error {
		for _, p := range []model.Participant{
			{ID: "p1", Username: "p1", DisplayName: "One"},
			{ID: "p2", Username: "p2", DisplayName: "Two"},
		} {
			if err := tx.UpsertParticipant(p); err != nil {
				return err
			}
		}
		for _, id := range []string{"j1", "j2", "j3"} {
			j := model.Judge{ID: id, Active: true, JudgeProfile: model.JudgeProfile{Username: id, Email: id + "@x.io"}}
			if err := tx.InsertJudge(j); err != nil {
				return err
			}
		}
		for _, s := range []model.Score{
			{JudgeID: "j1", ParticipantID: "p1", Value: 7},
			{JudgeID: "j2", ParticipantID: "p1", Value: 8},
		} {
			s.CreatedAt, s.UpdatedAt = scoredAt, scoredAt
			if err := tx.InsertScore(s); err != nil {
				return err
			}
		}
		return nil
	})
	So(err, ShouldBeNil)
	return s
}

func TestEngine(t *testing.T) {
	Convey("Given an engine over a store with scores", t, func() {
		ctx := context.Background()
		store := newStore(ctx)

		Convey("When aggregating in sum mode", func() {
			e := scoring.NewEngine(store, scoring.ModeSum)
			agg, err := e.Aggregate(ctx, "p1")

			Convey("Then the sum and judge count come back", func() {
				So(err, ShouldBeNil)
				So(agg, ShouldResemble, model.Aggregate{Total: 15, JudgeCount: 2, LastScoreUpdate: scoredAt})
			})
		})

		Convey("When aggregating a participant nobody scored", func() {
			e := scoring.NewEngine(store, scoring.ModeMean)
			agg, err := e.Aggregate(ctx, "p2")

			Convey("Then the aggregate is zero", func() {
				So(err, ShouldBeNil)
				So(agg, ShouldResemble, model.Aggregate{})
			})
		})

		Convey("When aggregating an unknown participant", func() {
			_, err := scoring.NewEngine(store, scoring.ModeSum).Aggregate(ctx, "ghost")

			Convey("Then it is a not found error", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When taking a snapshot", func() {
			snap, err := scoring.NewEngine(store, scoring.ModeMean).Snapshot(ctx)

			Convey("Then every participant has an aggregate", func() {
				So(err, ShouldBeNil)
				So(snap.Participants, ShouldHaveLength, 2)
				So(snap.Aggregates["p1"].Total, ShouldEqual, 7.5)
				So(snap.Aggregates["p1"].LastScoreUpdate, ShouldEqual, scoredAt)
				So(snap.Aggregates["p2"], ShouldResemble, model.Aggregate{})
				So(snap.Aggregates["p2"].LastScoreUpdate.IsZero(), ShouldBeTrue)
				So(snap.TotalJudges, ShouldEqual, 3)
				So(snap.LastUpdated.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the store fails", func() {
			So(store.Close(), ShouldBeNil)
			_, err := scoring.NewEngine(store, scoring.ModeSum).AggregateAll(ctx)

			Convey("Then it is a storage error", func() {
				So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})
}
