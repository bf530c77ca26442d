// Package ledger records judge scores, one row per (judge, participant).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/logger"
	"github.com/okian/judgeboard/pkg/metrics"
)

// MaxCommentLength bounds a score comment, in runes.
const MaxCommentLength = 2000

// Ledger is the write path for scores and its read-side listings.
type Ledger struct {
	store  repository.Store
	bounds scoring.Bounds
	now    func() time.Time
	logger logger.Logger
}

// New returns a Ledger over store.
func New(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		bounds: scoring.DefaultBounds(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Named("ledger")
	}
	return l
}

// Bounds reports the accepted score range.
func (l *Ledger) Bounds() scoring.Bounds { return l.bounds }

// SubmitScore creates or replaces id's score for the submitted participant.
// Input is validated before any write. A lost insert race on the pair is
// retried once, which then takes the update branch.
func (l *Ledger) SubmitScore(ctx context.Context, id model.Identity, sub model.Submission) (model.Result, error) {
	const op = "ledger.submit"

	sub.Comment = strings.TrimSpace(sub.Comment)
	if err := l.validate(id, sub); err != nil {
		metrics.RecordLedgerError("validation")
		return model.Result{}, err
	}

	res, err := l.submitOnce(ctx, id, sub)
	if errors.Is(err, model.ErrConflict) {
		metrics.RecordScoreConflictRetry()
		l.logger.Debug(ctx, "score pair conflict, retrying",
			logger.String("judge_id", id.JudgeID), logger.String("participant_id", sub.ParticipantID))
		res, err = l.submitOnce(ctx, id, sub)
	}
	if err != nil {
		kind := model.KindOf(err)
		if kind == nil {
			err = model.E(op, model.ErrStorage, err)
			kind = model.ErrStorage
		}
		if errors.Is(kind, model.ErrStorage) {
			l.logger.Error(ctx, "score write failed",
				logger.String("judge_id", id.JudgeID),
				logger.String("participant_id", sub.ParticipantID),
				logger.Error(err))
		}
		metrics.RecordLedgerError(kindLabel(kind))
		return model.Result{}, err
	}

	metrics.RecordScoreSubmitted(string(res.Outcome))
	return res, nil
}

func (l *Ledger) validate(id model.Identity, sub model.Submission) error {
	verr := &model.ValidationError{}
	if strings.TrimSpace(id.JudgeID) == "" {
		verr.Add("judge_id", "is required")
	}
	if strings.TrimSpace(sub.ParticipantID) == "" {
		verr.Add("participant_id", "is required")
	}
	if err := l.bounds.Validate(sub.Value); err != nil {
		var bv *model.ValidationError
		if errors.As(err, &bv) {
			verr.Fields = append(verr.Fields, bv.Fields...)
		}
	}
	if n := utf8.RuneCountInString(sub.Comment); n > MaxCommentLength {
		verr.Add("comment", fmt.Sprintf("must be at most %d characters", MaxCommentLength))
	}
	return verr.OrNil()
}

func (l *Ledger) submitOnce(ctx context.Context, id model.Identity, sub model.Submission) (model.Result, error) {
	const op = "ledger.submit"
	var res model.Result

	err := l.store.Update(ctx, func(tx repository.Tx) error {
		j, err := tx.Judge(id.JudgeID)
		if err != nil {
			return notFound(op, "judge", id.JudgeID, err)
		}
		if !j.Active {
			return model.NotFound(op, "active judge", id.JudgeID)
		}
		if _, err := tx.Participant(sub.ParticipantID); err != nil {
			return notFound(op, "participant", sub.ParticipantID, err)
		}

		now := l.now().UTC()
		cur, err := tx.LockScore(id.JudgeID, sub.ParticipantID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s := model.Score{
				JudgeID:       id.JudgeID,
				ParticipantID: sub.ParticipantID,
				Value:         sub.Value,
				Comment:       sub.Comment,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertScore(s); err != nil {
				return conflict(op, err)
			}
			res = model.Result{Outcome: model.OutcomeCreated, Score: s}
			return nil
		case err != nil:
			return err
		}

		cur.Value = sub.Value
		cur.Comment = sub.Comment
		cur.UpdatedAt = now
		if err := tx.UpdateScore(cur); err != nil {
			return err
		}
		res = model.Result{Outcome: model.OutcomeUpdated, Score: cur}
		return nil
	})
	return res, err
}

func notFound(op, what, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NotFound(op, what, id)
	}
	return err
}

func conflict(op string, err error) error {
	if c, ok := repository.ViolatedConstraint(err); ok && c == repository.ConstraintScorePair {
		return model.E(op, model.ErrConflict, err)
	}
	return err
}

// JudgeScore returns a judge's current score for a participant.
func (l *Ledger) JudgeScore(ctx context.Context, judgeID, participantID string) (model.Score, error) {
	const op = "ledger.judge_score"
	var out model.Score
	err := l.store.View(ctx, func(r repository.Reader) error {
		s, err := r.Score(judgeID, participantID)
		if err != nil {
			return notFound(op, "score", judgeID+"/"+participantID, err)
		}
		out = s
		return nil
	})
	return out, l.readErr(ctx, op, err)
}

// ParticipantScores lists every score a participant received, newest first.
func (l *Ledger) ParticipantScores(ctx context.Context, participantID string) ([]model.ScoreView, error) {
	const op = "ledger.participant_scores"
	var out []model.ScoreView
	err := l.store.View(ctx, func(r repository.Reader) error {
		if _, err := r.Participant(participantID); err != nil {
			return notFound(op, "participant", participantID, err)
		}
		var err error
		out, err = r.ScoresByParticipant(participantID)
		return err
	})
	return out, l.readErr(ctx, op, err)
}

// JudgeScores lists a judge's most recent scores.
func (l *Ledger) JudgeScores(ctx context.Context, judgeID string, limit int) ([]model.ScoreView, error) {
	const op = "ledger.judge_scores"
	var out []model.ScoreView
	err := l.store.View(ctx, func(r repository.Reader) error {
		if _, err := r.Judge(judgeID); err != nil {
			return notFound(op, "judge", judgeID, err)
		}
		var err error
		out, err = r.ScoresByJudge(judgeID, limit)
		return err
	})
	return out, l.readErr(ctx, op, err)
}

// RecentActivity lists the latest score changes across all judges.
func (l *Ledger) RecentActivity(ctx context.Context, limit int) ([]model.ScoreView, error) {
	const op = "ledger.recent_activity"
	var out []model.ScoreView
	err := l.store.View(ctx, func(r repository.Reader) error {
		var err error
		out, err = r.RecentScores(limit)
		return err
	})
	return out, l.readErr(ctx, op, err)
}

// Stats summarises the ledger.
func (l *Ledger) Stats(ctx context.Context) (model.Stats, error) {
	const op = "ledger.stats"
	var out model.Stats
	err := l.store.View(ctx, func(r repository.Reader) error {
		var err error
		out, err = r.Stats()
		return err
	})
	if err == nil {
		metrics.UpdateDirectorySize(out.Judges, out.Participants, out.Scores)
	}
	return out, l.readErr(ctx, op, err)
}

func (l *Ledger) readErr(ctx context.Context, op string, err error) error {
	if err == nil || model.KindOf(err) != nil {
		return err
	}
	l.logger.Error(ctx, "ledger read failed", logger.String("op", op), logger.Error(err))
	return model.E(op, model.ErrStorage, err)
}

func kindLabel(kind error) string {
	switch {
	case errors.Is(kind, model.ErrValidation):
		return "validation"
	case errors.Is(kind, model.ErrNotFound):
		return "not_found"
	case errors.Is(kind, model.ErrConflict):
		return "conflict"
	case errors.Is(kind, model.ErrDuplicate):
		return "duplicate"
	default:
		return "storage"
	}
}
