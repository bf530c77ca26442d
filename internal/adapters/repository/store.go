// Package repository holds the judge, participant and score storage behind
// scoped transactions.
package repository

import (
	"context"
	"time"

	"github.com/okian/judgeboard/internal/domain/model"
)

// Reader exposes the read side of one consistent snapshot. Methods return
// ErrNotFound for a missing single record.
type Reader interface {
	Judge(id string) (model.Judge, error)
	JudgeByUsername(username string) (model.Judge, error)
	JudgeByEmail(email string) (model.Judge, error)
	Specializations(judgeID string) ([]string, error)
	CourtAssignments(judgeID string) ([]string, error)
	CountJudges() (int, error)

	Participant(id string) (model.Participant, error)
	// Participants are ordered by display name (byte-wise) then id.
	Participants() ([]model.Participant, error)

	Score(judgeID, participantID string) (model.Score, error)
	// Tally of a participant without scores is the zero Tally.
	Tally(participantID string) (model.Tally, error)
	// Tallies holds an entry only for participants with at least one score.
	Tallies() (map[string]model.Tally, error)
	// LastScoreUpdate is the zero time when no score exists.
	LastScoreUpdate() (time.Time, error)

	// Score listings are ordered by updated time, newest first. A limit <= 0
	// means no limit.
	ScoresByParticipant(participantID string) ([]model.ScoreView, error)
	ScoresByJudge(judgeID string, limit int) ([]model.ScoreView, error)
	RecentScores(limit int) ([]model.ScoreView, error)
	Stats() (model.Stats, error)
}

// Tx is a Reader that may also write. Unique collisions surface as
// *UniqueViolationError.
type Tx interface {
	Reader

	InsertJudge(j model.Judge) error
	InsertSpecialization(judgeID, tag string) error
	InsertCourtAssignment(judgeID, tag string) error
	UpsertParticipant(p model.Participant) error

	// LockScore reads the pair's score and holds it until the transaction ends.
	LockScore(judgeID, participantID string) (model.Score, error)
	InsertScore(s model.Score) error
	UpdateScore(s model.Score) error
}

// Store runs callbacks inside transactions. Update commits only when fn
// returns nil; any error or panic rolls every write back.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}
