package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrClosed          = errors.New("store closed")
)

// Constraint names shared by every backend.
const (
	ConstraintJudgeID         = "judges_pkey"
	ConstraintJudgeUsername   = "judges_username_key"
	ConstraintJudgeEmail      = "judges_email_key"
	ConstraintParticipantID   = "participants_pkey"
	ConstraintParticipantUser = "participants_username_key"
	ConstraintScorePair       = "scores_judge_participant_key"
)

// UniqueViolationError names the constraint a write collided with.
type UniqueViolationError struct {
	Constraint string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUniqueViolation, e.Constraint)
}

// Is reports kind equality.
func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

// ViolatedConstraint returns the constraint name when err is a unique violation.
func ViolatedConstraint(err error) (string, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv.Constraint, true
	}
	return "", false
}
