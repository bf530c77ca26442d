package simulate

import "errors"

// Sentinel kinds for simulation failures.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrInvariant        = errors.New("scoreboard invariant violated")
	ErrNoParticipants   = errors.New("server has no participants")
)
