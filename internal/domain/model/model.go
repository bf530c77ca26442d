// Package model contains domain models passed between layers.
package model

import "time"

// Judge is a registered scorer. PasswordHash is opaque outside the auth adapter.
type Judge struct {
	ID           string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	JudgeProfile
}

// JudgeProfile holds the descriptive, user-supplied part of a judge record.
type JudgeProfile struct {
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Address          string `json:"address,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	ZipCode          string `json:"zip_code,omitempty"`
	BarNumber        string `json:"bar_number"`
	LicenseState     string `json:"license_state"`
	YearsExperience  *int   `json:"years_experience,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty"`
	EmergencyPhone   string `json:"emergency_phone,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// Participant is a scored subject. The ledger only reads participants.
type Participant struct {
	ID          string `yaml:"id"`
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// Identity is the authenticated judge a ledger call acts for.
type Identity struct {
	JudgeID string
}

// Score is the single ledger row for a (judge, participant) pair.
type Score struct {
	JudgeID       string
	ParticipantID string
	Value         int
	Comment       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Submission is a judge's request to set a score.
type Submission struct {
	ParticipantID string
	Value         int
	Comment       string
}

// Outcome tells whether a submission created or replaced a score.
type Outcome string

// Submission outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Result is what SubmitScore returns.
type Result struct {
	Outcome Outcome
	Score   Score
}

// Tally is the raw per-participant accumulation read from storage.
type Tally struct {
	Sum         int64
	Count       int
	LastUpdated time.Time
}

// Aggregate is a participant's derived total and number of distinct judges.
type Aggregate struct {
	Total      float64
	JudgeCount int
	// LastScoreUpdate is zero when nobody scored the participant.
	LastScoreUpdate time.Time
}

// Standing is one ranked row of the scoreboard.
type Standing struct {
	Participant Participant
	Aggregate
	Rank int
}

// ScoreView is a score joined with the display names around it.
type ScoreView struct {
	Score
	JudgeName       string
	ParticipantName string
}

// Stats summarises the ledger for the admin overview.
type Stats struct {
	Judges       int
	Participants int
	Scores       int
	AverageScore float64
}
