// Package simulate drives a running judgeboard server the way real traffic
// would: it registers judges, logs them in, fires concurrent score
// submissions (including repeated pairs), polls the scoreboard meanwhile
// and checks every board it sees.
package simulate

import (
	"runtime"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Judges      int           // Judges to register
	Submissions int           // Score submissions to send
	RepeatRatio float64       // Share of submissions that re-score an already planned pair
	Workers     int           // Concurrent submitters
	Rate        float64       // Submissions per second across workers; 0 means unlimited
	PollEvery   time.Duration // Scoreboard poll period while submitting
	Timeout     time.Duration // HTTP request timeout
	Seed        uint64        // Plan seed; 0 picks one from the clock
	Verbose     bool          // Log every failed request
}

// DefaultConfig returns the settings used when no flag overrides them.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9080",
		Judges:      8,
		Submissions: 2000,
		RepeatRatio: 0.3,
		Workers:     runtime.NumCPU() * 2,
		PollEvery:   250 * time.Millisecond,
		Timeout:     10 * time.Second,
	}
}

// Standing mirrors one scoreboard row.
type Standing struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	TotalPoints float64 `json:"totalPoints"`
	JudgeCount  int     `json:"judgeCount"`
	Rank        int     `json:"rank"`
}

// Metadata mirrors the scoreboard metadata block.
type Metadata struct {
	TotalParticipants int        `json:"totalParticipants"`
	TotalJudges       int        `json:"totalJudges"`
	LastUpdated       *time.Time `json:"lastUpdated"`
	Timestamp         time.Time  `json:"timestamp"`
}

// Board is one polled scoreboard.
type Board struct {
	Standings []Standing
	Metadata  Metadata
}

// Stats holds run statistics.
type Stats struct {
	JudgesRegistered int
	Submitted        int
	Created          int
	Updated          int
	Failed           int
	Polls            int
	PollViolations   int
	Duration         time.Duration
}
