package api

import (
	"math"
	"time"

	service "github.com/okian/judgeboard/internal/app"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/ranking"
)

type standingDTO struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"displayName"`
	TotalPoints     float64    `json:"totalPoints"`
	JudgeCount      int        `json:"judgeCount"`
	LastScoreUpdate *time.Time `json:"lastScoreUpdate"`
	Rank            int        `json:"rank"`
}

type participantDTO struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"displayName"`
	Category        string     `json:"category,omitempty"`
	Description     string     `json:"description,omitempty"`
	TotalPoints     float64    `json:"totalPoints"`
	JudgeCount      int        `json:"judgeCount"`
	LastScoreUpdate *time.Time `json:"lastScoreUpdate"`
}

type scoreDTO struct {
	JudgeID         string    `json:"judgeId"`
	JudgeName       string    `json:"judgeName,omitempty"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName,omitempty"`
	Score           int       `json:"score"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type statsDTO struct {
	Judges       int     `json:"judges"`
	Participants int     `json:"participants"`
	Scores       int     `json:"scores"`
	AverageScore float64 `json:"averageScore"`
}

type overviewDTO struct {
	Stats          statsDTO      `json:"stats"`
	RecentActivity []scoreDTO    `json:"recentActivity"`
	Scoreboard     []standingDTO `json:"scoreboard"`
}

// points rounds a total for display; mean totals stay unrounded internally.
func points(total float64) float64 {
	return math.Round(total*100) / 100
}

func standings(b ranking.Board) []standingDTO {
	out := make([]standingDTO, len(b.Standings))
	for i, s := range b.Standings {
		out[i] = standingDTO{
			ID:              s.Participant.ID,
			Username:        s.Participant.Username,
			DisplayName:     s.Participant.DisplayName,
			TotalPoints:     points(s.Total),
			JudgeCount:      s.JudgeCount,
			LastScoreUpdate: timeOrNil(s.LastScoreUpdate),
			Rank:            s.Rank,
		}
	}
	return out
}

func boardMetadata(b ranking.Board, now time.Time) *metadata {
	m := &metadata{
		TotalParticipants: b.TotalParticipants,
		TotalJudges:       b.TotalJudges,
		Timestamp:         now.UTC(),
	}
	m.LastUpdated = timeOrNil(b.LastUpdated)
	return m
}

func participantFrom(p service.ParticipantSummary) participantDTO {
	return participantDTO{
		ID:              p.ID,
		Username:        p.Username,
		DisplayName:     p.DisplayName,
		Category:        p.Category,
		Description:     p.Description,
		TotalPoints:     points(p.Total),
		JudgeCount:      p.JudgeCount,
		LastScoreUpdate: timeOrNil(p.LastScoreUpdate),
	}
}

// timeOrNil renders a zero time as JSON null.
func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func scoreFrom(s model.Score) scoreDTO {
	return scoreDTO{
		JudgeID:       s.JudgeID,
		ParticipantID: s.ParticipantID,
		Score:         s.Value,
		Comment:       s.Comment,
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
}

func scoreViews(views []model.ScoreView) []scoreDTO {
	out := make([]scoreDTO, len(views))
	for i, v := range views {
		out[i] = scoreFrom(v.Score)
		out[i].JudgeName = v.JudgeName
		out[i].ParticipantName = v.ParticipantName
	}
	return out
}
