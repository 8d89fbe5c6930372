package models

import "time"

const (
	IdeaStatusSubmitted = "submitted"
	IdeaStatusEvaluated = "evaluated"
)

type Idea struct {
	ID          string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerEmail  string   `gorm:"type:varchar(255);index;not null" json:"owner_email"`
	Title       string   `gorm:"not null" json:"title"`
	Slug        string   `gorm:"type:varchar(160);uniqueIndex;not null" json:"slug"`
	Description string   `gorm:"type:text;not null" json:"description"`
	Category    string   `gorm:"type:varchar(64);index" json:"category"`
	FundingGoal *float64 `json:"funding_goal,omitempty"`
	Status      string   `gorm:"type:varchar(16);not null;default:'submitted'" json:"status"`

	// 🤖 AI evaluation, empty until the idea is evaluated
	Score           *int       `json:"score,omitempty"`
	Summary         string     `gorm:"type:text" json:"summary,omitempty"`
	Strengths       []string   `gorm:"type:text;serializer:json" json:"strengths,omitempty"`
	Weaknesses      []string   `gorm:"type:text;serializer:json" json:"weaknesses,omitempty"`
	Recommendations []string   `gorm:"type:text;serializer:json" json:"recommendations,omitempty"`
	EvaluatedAt     *time.Time `json:"evaluated_at,omitempty"`
	EvaluationModel string     `gorm:"type:varchar(64)" json:"evaluation_model,omitempty"`

	Timestamps
}
