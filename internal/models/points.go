package models

import "time"

// PointsCategory classifies an adjustment for reporting.
type PointsCategory string

const (
	CategoryAcademic      PointsCategory = "Academic"
	CategoryBehavior      PointsCategory = "Behavior"
	CategoryParticipation PointsCategory = "Participation"
	CategoryLeadership    PointsCategory = "Leadership"
	CategoryOther         PointsCategory = "Other"
)

// Valid reports whether the category is part of the enumeration.
func (c PointsCategory) Valid() bool {
	switch c {
	case CategoryAcademic, CategoryBehavior, CategoryParticipation, CategoryLeadership, CategoryOther:
		return true
	}
	return false
}

// PointsHistoryEntry is one immutable row of the audit ledger. It records
// both sides of the balance so entries chain into a verifiable sequence.
type PointsHistoryEntry struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	TeacherID      string         `db:"teacher_id" json:"teacher_id"`
	PointsChange   int            `db:"points_change" json:"points_change"`
	PreviousPoints int            `db:"previous_points" json:"previous_points"`
	NewPoints      int            `db:"new_points" json:"new_points"`
	Category       PointsCategory `db:"category" json:"category"`
	Reason         string         `db:"reason" json:"reason"`
	Comment        string         `db:"comment" json:"comment,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Appraisal is the denormalized reporting record of the same adjustment
// event, written in the same transaction as the history entry.
type Appraisal struct {
	ID        string         `db:"id" json:"id"`
	StudentID string         `db:"student_id" json:"student_id"`
	TeacherID string         `db:"teacher_id" json:"teacher_id"`
	Points    int            `db:"points" json:"points"`
	Category  PointsCategory `db:"category" json:"category"`
	Comment   string         `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// AdjustmentResult reports the balance transition of a committed adjustment.
type AdjustmentResult struct {
	PreviousPoints int `json:"previous_points"`
	NewPoints      int `json:"new_points"`
}

// CategoryTotal is one distribution bucket: SUM(points_change) per category.
type CategoryTotal struct {
	Category PointsCategory `db:"category" json:"category"`
	Total    int            `db:"total" json:"total"`
}

// StudentSummary bundles a student with recent ledger activity and the
// per-category distribution, descending by total.
type StudentSummary struct {
	Student      StudentDetail        `json:"student"`
	History      []PointsHistoryEntry `json:"history"`
	Distribution []CategoryTotal      `json:"distribution"`
}
