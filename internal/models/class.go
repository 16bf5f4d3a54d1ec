package models

import "time"

// Class represents a class or section owning zero or more students.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Grade       string    `db:"grade" json:"grade"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Grade     string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassDetails is the per-class rollup: count, mean balance, and the most
// recently added students. AveragePoints is 0 for an empty class.
type ClassDetails struct {
	Class
	StudentCount   int             `json:"student_count"`
	AveragePoints  float64         `json:"average_points"`
	RecentStudents []StudentDetail `json:"recent_students"`
}
