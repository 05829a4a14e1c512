package models

import "time"

// Student represents a learner profile linked to a user account.
type Student struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	FullName         string    `db:"full_name" json:"full_name"`
	CollegeID        string    `db:"college_id" json:"college_id"`
	EnrollmentNumber string    `db:"enrollment_number" json:"enrollment_number"`
	Department       string    `db:"department" json:"department"`
	Year             int       `db:"year" json:"year"`
	Email            string    `db:"email" json:"email"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	Department string
	Year       int
	Page       int
	PageSize   int
}
