package models

import "time"

// UserRole represents the available roles for the RBAC system. Staff roles
// double as clearance departments in the approval workflow.
type UserRole string

const (
	RoleStudent        UserRole = "student"
	RoleTeacher        UserRole = "teacher"
	RoleHOD            UserRole = "hod"
	RoleLibrary        UserRole = "library"
	RoleAccounts       UserRole = "accounts"
	RoleScholarship    UserRole = "scholarship"
	RoleStudentSection UserRole = "student_section"
	RoleHostelBus      UserRole = "hostel_bus"
	RoleTPO            UserRole = "tpo"
	RoleExamCell       UserRole = "exam_cell"
	RoleAdmin          UserRole = "admin"
)

// StaffRoles lists every role allowed to decide approvals.
var StaffRoles = []UserRole{
	RoleTeacher, RoleHOD, RoleLibrary, RoleAccounts, RoleScholarship,
	RoleStudentSection, RoleHostelBus, RoleTPO, RoleExamCell,
}

// ValidRole reports whether the role is a recognised enum value.
func ValidRole(role UserRole) bool {
	switch role {
	case RoleStudent, RoleAdmin:
		return true
	}
	for _, r := range StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleLabel returns the human-readable name used on dashboards and certificates.
func RoleLabel(role UserRole) string {
	labels := map[UserRole]string{
		RoleStudent:        "Student",
		RoleTeacher:        "Teacher",
		RoleHOD:            "Head of Department",
		RoleLibrary:        "Library",
		RoleAccounts:       "Accounts",
		RoleScholarship:    "Scholarship",
		RoleStudentSection: "Student Section",
		RoleHostelBus:      "Hostel/Bus",
		RoleTPO:            "Training & Placement",
		RoleExamCell:       "Exam Cell",
		RoleAdmin:          "Administrator",
	}
	if label, ok := labels[role]; ok {
		return label
	}
	return string(role)
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Department   *string    `db:"department" json:"department,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
