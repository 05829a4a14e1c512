package dto

// CreateStudentRequest registers a student profile linked to a user account.
type CreateStudentRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	FullName         string `json:"full_name" validate:"required"`
	CollegeID        string `json:"college_id" validate:"required"`
	EnrollmentNumber string `json:"enrollment_number" validate:"required"`
	Department       string `json:"department" validate:"required"`
	Year             int    `json:"year" validate:"required,min=1,max=6"`
	Email            string `json:"email" validate:"required,email"`
	Phone            string `json:"phone"`
}
