package models

import "time"

// ClearanceType enumerates the supported clearance request categories.
type ClearanceType string

const (
	ClearanceHallTicket ClearanceType = "hall_ticket"
	ClearanceNoDues     ClearanceType = "no_dues"
)

// ValidClearanceType reports whether the value is a recognised request type.
func ValidClearanceType(t ClearanceType) bool {
	return t == ClearanceHallTicket || t == ClearanceNoDues
}

// ApprovalStatus captures the workflow states shared by requests and approvals.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ClearanceRequest is a student's submission for hall-ticket or no-dues
// sign-off. Status is derived from the approval set and is never written
// outside the decision transaction.
type ClearanceRequest struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	Type        ClearanceType  `db:"type" json:"type"`
	Status      ApprovalStatus `db:"status" json:"status"`
	SubmittedAt time.Time      `db:"submitted_at" json:"submitted_at"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	PDFURL      *string        `db:"pdf_url" json:"pdf_url,omitempty"`
}

// ClearanceApproval is one department's (or subject's) decision record
// attached to a request. The set of approvals for a request is fixed at
// creation; only status, remarks, approved_by and approved_at mutate.
type ClearanceApproval struct {
	ID         string         `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"request_id"`
	Department string         `db:"department" json:"department"`
	Subject    bool           `db:"subject" json:"subject"`
	AssignedTo *string        `db:"assigned_to" json:"assigned_to,omitempty"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Remarks    *string        `db:"remarks" json:"remarks,omitempty"`
	ApprovedBy *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	StudentID string
	Status    []ApprovalStatus
	Type      ClearanceType
	Limit     int
	Offset    int
}

// ApprovalFilter constrains approval listing queries. Department and
// AssignedTo combine as an OR, mirroring the staff task-queue lookup.
type ApprovalFilter struct {
	RequestID  string
	Department string
	AssignedTo string
	Status     []ApprovalStatus
	Limit      int
	Offset     int
}
