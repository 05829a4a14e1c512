package dto

import (
	"github.com/educlear/educlear-api/internal/models"
	"github.com/educlear/educlear-api/internal/workflow"
)

// SubjectPayload names one subject/faculty pair for NOC submissions.
type SubjectPayload struct {
	Name       string `json:"name" validate:"required"`
	AssignedTo string `json:"assignedTo" validate:"required"`
}

// CreateRequestPayload creates a clearance request together with its full
// approval set. Subjects drive the subject-wise NOC variant; when present the
// approval slots come from the subject list instead of the department table.
type CreateRequestPayload struct {
	StudentID   string               `json:"studentId" validate:"required"`
	Type        models.ClearanceType `json:"type" validate:"required"`
	DocumentRef string               `json:"documentRef"`
	Subjects    []SubjectPayload     `json:"subjects" validate:"omitempty,dive"`
}

// DecideApprovalPayload carries a staff decision for one approval slot.
// Remarks are mandatory for rejections.
type DecideApprovalPayload struct {
	Decision models.ApprovalStatus `json:"decision" validate:"required,oneof=approved rejected"`
	Remarks  string                `json:"remarks"`
}

// ApprovalQuery mirrors supported approval listing filters. Department and
// AssignedTo combine as an OR to build a staff member's task queue.
type ApprovalQuery struct {
	RequestID  string
	Department string
	AssignedTo string
	Status     []models.ApprovalStatus
}

// RequestDetail bundles a request with its approval records and, for each
// pending slot, whether it may act now.
type RequestDetail struct {
	Request     models.ClearanceRequest      `json:"request"`
	Approvals   []models.ClearanceApproval   `json:"approvals"`
	Eligibility map[string]workflow.Decision `json:"eligibility,omitempty"`
}
