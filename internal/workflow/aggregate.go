package workflow

import (
	"github.com/educlear/educlear-api/internal/models"
)

// Aggregate reduces a request's full approval set to its overall status.
// A single rejection vetoes the request; approval requires every slot to be
// approved; anything else is pending. Pure and order-insensitive.
func Aggregate(approvals []models.ClearanceApproval) models.ApprovalStatus {
	if len(approvals) == 0 {
		return models.StatusPending
	}

	allApproved := true
	for _, approval := range approvals {
		switch approval.Status {
		case models.StatusRejected:
			return models.StatusRejected
		case models.StatusApproved:
		default:
			allApproved = false
		}
	}

	if allApproved {
		return models.StatusApproved
	}
	return models.StatusPending
}
