package workflow

import (
	"github.com/educlear/educlear-api/internal/models"
)

// Decision is the outcome of an eligibility check. Reason is populated only
// when the action is blocked, in a form suitable for end users.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

const (
	ReasonNotInWorkflow      = "department not in workflow"
	ReasonPredecessorPending = "previous department approval pending"
)

// Target identifies one required sign-off slot for a request: either a fixed
// department role, or a subject with an individually assigned approver
// (subject-wise NOC submissions).
type Target struct {
	Department models.UserRole
	Subject    string
	AssignedTo string
}

// IsSubject reports whether the target is a subject/faculty pair.
func (t Target) IsSubject() bool {
	return t.Subject != ""
}

// Key returns the value stored in the approval record's department column.
func (t Target) Key() string {
	if t.IsSubject() {
		return t.Subject
	}
	return string(t.Department)
}

// HallTicketChain is the strict two-step sequential chain for hall tickets.
func HallTicketChain() []models.UserRole {
	return []models.UserRole{models.RoleTeacher, models.RoleHOD}
}

// NoDuesIndependent lists departments that may approve a no-dues request at
// any time, with no ordering dependency.
func NoDuesIndependent() []models.UserRole {
	return []models.UserRole{models.RoleLibrary, models.RoleHostelBus, models.RoleTPO, models.RoleExamCell}
}

// NoDuesSequential lists the ordered chain for no-dues requests. Each
// department may act only after its immediate predecessor has approved.
func NoDuesSequential() []models.UserRole {
	return []models.UserRole{models.RoleStudentSection, models.RoleScholarship, models.RoleAccounts}
}

// DepartmentsForType returns the full ordered department list for a request
// type. Subject-wise targets are dynamic and not covered here; see
// SubjectTargets.
func DepartmentsForType(t models.ClearanceType) []models.UserRole {
	if t == models.ClearanceHallTicket {
		return HallTicketChain()
	}
	return append(NoDuesIndependent(), NoDuesSequential()...)
}

// TargetsForType expands the department list into approval targets.
func TargetsForType(t models.ClearanceType) []Target {
	departments := DepartmentsForType(t)
	targets := make([]Target, 0, len(departments))
	for _, dept := range departments {
		targets = append(targets, Target{Department: dept})
	}
	return targets
}

// SubjectInput names one subject/faculty pair for a NOC submission.
type SubjectInput struct {
	Name       string
	AssignedTo string
}

// SubjectTargets builds the dynamic target list for a subject-wise NOC
// submission. Every subject is independent and requires its assigned approver.
func SubjectTargets(subjects []SubjectInput) []Target {
	targets := make([]Target, 0, len(subjects))
	for _, s := range subjects {
		targets = append(targets, Target{Subject: s.Name, AssignedTo: s.AssignedTo})
	}
	return targets
}

// CanApprove evaluates whether the department owning the given approval slot
// may approve now, given the current state of its sibling approvals. The
// predicate is pure: callers must pass a fresh sibling snapshot, and the
// lifecycle manager re-evaluates it inside the decision transaction.
func CanApprove(approval models.ClearanceApproval, reqType models.ClearanceType, siblings []models.ClearanceApproval) Decision {
	if approval.Subject {
		// Subject slots are always independent.
		return Decision{Allowed: true}
	}

	department := models.UserRole(approval.Department)

	if reqType == models.ClearanceHallTicket {
		return checkChain(department, HallTicketChain(), siblings)
	}

	for _, dept := range NoDuesIndependent() {
		if dept == department {
			return Decision{Allowed: true}
		}
	}
	for _, dept := range NoDuesSequential() {
		if dept == department {
			return checkChain(department, NoDuesSequential(), siblings)
		}
	}

	return Decision{Allowed: false, Reason: ReasonNotInWorkflow}
}

func checkChain(department models.UserRole, chain []models.UserRole, siblings []models.ClearanceApproval) Decision {
	index := -1
	for i, dept := range chain {
		if dept == department {
			index = i
			break
		}
	}
	if index == -1 {
		return Decision{Allowed: false, Reason: ReasonNotInWorkflow}
	}
	if index == 0 {
		return Decision{Allowed: true}
	}

	predecessor := chain[index-1]
	for _, sibling := range siblings {
		if sibling.Subject {
			continue
		}
		if models.UserRole(sibling.Department) == predecessor {
			if sibling.Status == models.StatusApproved {
				return Decision{Allowed: true}
			}
			return Decision{Allowed: false, Reason: ReasonPredecessorPending}
		}
	}
	return Decision{Allowed: false, Reason: ReasonPredecessorPending}
}
