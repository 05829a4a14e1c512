package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/educlear/educlear-api/internal/models"
)

func approval(dept models.UserRole, status models.ApprovalStatus) models.ClearanceApproval {
	return models.ClearanceApproval{
		ID:         "ap-" + string(dept),
		Department: string(dept),
		Status:     status,
	}
}

func subjectApproval(name, assignedTo string, status models.ApprovalStatus) models.ClearanceApproval {
	return models.ClearanceApproval{
		ID:         "ap-" + name,
		Department: name,
		Subject:    true,
		AssignedTo: &assignedTo,
		Status:     status,
	}
}

func TestHallTicketTeacherActsFirst(t *testing.T) {
	siblings := []models.ClearanceApproval{
		approval(models.RoleTeacher, models.StatusPending),
		approval(models.RoleHOD, models.StatusPending),
	}

	decision := CanApprove(siblings[0], models.ClearanceHallTicket, siblings)
	require.True(t, decision.Allowed)

	decision = CanApprove(siblings[1], models.ClearanceHallTicket, siblings)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonPredecessorPending, decision.Reason)
}

func TestHallTicketHODAfterTeacherApproves(t *testing.T) {
	siblings := []models.ClearanceApproval{
		approval(models.RoleTeacher, models.StatusApproved),
		approval(models.RoleHOD, models.StatusPending),
	}

	decision := CanApprove(siblings[1], models.ClearanceHallTicket, siblings)
	require.True(t, decision.Allowed)
}

func TestHallTicketHODBlockedAfterTeacherRejects(t *testing.T) {
	siblings := []models.ClearanceApproval{
		approval(models.RoleTeacher, models.StatusRejected),
		approval(models.RoleHOD, models.StatusPending),
	}

	decision := CanApprove(siblings[1], models.ClearanceHallTicket, siblings)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonPredecessorPending, decision.Reason)
}

func TestNoDuesIndependentDepartmentsActAnytime(t *testing.T) {
	siblings := make([]models.ClearanceApproval, 0, 7)
	for _, dept := range DepartmentsForType(models.ClearanceNoDues) {
		siblings = append(siblings, approval(dept, models.StatusPending))
	}

	for _, dept := range NoDuesIndependent() {
		var target models.ClearanceApproval
		for _, sibling := range siblings {
			if sibling.Department == string(dept) {
				target = sibling
			}
		}
		decision := CanApprove(target, models.ClearanceNoDues, siblings)
		require.True(t, decision.Allowed, "department %s should be independent", dept)
	}
}

func TestNoDuesSequentialChainOrder(t *testing.T) {
	siblings := make([]models.ClearanceApproval, 0, 7)
	for _, dept := range DepartmentsForType(models.ClearanceNoDues) {
		siblings = append(siblings, approval(dept, models.StatusPending))
	}

	findIdx := func(dept models.UserRole) int {
		for i, sibling := range siblings {
			if sibling.Department == string(dept) {
				return i
			}
		}
		t.Fatalf("missing department %s", dept)
		return -1
	}

	// student_section heads the chain.
	decision := CanApprove(siblings[findIdx(models.RoleStudentSection)], models.ClearanceNoDues, siblings)
	require.True(t, decision.Allowed)

	// scholarship and accounts are blocked until their predecessors approve.
	decision = CanApprove(siblings[findIdx(models.RoleScholarship)], models.ClearanceNoDues, siblings)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonPredecessorPending, decision.Reason)

	decision = CanApprove(siblings[findIdx(models.RoleAccounts)], models.ClearanceNoDues, siblings)
	require.False(t, decision.Allowed)

	siblings[findIdx(models.RoleStudentSection)].Status = models.StatusApproved
	decision = CanApprove(siblings[findIdx(models.RoleScholarship)], models.ClearanceNoDues, siblings)
	require.True(t, decision.Allowed)

	// accounts still waits on scholarship.
	decision = CanApprove(siblings[findIdx(models.RoleAccounts)], models.ClearanceNoDues, siblings)
	require.False(t, decision.Allowed)

	siblings[findIdx(models.RoleScholarship)].Status = models.StatusApproved
	decision = CanApprove(siblings[findIdx(models.RoleAccounts)], models.ClearanceNoDues, siblings)
	require.True(t, decision.Allowed)
}

func TestSequentialChainIgnoresIndependentProgress(t *testing.T) {
	siblings := make([]models.ClearanceApproval, 0, 7)
	for _, dept := range DepartmentsForType(models.ClearanceNoDues) {
		status := models.StatusPending
		for _, ind := range NoDuesIndependent() {
			if dept == ind {
				status = models.StatusApproved
			}
		}
		siblings = append(siblings, approval(dept, status))
	}

	var scholarship models.ClearanceApproval
	for _, sibling := range siblings {
		if sibling.Department == string(models.RoleScholarship) {
			scholarship = sibling
		}
	}
	decision := CanApprove(scholarship, models.ClearanceNoDues, siblings)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonPredecessorPending, decision.Reason)
}

func TestSubjectSlotsAlwaysIndependent(t *testing.T) {
	siblings := []models.ClearanceApproval{
		subjectApproval("Data Structures", "user-1", models.StatusPending),
		subjectApproval("Operating Systems", "user-2", models.StatusPending),
	}

	for _, sibling := range siblings {
		decision := CanApprove(sibling, models.ClearanceNoDues, siblings)
		require.True(t, decision.Allowed)
	}
}

func TestUnknownDepartmentRejected(t *testing.T) {
	siblings := []models.ClearanceApproval{
		approval(models.RoleTeacher, models.StatusPending),
		approval(models.RoleHOD, models.StatusPending),
	}
	stranger := approval(models.RoleLibrary, models.StatusPending)

	decision := CanApprove(stranger, models.ClearanceHallTicket, siblings)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotInWorkflow, decision.Reason)

	admin := models.ClearanceApproval{Department: "registrar", Status: models.StatusPending}
	decision = CanApprove(admin, models.ClearanceNoDues, siblings)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotInWorkflow, decision.Reason)
}

func TestSubjectTargetsBuildIndependentSlots(t *testing.T) {
	targets := SubjectTargets([]SubjectInput{
		{Name: "Mathematics III", AssignedTo: "user-9"},
		{Name: "Compiler Design", AssignedTo: "user-3"},
	})
	require.Len(t, targets, 2)
	require.True(t, targets[0].IsSubject())
	require.Equal(t, "Mathematics III", targets[0].Key())
	require.Equal(t, "user-9", targets[0].AssignedTo)
}

func TestTargetsForType(t *testing.T) {
	hall := TargetsForType(models.ClearanceHallTicket)
	require.Len(t, hall, 2)
	require.Equal(t, string(models.RoleTeacher), hall[0].Key())
	require.Equal(t, string(models.RoleHOD), hall[1].Key())

	noDues := TargetsForType(models.ClearanceNoDues)
	require.Len(t, noDues, 7)
}
