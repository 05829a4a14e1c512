package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/educlear/educlear-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type evaluatorStub struct {
	authorizeErr error
	aggregated   models.ApprovalStatus
}

func (e *evaluatorStub) Authorize(models.ClearanceApproval, models.ClearanceRequest, []models.ClearanceApproval) error {
	return e.authorizeErr
}

func (e *evaluatorStub) Aggregate([]models.ClearanceApproval) models.ApprovalStatus {
	return e.aggregated
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "type", "status", "submitted_at", "completed_at", "pdf_url"})
}

func approvalRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "request_id", "department", "subject", "assigned_to", "status", "remarks", "approved_by", "approved_at", "created_at"})
}

func TestCreateRequestWithApprovalsCommits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO clearance_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO clearance_approvals`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO clearance_approvals`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ClearanceRequest{StudentID: "student-1", Type: models.ClearanceHallTicket}
	approvals := []models.ClearanceApproval{
		{Department: "teacher"},
		{Department: "hod"},
	}
	err := repo.CreateRequestWithApprovals(context.Background(), request, approvals)
	require.NoError(t, err)
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.StatusPending, request.Status)
	for _, approval := range approvals {
		require.NotEmpty(t, approval.ID)
		require.Equal(t, request.ID, approval.RequestID)
		require.Equal(t, models.StatusPending, approval.Status)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequestRollsBackOnApprovalFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO clearance_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO clearance_approvals`).WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	request := &models.ClearanceRequest{StudentID: "student-1", Type: models.ClearanceHallTicket}
	err := repo.CreateRequestWithApprovals(context.Background(), request, []models.ClearanceApproval{{Department: "teacher"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideApprovalFinalizesRequest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM clearance_approvals WHERE id = \$1`).
		WithArgs("ap-2").
		WillReturnRows(approvalRows().AddRow("ap-2", "req-1", "hod", false, nil, "pending", nil, nil, nil, now))
	mock.ExpectQuery(`SELECT (.+) FROM clearance_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(requestRows().AddRow("req-1", "student-1", "hall_ticket", "pending", now, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM clearance_approvals WHERE request_id = \$1`).
		WithArgs("req-1").
		WillReturnRows(approvalRows().
			AddRow("ap-1", "req-1", "teacher", false, nil, "approved", nil, "user-t", now, now).
			AddRow("ap-2", "req-1", "hod", false, nil, "pending", nil, nil, nil, now))
	mock.ExpectExec(`UPDATE clearance_approvals`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE clearance_requests`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	eval := &evaluatorStub{aggregated: models.StatusApproved}
	approval, request, err := repo.DecideApproval(context.Background(), DecideApprovalParams{
		ApprovalID: "ap-2",
		Decision:   models.StatusApproved,
		DecidedBy:  "user-h",
		DecidedAt:  now,
	}, eval)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, approval.Status)
	require.Equal(t, models.StatusApproved, request.Status)
	require.NotNil(t, request.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideApprovalConcurrentLoserGetsNoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM clearance_approvals WHERE id = \$1`).
		WithArgs("ap-1").
		WillReturnRows(approvalRows().AddRow("ap-1", "req-1", "teacher", false, nil, "pending", nil, nil, nil, now))
	mock.ExpectQuery(`SELECT (.+) FROM clearance_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(requestRows().AddRow("req-1", "student-1", "hall_ticket", "pending", now, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM clearance_approvals WHERE request_id = \$1`).
		WithArgs("req-1").
		WillReturnRows(approvalRows().AddRow("ap-1", "req-1", "teacher", false, nil, "pending", nil, nil, nil, now))
	// The guarded update matches zero rows when another decider won the race.
	mock.ExpectExec(`UPDATE clearance_approvals`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	eval := &evaluatorStub{aggregated: models.StatusPending}
	_, _, err := repo.DecideApproval(context.Background(), DecideApprovalParams{
		ApprovalID: "ap-1",
		Decision:   models.StatusApproved,
		DecidedBy:  "user-t",
		DecidedAt:  now,
	}, eval)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideApprovalAbortsWhenEvaluatorRefuses(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM clearance_approvals WHERE id = \$1`).
		WithArgs("ap-1").
		WillReturnRows(approvalRows().AddRow("ap-1", "req-1", "hod", false, nil, "pending", nil, nil, nil, now))
	mock.ExpectQuery(`SELECT (.+) FROM clearance_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(requestRows().AddRow("req-1", "student-1", "hall_ticket", "pending", now, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM clearance_approvals WHERE request_id = \$1`).
		WithArgs("req-1").
		WillReturnRows(approvalRows().AddRow("ap-1", "req-1", "hod", false, nil, "pending", nil, nil, nil, now))
	mock.ExpectRollback()

	refused := errors.New("predecessor pending")
	eval := &evaluatorStub{authorizeErr: refused}
	_, _, err := repo.DecideApproval(context.Background(), DecideApprovalParams{
		ApprovalID: "ap-1",
		Decision:   models.StatusApproved,
		DecidedBy:  "user-h",
		DecidedAt:  now,
	}, eval)
	require.ErrorIs(t, err, refused)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRequestPDFURLMissingRequest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRepository(db)

	mock.ExpectExec(`UPDATE clearance_requests SET pdf_url`).
		WithArgs("missing", "rendered/missing.pdf").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRequestPDFURL(context.Background(), "missing", "rendered/missing.pdf")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
