package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/educlear/educlear-api/internal/models"
)

// DecisionEvaluator re-checks workflow policy and recomputes request status
// against the fresh, locked sibling snapshot inside the decision transaction.
type DecisionEvaluator interface {
	Authorize(approval models.ClearanceApproval, request models.ClearanceRequest, siblings []models.ClearanceApproval) error
	Aggregate(siblings []models.ClearanceApproval) models.ApprovalStatus
}

// ClearanceRepository persists clearance requests and their approval sets.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

const requestColumns = `id, student_id, type, status, submitted_at, completed_at, pdf_url`

const approvalColumns = `id, request_id, department, subject, assigned_to, status, remarks, approved_by, approved_at, created_at`

// CreateRequestWithApprovals inserts the request row and one approval row per
// target in a single transaction. If any insert fails nothing is committed.
func (r *ClearanceRepository) CreateRequestWithApprovals(ctx context.Context, request *models.ClearanceRequest, approvals []models.ClearanceApproval) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.StatusPending
	}
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO clearance_requests
	(id, student_id, type, status, submitted_at, completed_at, pdf_url)
	VALUES (:id, :student_id, :type, :status, :submitted_at, :completed_at, :pdf_url)`
	if _, err = tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		return fmt.Errorf("insert clearance request: %w", err)
	}

	const insertApproval = `INSERT INTO clearance_approvals
	(id, request_id, department, subject, assigned_to, status, remarks, approved_by, approved_at, created_at)
	VALUES (:id, :request_id, :department, :subject, :assigned_to, :status, :remarks, :approved_by, :approved_at, :created_at)`
	for i := range approvals {
		if approvals[i].ID == "" {
			approvals[i].ID = uuid.NewString()
		}
		approvals[i].RequestID = request.ID
		if approvals[i].Status == "" {
			approvals[i].Status = models.StatusPending
		}
		if approvals[i].CreatedAt.IsZero() {
			approvals[i].CreatedAt = request.SubmittedAt
		}
		if _, err = tx.NamedExecContext(ctx, insertApproval, approvals[i]); err != nil {
			return fmt.Errorf("insert clearance approval %s: %w", approvals[i].Department, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create request tx: %w", err)
	}
	return nil
}

// GetRequestByID fetches a request by identifier.
func (r *ClearanceRepository) GetRequestByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests WHERE id = $1`, requestColumns)
	var request models.ClearanceRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListRequests returns requests matching the filter, newest first.
func (r *ClearanceRepository) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.ClearanceRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM clearance_requests`, requestColumns))

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ClearanceRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list clearance requests: %w", err)
	}
	return requests, nil
}

// GetApprovalByID fetches an approval by identifier.
func (r *ClearanceRepository) GetApprovalByID(ctx context.Context, id string) (*models.ClearanceApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_approvals WHERE id = $1`, approvalColumns)
	var approval models.ClearanceApproval
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		return nil, err
	}
	return &approval, nil
}

// ListApprovals returns approvals matching the filter in creation order.
// Department and AssignedTo combine as an OR so one query serves both a
// department's queue and an individually assigned faculty queue.
func (r *ClearanceRepository) ListApprovals(ctx context.Context, filter models.ApprovalFilter) ([]models.ClearanceApproval, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM clearance_approvals`, approvalColumns))

	conditions := make([]string, 0, 3)
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	actorConds := make([]string, 0, 2)
	if filter.Department != "" {
		args = append(args, filter.Department)
		actorConds = append(actorConds, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		actorConds = append(actorConds, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if len(actorConds) > 0 {
		conditions = append(conditions, "("+strings.Join(actorConds, " OR ")+")")
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var approvals []models.ClearanceApproval
	if err := r.db.SelectContext(ctx, &approvals, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list clearance approvals: %w", err)
	}
	return approvals, nil
}

// DecideApprovalParams groups the mutable decision fields.
type DecideApprovalParams struct {
	ApprovalID string
	Decision   models.ApprovalStatus
	Remarks    *string
	DecidedBy  string
	DecidedAt  time.Time
}

// DecideApproval applies a staff decision and recomputes the parent request
// status in one transaction. The parent request row is locked first so
// concurrent deciders on sibling approvals serialize; the evaluator then
// authorizes against the committed sibling state and derives the new request
// status. Any failure aborts the whole operation.
func (r *ClearanceRepository) DecideApproval(ctx context.Context, params DecideApprovalParams, eval DecisionEvaluator) (*models.ClearanceApproval, *models.ClearanceRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin decide tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var approval models.ClearanceApproval
	query := fmt.Sprintf(`SELECT %s FROM clearance_approvals WHERE id = $1`, approvalColumns)
	if err = tx.GetContext(ctx, &approval, query, params.ApprovalID); err != nil {
		return nil, nil, err
	}

	var request models.ClearanceRequest
	query = fmt.Sprintf(`SELECT %s FROM clearance_requests WHERE id = $1 FOR UPDATE`, requestColumns)
	if err = tx.GetContext(ctx, &request, query, approval.RequestID); err != nil {
		return nil, nil, err
	}

	var siblings []models.ClearanceApproval
	query = fmt.Sprintf(`SELECT %s FROM clearance_approvals WHERE request_id = $1 ORDER BY created_at ASC`, approvalColumns)
	if err = tx.SelectContext(ctx, &siblings, query, approval.RequestID); err != nil {
		return nil, nil, fmt.Errorf("load sibling approvals: %w", err)
	}

	if err = eval.Authorize(approval, request, siblings); err != nil {
		return nil, nil, err
	}

	const update = `UPDATE clearance_approvals
	SET status = $2, remarks = $3, approved_by = $4, approved_at = $5
	WHERE id = $1 AND status = 'pending'`
	result, execErr := tx.ExecContext(ctx, update, params.ApprovalID, params.Decision, params.Remarks, params.DecidedBy, params.DecidedAt)
	if execErr != nil {
		err = fmt.Errorf("update approval status: %w", execErr)
		return nil, nil, err
	}
	rows, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("check approval update rows: %w", raErr)
		return nil, nil, err
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return nil, nil, err
	}

	approval.Status = params.Decision
	approval.Remarks = params.Remarks
	approval.ApprovedBy = &params.DecidedBy
	approval.ApprovedAt = &params.DecidedAt
	for i := range siblings {
		if siblings[i].ID == approval.ID {
			siblings[i] = approval
		}
	}

	newStatus := eval.Aggregate(siblings)
	if newStatus != request.Status {
		if newStatus == models.StatusApproved {
			completedAt := params.DecidedAt
			const finalize = `UPDATE clearance_requests
			SET status = $2, completed_at = COALESCE(completed_at, $3)
			WHERE id = $1`
			if _, err = tx.ExecContext(ctx, finalize, request.ID, newStatus, completedAt); err != nil {
				return nil, nil, fmt.Errorf("finalize request status: %w", err)
			}
			request.CompletedAt = &completedAt
		} else {
			const reStatus = `UPDATE clearance_requests SET status = $2 WHERE id = $1`
			if _, err = tx.ExecContext(ctx, reStatus, request.ID, newStatus); err != nil {
				return nil, nil, fmt.Errorf("update request status: %w", err)
			}
		}
		request.Status = newStatus
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit decide tx: %w", err)
	}
	return &approval, &request, nil
}

// SetRequestPDFURL records the stored supporting-document reference.
func (r *ClearanceRepository) SetRequestPDFURL(ctx context.Context, id, url string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE clearance_requests SET pdf_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("set request pdf url: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check pdf url update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
