package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/educlear/educlear-api/internal/dto"
	"github.com/educlear/educlear-api/internal/models"
	"github.com/educlear/educlear-api/internal/repository"
	"github.com/educlear/educlear-api/internal/workflow"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
)

type clearanceStore interface {
	CreateRequestWithApprovals(ctx context.Context, request *models.ClearanceRequest, approvals []models.ClearanceApproval) error
	GetRequestByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.ClearanceRequest, error)
	GetApprovalByID(ctx context.Context, id string) (*models.ClearanceApproval, error)
	ListApprovals(ctx context.Context, filter models.ApprovalFilter) ([]models.ClearanceApproval, error)
	DecideApproval(ctx context.Context, params repository.DecideApprovalParams, eval repository.DecisionEvaluator) (*models.ClearanceApproval, *models.ClearanceRequest, error)
	SetRequestPDFURL(ctx context.Context, id, url string) error
}

type clearanceStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type taskQueueCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// certificateScheduler enqueues clearance certificate rendering after a
// request reaches the approved state.
type certificateScheduler interface {
	Schedule(ctx context.Context, requestID string) error
}

const approvalCachePrefix = "approvals:v1:"

// ClearanceOptions tunes optional behavior of the lifecycle manager.
type ClearanceOptions struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ClearanceService manages the request and approval lifecycle: submission,
// task-queue listing, eligibility checks, and atomic decisions.
type ClearanceService struct {
	repo         clearanceStore
	students     clearanceStudentStore
	audit        auditStore
	cache        taskQueueCache
	certificates certificateScheduler
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	options      ClearanceOptions
}

// NewClearanceService constructs a ClearanceService instance. Cache and
// certificate scheduler are optional.
func NewClearanceService(
	repo clearanceStore,
	students clearanceStudentStore,
	audit auditStore,
	cache taskQueueCache,
	certificates certificateScheduler,
	validate *validator.Validate,
	logger *zap.Logger,
	options ClearanceOptions,
) *ClearanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = 30 * time.Second
	}
	return &ClearanceService{
		repo:         repo,
		students:     students,
		audit:        audit,
		cache:        cache,
		certificates: certificates,
		validator:    validate,
		logger:       logger,
		options:      options,
	}
}

// SetMetrics attaches optional instrumentation.
func (s *ClearanceService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// CreateRequest submits a clearance request together with its full approval
// set. The approval slots are fixed at submission: hall tickets get the
// teacher/HOD chain, no-dues requests the seven-department matrix, and
// subject-wise submissions one independent slot per subject.
func (s *ClearanceService) CreateRequest(ctx context.Context, actor models.JWTClaims, payload dto.CreateRequestPayload) (*dto.RequestDetail, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if !models.ValidClearanceType(payload.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown clearance type")
	}
	if len(payload.Subjects) > 0 && payload.Type != models.ClearanceNoDues {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject-wise submissions must use the no_dues type")
	}

	student, err := s.students.FindByID(ctx, payload.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if actor.Role == models.RoleStudent && actor.UserID != student.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only submit their own requests")
	}

	var targets []workflow.Target
	if len(payload.Subjects) > 0 {
		subjects := make([]workflow.SubjectInput, 0, len(payload.Subjects))
		for _, subject := range payload.Subjects {
			subjects = append(subjects, workflow.SubjectInput{Name: subject.Name, AssignedTo: subject.AssignedTo})
		}
		targets = workflow.SubjectTargets(subjects)
	} else {
		targets = workflow.TargetsForType(payload.Type)
	}

	request := &models.ClearanceRequest{
		StudentID:   student.ID,
		Type:        payload.Type,
		Status:      models.StatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	if payload.DocumentRef != "" {
		request.PDFURL = &payload.DocumentRef
	}

	approvals := make([]models.ClearanceApproval, 0, len(targets))
	for _, target := range targets {
		approval := models.ClearanceApproval{
			Department: target.Key(),
			Subject:    target.IsSubject(),
			Status:     models.StatusPending,
		}
		if target.AssignedTo != "" {
			assigned := target.AssignedTo
			approval.AssignedTo = &assigned
		}
		approvals = append(approvals, approval)
	}

	if err := s.repo.CreateRequestWithApprovals(ctx, request, approvals); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to create clearance request")
	}

	s.invalidateApprovalCache(ctx)
	s.recordAudit(ctx, actor.UserID, models.AuditActionRequestCreate, "clearance_requests", request.ID, request)

	s.logger.Info("clearance request created",
		zap.String("request_id", request.ID),
		zap.String("student_id", student.ID),
		zap.String("type", string(request.Type)),
		zap.Int("approvals", len(approvals)))

	return &dto.RequestDetail{Request: *request, Approvals: approvals}, nil
}

// ListRequests returns requests matching the filter.
func (s *ClearanceService) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.ClearanceRequest, error) {
	requests, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// GetRequestDetail returns a request with its approvals and, while the
// request is still pending, a per-slot eligibility map explaining which
// departments may act now and which are blocked.
func (s *ClearanceService) GetRequestDetail(ctx context.Context, id string) (*dto.RequestDetail, error) {
	request, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	approvals, err := s.repo.ListApprovals(ctx, models.ApprovalFilter{RequestID: id})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}

	detail := &dto.RequestDetail{Request: *request, Approvals: approvals}
	if !request.Status.Terminal() {
		eligibility := make(map[string]workflow.Decision, len(approvals))
		for _, approval := range approvals {
			if approval.Status != models.StatusPending {
				continue
			}
			eligibility[approval.ID] = workflow.CanApprove(approval, request.Type, approvals)
		}
		detail.Eligibility = eligibility
	}
	return detail, nil
}

// ListApprovals returns the approval task queue for a department or an
// individually assigned approver. Results are cached briefly since staff
// dashboards poll this endpoint.
func (s *ClearanceService) ListApprovals(ctx context.Context, filter models.ApprovalFilter) ([]models.ClearanceApproval, error) {
	key := s.approvalCacheKey(filter)
	if s.cacheUsable() {
		var cached []models.ClearanceApproval
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("approval cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	approvals, err := s.repo.ListApprovals(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}

	if s.cacheUsable() {
		if err := s.cache.Set(ctx, key, approvals, s.options.CacheTTL); err != nil {
			s.logger.Warn("approval cache write failed", zap.Error(err))
		}
	}
	return approvals, nil
}

// DecideApproval applies a staff decision to one approval slot. Policy
// re-check, the approval write, and the request status recompute run inside
// one transaction so no reader ever observes a half-applied decision.
func (s *ClearanceService) DecideApproval(ctx context.Context, actor models.JWTClaims, approvalID string, payload dto.DecideApprovalPayload) (*dto.RequestDetail, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	remarks := strings.TrimSpace(payload.Remarks)
	if payload.Decision == models.StatusRejected && remarks == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "remarks are required when rejecting")
	}

	params := repository.DecideApprovalParams{
		ApprovalID: approvalID,
		Decision:   payload.Decision,
		DecidedBy:  actor.UserID,
		DecidedAt:  time.Now().UTC(),
	}
	if remarks != "" {
		params.Remarks = &remarks
	}

	approval, request, err := s.repo.DecideApproval(ctx, params, decisionEvaluator{actor: actor})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "decision transaction aborted")
	}

	s.metrics.RecordDecision(request.Type, approval.Status)
	s.invalidateApprovalCache(ctx)
	s.recordAudit(ctx, actor.UserID, models.AuditActionApprovalDecide, "clearance_approvals", approval.ID, map[string]interface{}{
		"decision":       approval.Status,
		"request_id":     request.ID,
		"request_status": request.Status,
	})

	s.logger.Info("approval decided",
		zap.String("approval_id", approval.ID),
		zap.String("request_id", request.ID),
		zap.String("decision", string(approval.Status)),
		zap.String("request_status", string(request.Status)))

	if request.Status == models.StatusApproved && s.certificates != nil {
		if err := s.certificates.Schedule(ctx, request.ID); err != nil {
			s.logger.Warn("failed to schedule certificate", zap.String("request_id", request.ID), zap.Error(err))
		}
	}

	return &dto.RequestDetail{
		Request:   *request,
		Approvals: []models.ClearanceApproval{*approval},
	}, nil
}

func (s *ClearanceService) cacheUsable() bool {
	return s.options.CacheEnabled && s.cache != nil
}

func (s *ClearanceService) approvalCacheKey(filter models.ApprovalFilter) string {
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}
	return fmt.Sprintf("%s%s:%s:%s:%s:%d:%d",
		approvalCachePrefix,
		filter.RequestID,
		filter.Department,
		filter.AssignedTo,
		strings.Join(statuses, ","),
		filter.Limit,
		filter.Offset)
}

func (s *ClearanceService) invalidateApprovalCache(ctx context.Context) {
	if !s.cacheUsable() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, approvalCachePrefix+"*"); err != nil {
		s.logger.Warn("approval cache invalidation failed", zap.Error(err))
	}
}

func (s *ClearanceService) recordAudit(ctx context.Context, actorID, action, resource, resourceID string, newValue interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if newValue != nil {
		if raw, err := json.Marshal(newValue); err == nil {
			payload = raw
		}
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
		CreatedAt:  time.Now().UTC(),
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record clearance audit log", zap.Error(err))
	}
}

// decisionEvaluator enforces actor authorization and workflow policy against
// the locked in-transaction snapshot, then derives the request status.
type decisionEvaluator struct {
	actor models.JWTClaims
}

// Authorize rejects decisions on finalized records, decisions by the wrong
// actor, and decisions that break department sequencing.
func (e decisionEvaluator) Authorize(approval models.ClearanceApproval, request models.ClearanceRequest, siblings []models.ClearanceApproval) error {
	if request.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrConflict, "request already finalized")
	}
	if approval.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrConflict, "approval already decided")
	}

	if e.actor.Role != models.RoleAdmin {
		if approval.Subject {
			if approval.AssignedTo == nil || *approval.AssignedTo != e.actor.UserID {
				return appErrors.Clone(appErrors.ErrForbidden, "approval is assigned to another approver")
			}
		} else if string(e.actor.Role) != approval.Department {
			return appErrors.Clone(appErrors.ErrForbidden, "approval belongs to another department")
		}
	}

	decision := workflow.CanApprove(approval, request.Type, siblings)
	if !decision.Allowed {
		return appErrors.Clone(appErrors.ErrPolicyViolation, decision.Reason)
	}
	return nil
}

// Aggregate folds the sibling set into the request status.
func (e decisionEvaluator) Aggregate(siblings []models.ClearanceApproval) models.ApprovalStatus {
	return workflow.Aggregate(siblings)
}
