package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
	"github.com/educlear/educlear-api/pkg/export"
	"github.com/educlear/educlear-api/pkg/jobs"
	"github.com/educlear/educlear-api/pkg/storage"
)

const (
	certificateJobType = "render_certificate"
	certificateDir     = "rendered"
)

type certificateRequestStore interface {
	GetRequestByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	ListApprovals(ctx context.Context, filter models.ApprovalFilter) ([]models.ClearanceApproval, error)
	SetRequestPDFURL(ctx context.Context, id, url string) error
}

type certificateUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CertificateOptions tunes the certificate rendering pipeline.
type CertificateOptions struct {
	Enabled            bool
	InstitutionName    string
	InstitutionAddress string
	WorkerConcurrency  int
	WorkerRetries      int
	RetryDelay         time.Duration
}

// CertificateService renders clearance certificates for fully approved
// requests. Rendering runs on a background worker queue; the download path
// falls back to synchronous rendering when the file is not on disk yet.
type CertificateService struct {
	repo     certificateRequestStore
	students clearanceStudentStore
	users    certificateUserStore
	renderer *export.CertificateRenderer
	store    *storage.LocalStorage
	queue    *jobs.Queue
	metrics  *MetricsService
	logger   *zap.Logger
	options  CertificateOptions
}

// SetMetrics attaches optional instrumentation.
func (s *CertificateService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// NewCertificateService constructs the service and its worker queue.
func NewCertificateService(
	repo certificateRequestStore,
	students clearanceStudentStore,
	users certificateUserStore,
	renderer *export.CertificateRenderer,
	store *storage.LocalStorage,
	logger *zap.Logger,
	options CertificateOptions,
) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.InstitutionName == "" {
		options.InstitutionName = "EduClear Institute of Technology"
	}
	s := &CertificateService{
		repo:     repo,
		students: students,
		users:    users,
		renderer: renderer,
		store:    store,
		logger:   logger,
		options:  options,
	}
	s.queue = jobs.NewQueue(certificateJobType, s.process, jobs.QueueConfig{
		Workers:    options.WorkerConcurrency,
		MaxRetries: options.WorkerRetries,
		RetryDelay: options.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the rendering workers.
func (s *CertificateService) Start(ctx context.Context) {
	if !s.options.Enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the rendering workers.
func (s *CertificateService) Stop() {
	if !s.options.Enabled {
		return
	}
	s.queue.Stop()
}

// Schedule enqueues certificate rendering for a request.
func (s *CertificateService) Schedule(ctx context.Context, requestID string) error {
	if !s.options.Enabled {
		return nil
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    certificateJobType,
		Payload: requestID,
	})
}

// Open returns a read handle on the certificate PDF for an approved request,
// rendering it first when missing.
func (s *CertificateService) Open(ctx context.Context, requestID string) (*os.File, error) {
	request, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "certificate is only available for approved requests")
	}

	relPath := certificatePath(requestID)
	if !s.store.Exists(relPath) {
		if err := s.render(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
		}
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate")
	}
	return file, nil
}

func (s *CertificateService) process(ctx context.Context, job jobs.Job) error {
	requestID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected certificate payload %T", job.Payload)
	}

	request, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", requestID, err)
	}
	if request.Status != models.StatusApproved {
		s.logger.Warn("skipping certificate for non-approved request",
			zap.String("request_id", requestID),
			zap.String("status", string(request.Status)))
		return nil
	}
	return s.render(ctx, request)
}

func (s *CertificateService) render(ctx context.Context, request *models.ClearanceRequest) error {
	student, err := s.students.FindByID(ctx, request.StudentID)
	if err != nil {
		return fmt.Errorf("load student %s: %w", request.StudentID, err)
	}

	approvals, err := s.repo.ListApprovals(ctx, models.ApprovalFilter{RequestID: request.ID})
	if err != nil {
		return fmt.Errorf("load approvals for %s: %w", request.ID, err)
	}

	rows := make([]export.ApprovalRow, 0, len(approvals))
	for _, approval := range approvals {
		row := export.ApprovalRow{
			Department: s.approvalLabel(approval),
			Status:     string(approval.Status),
		}
		if approval.ApprovedBy != nil {
			row.ApprovedBy = s.approverName(ctx, *approval.ApprovedBy)
		}
		if approval.ApprovedAt != nil {
			row.ApprovedAt = approval.ApprovedAt.Format("02 Jan 2006")
		}
		if approval.Remarks != nil {
			row.Remarks = *approval.Remarks
		}
		rows = append(rows, row)
	}

	data := export.CertificateData{
		InstitutionName:    s.options.InstitutionName,
		InstitutionAddress: s.options.InstitutionAddress,
		Title:              certificateTitle(request.Type),
		Declaration:        certificateDeclaration(request.Type, student.FullName),
		StudentName:        student.FullName,
		CollegeID:          student.CollegeID,
		EnrollmentNumber:   student.EnrollmentNumber,
		Department:         student.Department,
		Year:               student.Year,
		RequestID:          request.ID,
		SubmittedAt:        request.SubmittedAt.Format("02 Jan 2006"),
		Approvals:          rows,
	}
	if request.CompletedAt != nil {
		data.CompletedAt = request.CompletedAt.Format("02 Jan 2006")
	}

	pdfBytes, err := s.renderer.Render(data)
	if err != nil {
		return fmt.Errorf("render certificate for %s: %w", request.ID, err)
	}

	relPath := certificatePath(request.ID)
	if _, err := s.store.Save(relPath, pdfBytes); err != nil {
		return fmt.Errorf("store certificate for %s: %w", request.ID, err)
	}

	if err := s.repo.SetRequestPDFURL(ctx, request.ID, relPath); err != nil {
		return fmt.Errorf("record certificate path for %s: %w", request.ID, err)
	}

	s.metrics.RecordCertificateRendered()
	s.logger.Info("certificate rendered",
		zap.String("request_id", request.ID),
		zap.String("path", relPath))
	return nil
}

func (s *CertificateService) approvalLabel(approval models.ClearanceApproval) string {
	if approval.Subject {
		return approval.Department
	}
	return models.RoleLabel(models.UserRole(approval.Department))
}

func (s *CertificateService) approverName(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.FullName
}

func certificatePath(requestID string) string {
	return path.Join(certificateDir, requestID+".pdf")
}

func certificateTitle(t models.ClearanceType) string {
	if t == models.ClearanceHallTicket {
		return "Hall Ticket Clearance Certificate"
	}
	return "No Dues Certificate"
}

func certificateDeclaration(t models.ClearanceType, studentName string) string {
	if t == models.ClearanceHallTicket {
		return fmt.Sprintf("This is to certify that %s has been cleared by the class teacher and the head of department and is eligible to receive the examination hall ticket.", studentName)
	}
	return fmt.Sprintf("This is to certify that %s has no dues pending with any department of the institution as verified by the signatories listed above.", studentName)
}
