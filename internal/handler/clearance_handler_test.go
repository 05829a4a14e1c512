package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/educlear/educlear-api/internal/dto"
	"github.com/educlear/educlear-api/internal/middleware"
	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
)

type clearanceServiceStub struct {
	detail        *dto.RequestDetail
	requests      []models.ClearanceRequest
	approvals     []models.ClearanceApproval
	err           error
	requestFilter models.RequestFilter
	approvFilter  models.ApprovalFilter
	decidedID     string
}

func (s *clearanceServiceStub) CreateRequest(ctx context.Context, actor models.JWTClaims, payload dto.CreateRequestPayload) (*dto.RequestDetail, error) {
	return s.detail, s.err
}

func (s *clearanceServiceStub) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.ClearanceRequest, error) {
	s.requestFilter = filter
	return s.requests, s.err
}

func (s *clearanceServiceStub) GetRequestDetail(ctx context.Context, id string) (*dto.RequestDetail, error) {
	return s.detail, s.err
}

func (s *clearanceServiceStub) ListApprovals(ctx context.Context, filter models.ApprovalFilter) ([]models.ClearanceApproval, error) {
	s.approvFilter = filter
	return s.approvals, s.err
}

func (s *clearanceServiceStub) DecideApproval(ctx context.Context, actor models.JWTClaims, approvalID string, payload dto.DecideApprovalPayload) (*dto.RequestDetail, error) {
	s.decidedID = approvalID
	return s.detail, s.err
}

type studentResolverStub struct {
	student *models.Student
	err     error
}

func (s *studentResolverStub) GetByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return s.student, s.err
}

type certificateStub struct {
	path string
	err  error
}

func (s *certificateStub) Open(ctx context.Context, requestID string) (*os.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	return os.Open(s.path)
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, recorder
}

func withClaims(c *gin.Context, role models.UserRole, userID string) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
}

func TestCreateRequestReturnsCreated(t *testing.T) {
	svc := &clearanceServiceStub{detail: &dto.RequestDetail{
		Request: models.ClearanceRequest{ID: "req-1", Status: models.StatusPending},
	}}
	h := NewClearanceHandler(svc, &studentResolverStub{}, &certificateStub{})

	body := []byte(`{"studentId":"student-1","type":"hall_ticket"}`)
	c, recorder := testContext(t, http.MethodPost, "/api/v1/requests", body)
	withClaims(c, models.RoleStudent, "user-1")

	h.CreateRequest(c)
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.Contains(t, recorder.Body.String(), "req-1")
}

func TestCreateRequestRequiresAuth(t *testing.T) {
	h := NewClearanceHandler(&clearanceServiceStub{}, &studentResolverStub{}, &certificateStub{})

	c, recorder := testContext(t, http.MethodPost, "/api/v1/requests", []byte(`{}`))
	h.CreateRequest(c)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestListRequestsScopesStudentsToOwnProfile(t *testing.T) {
	svc := &clearanceServiceStub{}
	students := &studentResolverStub{student: &models.Student{ID: "student-7", UserID: "user-7"}}
	h := NewClearanceHandler(svc, students, &certificateStub{})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/requests?student_id=student-1", nil)
	withClaims(c, models.RoleStudent, "user-7")

	h.ListRequests(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "student-7", svc.requestFilter.StudentID)
}

func TestListApprovalsDefaultsToStaffQueue(t *testing.T) {
	svc := &clearanceServiceStub{}
	h := NewClearanceHandler(svc, &studentResolverStub{}, &certificateStub{})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/approvals", nil)
	withClaims(c, models.RoleLibrary, "user-lib")

	h.ListApprovals(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, string(models.RoleLibrary), svc.approvFilter.Department)
	require.Equal(t, "user-lib", svc.approvFilter.AssignedTo)
}

func TestListApprovalsAdminSeesEverything(t *testing.T) {
	svc := &clearanceServiceStub{}
	h := NewClearanceHandler(svc, &studentResolverStub{}, &certificateStub{})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/approvals", nil)
	withClaims(c, models.RoleAdmin, "user-admin")

	h.ListApprovals(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Empty(t, svc.approvFilter.Department)
	require.Empty(t, svc.approvFilter.AssignedTo)
}

func TestListRequestApprovalsUsesPathParam(t *testing.T) {
	svc := &clearanceServiceStub{approvals: []models.ClearanceApproval{{ID: "ap-1", RequestID: "req-9"}}}
	h := NewClearanceHandler(svc, &studentResolverStub{}, &certificateStub{})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/approvals/request/req-9", nil)
	c.Params = gin.Params{{Key: "requestId", Value: "req-9"}}
	withClaims(c, models.RoleHOD, "user-hod")

	h.ListRequestApprovals(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "req-9", svc.approvFilter.RequestID)
	require.Contains(t, recorder.Body.String(), "ap-1")
}

func TestListRequestApprovalsRequiresRequestID(t *testing.T) {
	h := NewClearanceHandler(&clearanceServiceStub{}, &studentResolverStub{}, &certificateStub{})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/approvals/request/", nil)
	withClaims(c, models.RoleHOD, "user-hod")

	h.ListRequestApprovals(c)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDecideApprovalMapsPolicyViolation(t *testing.T) {
	svc := &clearanceServiceStub{err: appErrors.Clone(appErrors.ErrPolicyViolation, "previous department approval pending")}
	h := NewClearanceHandler(svc, &studentResolverStub{}, &certificateStub{})

	body := []byte(`{"decision":"approved"}`)
	c, recorder := testContext(t, http.MethodPut, "/api/v1/approvals/ap-1", body)
	c.Params = gin.Params{{Key: "id", Value: "ap-1"}}
	withClaims(c, models.RoleHOD, "user-hod")

	h.DecideApproval(c)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Contains(t, recorder.Body.String(), "POLICY_VIOLATION")
	require.Contains(t, recorder.Body.String(), "previous department approval pending")
	require.Equal(t, "ap-1", svc.decidedID)
}

func TestDecideApprovalRejectsMalformedBody(t *testing.T) {
	h := NewClearanceHandler(&clearanceServiceStub{}, &studentResolverStub{}, &certificateStub{})

	c, recorder := testContext(t, http.MethodPut, "/api/v1/approvals/ap-1", []byte(`not json`))
	c.Params = gin.Params{{Key: "id", Value: "ap-1"}}
	withClaims(c, models.RoleTeacher, "user-t")

	h.DecideApproval(c)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCertificateStreamsPDF(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "req-1.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 test"), 0o644))

	h := NewClearanceHandler(&clearanceServiceStub{}, &studentResolverStub{}, &certificateStub{path: pdfPath})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/requests/req-1/certificate", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	withClaims(c, models.RoleStudent, "user-1")

	h.Certificate(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "application/pdf", recorder.Header().Get("Content-Type"))
	require.Contains(t, recorder.Header().Get("Content-Disposition"), "clearance-req-1.pdf")
	require.Equal(t, "%PDF-1.4 test", recorder.Body.String())
}

func TestCertificateNotReadyReturnsConflict(t *testing.T) {
	h := NewClearanceHandler(&clearanceServiceStub{}, &studentResolverStub{}, &certificateStub{
		err: appErrors.Clone(appErrors.ErrConflict, "request is not approved yet"),
	})

	c, recorder := testContext(t, http.MethodGet, "/api/v1/requests/req-1/certificate", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	withClaims(c, models.RoleStudent, "user-1")

	h.Certificate(c)
	require.Equal(t, http.StatusConflict, recorder.Code)
}
