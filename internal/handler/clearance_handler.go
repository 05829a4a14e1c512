package handler

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/educlear/educlear-api/internal/dto"
	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
	"github.com/educlear/educlear-api/pkg/response"
)

type clearanceService interface {
	CreateRequest(ctx context.Context, actor models.JWTClaims, payload dto.CreateRequestPayload) (*dto.RequestDetail, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.ClearanceRequest, error)
	GetRequestDetail(ctx context.Context, id string) (*dto.RequestDetail, error)
	ListApprovals(ctx context.Context, filter models.ApprovalFilter) ([]models.ClearanceApproval, error)
	DecideApproval(ctx context.Context, actor models.JWTClaims, approvalID string, payload dto.DecideApprovalPayload) (*dto.RequestDetail, error)
}

type studentResolver interface {
	GetByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type certificateService interface {
	Open(ctx context.Context, requestID string) (*os.File, error)
}

// ClearanceHandler exposes REST endpoints for the clearance workflow.
type ClearanceHandler struct {
	service      clearanceService
	students     studentResolver
	certificates certificateService
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(service clearanceService, students studentResolver, certificates certificateService) *ClearanceHandler {
	return &ClearanceHandler{service: service, students: students, certificates: certificates}
}

// CreateRequest godoc
// @Summary Submit a clearance request
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *ClearanceHandler) CreateRequest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	detail, err := h.service.CreateRequest(c.Request.Context(), *claims, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// ListRequests godoc
// @Summary List clearance requests
// @Tags Clearance
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param type query string false "hall_ticket or no_dues"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *ClearanceHandler) ListRequests(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.RequestFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Type:      models.ClearanceType(c.Query("type")),
	}
	filter.Status = parseStatuses(c.Query("status"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	// Students only ever see their own submissions.
	if claims.Role == models.RoleStudent {
		student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.StudentID = student.ID
	}

	requests, err := h.service.ListRequests(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// GetRequest godoc
// @Summary Get request detail with approvals and eligibility
// @Tags Clearance
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *ClearanceHandler) GetRequest(c *gin.Context) {
	detail, err := h.service.GetRequestDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Certificate godoc
// @Summary Download the clearance certificate PDF
// @Tags Clearance
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} binary
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/certificate [get]
func (h *ClearanceHandler) Certificate(c *gin.Context) {
	requestID := c.Param("id")
	file, err := h.certificates.Open(c.Request.Context(), requestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat certificate"))
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, map[string]string{
		"Content-Disposition": `attachment; filename="clearance-` + requestID + `.pdf"`,
	})
}

// ListApprovals godoc
// @Summary List approval tasks
// @Tags Clearance
// @Produce json
// @Param request_id query string false "Filter by request"
// @Param department query string false "Filter by department"
// @Param assigned_to query string false "Filter by assigned approver"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ClearanceHandler) ListApprovals(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ApprovalFilter{
		RequestID:  strings.TrimSpace(c.Query("request_id")),
		Department: strings.TrimSpace(c.Query("department")),
		AssignedTo: strings.TrimSpace(c.Query("assigned_to")),
	}
	filter.Status = parseStatuses(c.Query("status"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "200"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	// Staff with no explicit filters get their own task queue: department
	// slots for their role plus subject slots assigned to them.
	if claims.Role != models.RoleAdmin && filter.RequestID == "" && filter.Department == "" && filter.AssignedTo == "" {
		filter.Department = string(claims.Role)
		filter.AssignedTo = claims.UserID
	}

	approvals, err := h.service.ListApprovals(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// ListRequestApprovals godoc
// @Summary List approval tasks for one request
// @Tags Clearance
// @Produce json
// @Param requestId path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/request/{requestId} [get]
func (h *ClearanceHandler) ListRequestApprovals(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	if requestID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "request id is required"))
		return
	}
	approvals, err := h.service.ListApprovals(c.Request.Context(), models.ApprovalFilter{RequestID: requestID})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// DecideApproval godoc
// @Summary Approve or reject an approval task
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.DecideApprovalPayload true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id} [put]
func (h *ClearanceHandler) DecideApproval(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.DecideApprovalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	detail, err := h.service.DecideApproval(c.Request.Context(), *claims, c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

func parseStatuses(raw string) []models.ApprovalStatus {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]models.ApprovalStatus, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		statuses = append(statuses, models.ApprovalStatus(part))
	}
	return statuses
}
