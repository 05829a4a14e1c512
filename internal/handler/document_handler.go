package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/educlear/educlear-api/internal/dto"
	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
	"github.com/educlear/educlear-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, actor models.JWTClaims, requestID, fileName, contentType string, size int64, r io.Reader) (*dto.DocumentInfo, error)
	SignDownload(actor models.JWTClaims, relPath string) (*dto.DocumentInfo, error)
	Resolve(token string) (io.ReadCloser, string, error)
}

// DocumentHandler exposes upload and signed download endpoints for
// supporting documents.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload godoc
// @Summary Upload a supporting document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param request_id formData string true "Request ID"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	requestID := strings.TrimSpace(c.PostForm("request_id"))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := h.service.Upload(
		c.Request.Context(),
		*claims,
		requestID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, info)
}

// Sign godoc
// @Summary Issue a fresh signed download URL for a stored document
// @Tags Documents
// @Produce json
// @Param path query string true "Stored document path"
// @Success 200 {object} response.Envelope
// @Router /documents/sign [get]
func (h *DocumentHandler) Sign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info, err := h.service.SignDownload(*claims, strings.TrimSpace(c.Query("path")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// Download godoc
// @Summary Download a document via signed token
// @Tags Documents
// @Produce application/octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	reader, fileName, err := h.service.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}
