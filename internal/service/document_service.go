package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educlear/educlear-api/internal/dto"
	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
	"github.com/educlear/educlear-api/pkg/storage"
)

type documentRequestStore interface {
	GetRequestByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	SetRequestPDFURL(ctx context.Context, id, url string) error
}

// DocumentOptions constrains supporting-document uploads.
type DocumentOptions struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	DownloadBasePath string
}

// DocumentService stores supporting documents for clearance requests and
// issues short-lived signed download URLs.
type DocumentService struct {
	requests documentRequestStore
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	options  DocumentOptions
}

// NewDocumentService constructs the service.
func NewDocumentService(
	requests documentRequestStore,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
	options DocumentOptions,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.MaxFileSizeBytes <= 0 {
		options.MaxFileSizeBytes = 10 << 20
	}
	if len(options.AllowedMIMEs) == 0 {
		options.AllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg"}
	}
	if options.DownloadBasePath == "" {
		options.DownloadBasePath = "/api/v1/documents/download"
	}
	return &DocumentService{requests: requests, store: store, signer: signer, logger: logger, options: options}
}

// Upload validates and stores one supporting document for a request.
func (s *DocumentService) Upload(ctx context.Context, actor models.JWTClaims, requestID, fileName, contentType string, size int64, r io.Reader) (*dto.DocumentInfo, error) {
	if requestID == "" || fileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request id and file name are required")
	}
	if size > s.options.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds maximum size of %d bytes", s.options.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type")
	}

	request, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	relPath := path.Join("uploads", requestID, uuid.NewString()+ext)
	if _, err := s.store.SaveStream(relPath, io.LimitReader(r, s.options.MaxFileSizeBytes)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	// A rendered certificate takes precedence over supporting documents.
	if request.PDFURL == nil || !strings.HasPrefix(*request.PDFURL, certificateDir+"/") {
		if err := s.requests.SetRequestPDFURL(ctx, requestID, relPath); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document path")
		}
	}

	token, expiresAt, err := s.signer.Generate(actor.UserID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	s.logger.Info("document uploaded",
		zap.String("request_id", requestID),
		zap.String("path", relPath),
		zap.Int64("size", size))

	return &dto.DocumentInfo{
		RequestID:   requestID,
		FileName:    fileName,
		Path:        relPath,
		ContentType: contentType,
		SizeBytes:   size,
		DownloadURL: s.options.DownloadBasePath + "?token=" + token,
		ExpiresAt:   expiresAt,
	}, nil
}

// SignDownload issues a fresh signed URL for an already stored document.
func (s *DocumentService) SignDownload(actor models.JWTClaims, relPath string) (*dto.DocumentInfo, error) {
	if relPath == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document path is required")
	}
	if !s.store.Exists(relPath) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	token, expiresAt, err := s.signer.Generate(actor.UserID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &dto.DocumentInfo{
		Path:        relPath,
		FileName:    path.Base(relPath),
		DownloadURL: s.options.DownloadBasePath + "?token=" + token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Resolve validates a signed token and opens the referenced file.
func (s *DocumentService) Resolve(token string) (io.ReadCloser, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return file, path.Base(relPath), nil
}

func (s *DocumentService) mimeAllowed(contentType string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = normalized[:idx]
	}
	for _, allowed := range s.options.AllowedMIMEs {
		if normalized == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
