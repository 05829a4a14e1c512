package service

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
	"github.com/educlear/educlear-api/pkg/storage"
)

type documentStoreStub struct {
	requests map[string]*models.ClearanceRequest
	pdfURLs  map[string]string
}

func (s *documentStoreStub) GetRequestByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	request, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return request, nil
}

func (s *documentStoreStub) SetRequestPDFURL(ctx context.Context, id, url string) error {
	request, ok := s.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	request.PDFURL = &url
	s.pdfURLs[id] = url
	return nil
}

func newDocumentFixture(t *testing.T, baseDir string) (*DocumentService, *documentStoreStub, *storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(baseDir)
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("doc-secret", time.Minute)
	stub := &documentStoreStub{
		requests: map[string]*models.ClearanceRequest{},
		pdfURLs:  map[string]string{},
	}
	svc := NewDocumentService(stub, store, signer, nil, DocumentOptions{})
	return svc, stub, store, signer
}

func uploaderClaims() models.JWTClaims {
	return models.JWTClaims{UserID: "user-student", Role: models.RoleStudent}
}

func TestUploadStoresFileAndRecordsPath(t *testing.T) {
	svc, stub, store, _ := newDocumentFixture(t, t.TempDir())
	stub.requests["req-1"] = &models.ClearanceRequest{ID: "req-1", Status: models.StatusPending}

	payload := []byte("%PDF-1.4 supporting document")
	info, err := svc.Upload(context.Background(), uploaderClaims(), "req-1", "fees-receipt.pdf",
		"application/pdf", int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(info.Path, "uploads/req-1/"))
	require.True(t, store.Exists(info.Path))
	require.Contains(t, info.DownloadURL, "token=")
	require.Equal(t, info.Path, stub.pdfURLs["req-1"])
}

func TestUploadKeepsRenderedCertificateReference(t *testing.T) {
	svc, stub, _, _ := newDocumentFixture(t, t.TempDir())
	certPath := "rendered/req-2.pdf"
	stub.requests["req-2"] = &models.ClearanceRequest{ID: "req-2", Status: models.StatusApproved, PDFURL: &certPath}

	payload := []byte("%PDF-1.4 late upload")
	_, err := svc.Upload(context.Background(), uploaderClaims(), "req-2", "extra.pdf",
		"application/pdf", int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)

	require.Empty(t, stub.pdfURLs)
	require.Equal(t, certPath, *stub.requests["req-2"].PDFURL)
}

func TestUploadRejectsUnknownRequest(t *testing.T) {
	svc, _, _, _ := newDocumentFixture(t, t.TempDir())

	payload := []byte("%PDF-1.4")
	_, err := svc.Upload(context.Background(), uploaderClaims(), "req-missing", "doc.pdf",
		"application/pdf", int64(len(payload)), bytes.NewReader(payload))
	require.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(t, err))
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	svc, stub, _, _ := newDocumentFixture(t, t.TempDir())
	stub.requests["req-1"] = &models.ClearanceRequest{ID: "req-1", Status: models.StatusPending}

	payload := []byte("MZ")
	_, err := svc.Upload(context.Background(), uploaderClaims(), "req-1", "setup.exe",
		"application/octet-stream", int64(len(payload)), bytes.NewReader(payload))
	require.Equal(t, appErrors.ErrValidation.Code, appErrorCode(t, err))
}

func TestSignDownloadRefusesPathsOutsideStorage(t *testing.T) {
	parent := t.TempDir()
	secretPath := filepath.Join(parent, "secret.txt")
	require.NoError(t, os.WriteFile(secretPath, []byte("db password"), 0o600))

	svc, _, _, _ := newDocumentFixture(t, filepath.Join(parent, "documents"))

	for _, relPath := range []string{secretPath, "../secret.txt", "uploads/../../secret.txt"} {
		_, err := svc.SignDownload(uploaderClaims(), relPath)
		require.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(t, err), "path %q", relPath)
	}
}

func TestDownloadTokenCannotEscapeStorage(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("db password"), 0o600))

	svc, _, _, signer := newDocumentFixture(t, filepath.Join(parent, "documents"))

	// Even a correctly signed token must not reach files above the base dir.
	token, _, err := signer.Generate("user-student", "../secret.txt")
	require.NoError(t, err)

	_, _, err = svc.Resolve(token)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(t, err))
}
