package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("unit-test-secret", time.Minute)

	token, expiresAt, err := signer.Generate("req-1", "uploads/req-1/doc.pdf")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	ownerID, relPath, parsedExp, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "req-1", ownerID)
	require.Equal(t, "uploads/req-1/doc.pdf", relPath)
	require.Equal(t, expiresAt.Unix(), parsedExp.Unix())
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("unit-test-secret", time.Minute)

	token, _, err := signer.Generate("req-1", "uploads/req-1/doc.pdf")
	require.NoError(t, err)

	// Swap the owner segment so the token points at someone else's file.
	parts := strings.SplitN(token, ".", 2)
	forged := "req-2." + parts[1]
	_, _, _, err = signer.Parse(forged, false)
	require.Error(t, err)
}

func TestSignedURLRejectsWrongSecret(t *testing.T) {
	signer := NewSignedURLSigner("unit-test-secret", time.Minute)
	other := NewSignedURLSigner("different-secret", time.Minute)

	token, _, err := signer.Generate("req-1", "uploads/req-1/doc.pdf")
	require.NoError(t, err)

	_, _, _, err = other.Parse(token, false)
	require.Error(t, err)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("unit-test-secret", time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("req-1", "uploads/req-1/doc.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	// Cleanup routines may read expired tokens.
	ownerID, _, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "req-1", ownerID)
}

func TestSignedURLRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("unit-test-secret", time.Minute)

	_, _, err := signer.Generate("", "uploads/doc.pdf")
	require.Error(t, err)
	_, _, err = signer.Generate("req-1", "")
	require.Error(t, err)
}
