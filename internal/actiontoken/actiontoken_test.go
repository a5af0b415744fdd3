package actiontoken

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("super-secret", 24*time.Hour)
	jobID := uuid.New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	token, exp, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)
	require.True(t, exp.After(now))

	require.NoError(t, issuer.Verify(token, jobID, ActionRetry, now.Add(time.Hour)))
}

func TestVerify_RejectsWrongJob(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("super-secret", time.Hour)
	now := time.Now().UTC()
	token, _, err := issuer.Issue(uuid.New(), ActionRetry, now)
	require.NoError(t, err)

	err = issuer.Verify(token, uuid.New(), ActionRetry, now)
	require.ErrorIs(t, err, ErrScope)
}

func TestVerify_RejectsWrongAction(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("super-secret", time.Hour)
	jobID := uuid.New()
	now := time.Now().UTC()
	token, _, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)

	err = issuer.Verify(token, jobID, ActionReprocess, now)
	require.ErrorIs(t, err, ErrScope)
}

func TestVerify_RejectsExpired(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("super-secret", time.Minute)
	jobID := uuid.New()
	now := time.Now().UTC()
	token, _, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)

	err = issuer.Verify(token, jobID, ActionRetry, now.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_RejectsTamperedSignature(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("super-secret", time.Hour)
	jobID := uuid.New()
	now := time.Now().UTC()
	token, _, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)

	// Replace the signature's first base64 character: unlike the last one,
	// it carries six full bits, so any different character changes the
	// decoded signature.
	sigStart := strings.IndexByte(token, '.') + 1
	replacement := "A"
	if token[sigStart] == 'A' {
		replacement = "B"
	}
	tampered := token[:sigStart] + replacement + token[sigStart+1:]
	err = issuer.Verify(tampered, jobID, ActionRetry, now)
	require.Error(t, err)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuerA := NewIssuer("secret-a", time.Hour)
	issuerB := NewIssuer("secret-b", time.Hour)
	jobID := uuid.New()
	now := time.Now().UTC()

	token, _, err := issuerA.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)

	err = issuerB.Verify(token, jobID, ActionRetry, now)
	require.ErrorIs(t, err, ErrSignature)
}

func TestVerify_RejectsMalformedToken(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("secret", time.Hour)
	err := issuer.Verify("not-a-token", uuid.New(), ActionRetry, time.Now().UTC())
	require.ErrorIs(t, err, ErrMalformed)
}
