// Package actiontoken issues and verifies the HMAC-signed tokens that let a
// chat-bot producer trigger a retry/reprocess action on a specific job
// without a session.
package actiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is a token's bound verb.
type Action string

const (
	ActionRetry     Action = "retry"
	ActionReprocess Action = "reprocess"
)

var (
	ErrMalformed = errors.New("actiontoken: malformed token")
	ErrSignature = errors.New("actiontoken: signature mismatch")
	ErrExpired   = errors.New("actiontoken: expired")
	ErrScope     = errors.New("actiontoken: wrong job or action")
)

// payload is serialized with sorted keys and compact separators so the
// signed bytes are reproducible across issuances of the same logical token.
// The field order below (action, exp, job_id, v) is the alphabetical order
// of the JSON tags, matching what Go's encoding/json produces for a struct
// literal declared in that order.
type payload struct {
	Action string `json:"action"`
	Exp    int64  `json:"exp"`
	JobID  string `json:"job_id"`
	V      int    `json:"v"`
}

// Issuer signs and verifies action tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token bound to jobID and action, expiring after the
// issuer's configured TTL.
func (i *Issuer) Issue(jobID uuid.UUID, action Action, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.ttl)
	p := payload{Action: string(action), Exp: exp.Unix(), JobID: jobID.String(), V: 1}
	raw, err := marshalSorted(p)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal action token payload: %w", err)
	}
	sig := i.sign(raw)
	token := base64.RawURLEncoding.EncodeToString(raw) + "." + base64.RawURLEncoding.EncodeToString(sig)
	return token, exp, nil
}

func (i *Issuer) sign(raw []byte) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(raw)
	return mac.Sum(nil)
}

// marshalSorted relies on encoding/json emitting fields in declaration
// order, which for payload is already alphabetical by JSON tag - the same
// key order Python's json.dumps(..., sort_keys=True) produces for the
// original token format.
func marshalSorted(p payload) ([]byte, error) {
	return json.Marshal(p)
}

// Verify checks the token's signature (constant-time comparison), then that
// it has not expired and that it is scoped to jobID/action.
func (i *Issuer) Verify(token string, jobID uuid.UUID, action Action, now time.Time) error {
	parts := splitToken(token)
	if parts == nil {
		return ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrMalformed
	}

	expected := i.sign(raw)
	if !hmac.Equal(expected, sig) {
		return ErrSignature
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil || p.V != 1 {
		return ErrMalformed
	}

	if now.Unix() > p.Exp {
		return ErrExpired
	}
	if p.JobID != jobID.String() || p.Action != string(action) {
		return ErrScope
	}
	return nil
}

func splitToken(token string) []string {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return []string{token[:i], token[i+1:]}
		}
	}
	return nil
}
