package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docarchive/internal/actiontoken"
	"docarchive/internal/catalog"
	"docarchive/internal/ingest/ingesterr"
	"docarchive/internal/observability"

	"github.com/google/uuid"
)

// ActionDescriptor is one signed button in a result callback: a retry,
// reprocess, or out-of-band recover-upload command.
type ActionDescriptor struct {
	Action    string    `json:"action"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ResultPayload is the JSON body posted to the producer's callback URL,
// matching spec.md §6's result callback contract.
type ResultPayload struct {
	JobID        uuid.UUID           `json:"job_id"`
	State        string              `json:"state"`
	Success      bool                `json:"success"`
	DocumentID   *uuid.UUID          `json:"document_id,omitempty"`
	Title        string              `json:"title,omitempty"`
	Category     string              `json:"category,omitempty"`
	EventDate    string              `json:"event_date,omitempty"`
	ReviewNeeded bool                `json:"review_needed"`
	ErrorCode    string              `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	DashboardURL string              `json:"dashboard_url,omitempty"`
	Actions      []ActionDescriptor  `json:"actions,omitempty"`
}

// Notifier posts ingest outcomes back to the producer's callback URL and
// mints the signed action tokens carried in terminal FAILED/NEEDS_REVIEW
// notifications for chat-bot jobs.
type Notifier struct {
	client       *http.Client
	callbackURL  string
	enabled      bool
	timeout      time.Duration
	dashboardURL string
	issuer       *actiontoken.Issuer
	actionsBase  string
}

func NewNotifier(client *http.Client, callbackURL string, enabled bool, timeout time.Duration, dashboardURL, actionsBase string, issuer *actiontoken.Issuer) *Notifier {
	return &Notifier{
		client:       client,
		callbackURL:  callbackURL,
		enabled:      enabled,
		timeout:      timeout,
		dashboardURL: dashboardURL,
		issuer:       issuer,
		actionsBase:  actionsBase,
	}
}

// Notify posts the job's outcome. It is always best-effort: the pipeline
// swallows whatever error comes back (classified NOTIFY_CALLBACK_FAIL),
// logging it as a warning rather than retrying the whole attempt; no
// IngestEvent is recorded for it.
func (n *Notifier) Notify(ctx context.Context, job catalog.IngestJob, doc *catalog.Document) error {
	if !n.enabled || n.callbackURL == "" {
		return nil
	}

	payload := ResultPayload{
		JobID:        job.ID,
		State:        string(job.State),
		Success:      job.State == catalog.StatePublished || job.State == catalog.StateNeedsReview,
		ReviewNeeded: job.State == catalog.StateNeedsReview,
		ErrorCode:    job.LastErrorCode,
		ErrorMessage: job.LastErrorMsg,
		DashboardURL: n.dashboardURL,
	}
	if doc != nil {
		payload.DocumentID = &doc.ID
		payload.Title = doc.Title
		payload.Category = doc.Category
		if doc.EventDate != nil {
			payload.EventDate = doc.EventDate.Format("2006-01-02")
		}
	}

	if job.Source == "chat-bot" && (job.State == catalog.StateFailed || job.State == catalog.StateNeedsReview) {
		payload.Actions = n.buildActions(job)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ingesterr.Wrap("notify", ingesterr.CodeNotifyCallbackFail, fmt.Errorf("marshal result payload: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.callbackURL, bytes.NewReader(body))
	if err != nil {
		return ingesterr.Wrap("notify", ingesterr.CodeNotifyCallbackFail, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return ingesterr.Wrap("notify", ingesterr.CodeNotifyCallbackFail, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		observability.LoggerWithTrace(ctx).Warn().
			Str("job_id", job.ID.String()).
			Int("status", resp.StatusCode).
			Msg("producer callback returned non-2xx")
		return ingesterr.Wrap("notify", ingesterr.CodeNotifyCallbackFail, fmt.Errorf("callback returned %d", resp.StatusCode))
	}
	return nil
}

func (n *Notifier) buildActions(job catalog.IngestJob) []ActionDescriptor {
	var actions []ActionDescriptor

	addToken := func(action actiontoken.Action) {
		token, exp, err := n.issuer.Issue(job.ID, action, time.Now().UTC())
		if err != nil {
			return
		}
		actions = append(actions, ActionDescriptor{
			Action:    string(action),
			Method:    http.MethodPost,
			URL:       fmt.Sprintf("%s/ingest/actions/%s/%s", n.actionsBase, job.ID, action),
			Token:     token,
			ExpiresAt: exp,
		})
	}

	addToken(actiontoken.ActionRetry)
	addToken(actiontoken.ActionReprocess)

	if job.LastErrorCode == string(ingesterr.CodeStorageTempFileMissing) {
		actions = append(actions, ActionDescriptor{
			Action: "recover_upload",
			Method: http.MethodPost,
			URL:    fmt.Sprintf("%s/ingest/actions/%s/recover", n.actionsBase, job.ID),
		})
	}

	return actions
}
