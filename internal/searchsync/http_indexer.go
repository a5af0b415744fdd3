package searchsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPIndexer talks to an external search service over a small JSON HTTP
// API: PUT /indexes/{name}/settings, POST /indexes/{name}/documents (bulk
// upsert), DELETE /indexes/{name}/documents/{id}. No SDK for a specific
// search engine is in the dependency corpus, so this client is generic and
// otelhttp-instrumented like every other outbound call in the service.
type HTTPIndexer struct {
	client    *http.Client
	baseURL   string
	indexName string
	apiKey    string
}

func NewHTTPIndexer(client *http.Client, baseURL, indexName, apiKey string) *HTTPIndexer {
	return &HTTPIndexer{client: client, baseURL: baseURL, indexName: indexName, apiKey: apiKey}
}

func (h *HTTPIndexer) EnsureIndex(ctx context.Context) error {
	settings := map[string]any{
		"searchableAttributes": []string{"title", "description", "summary", "caption_raw"},
		"filterableAttributes": []string{"category", "tags", "review_status"},
		"sortableAttributes":   []string{"event_date"},
	}
	return h.do(ctx, http.MethodPut, fmt.Sprintf("/indexes/%s/settings", h.indexName), settings)
}

func (h *HTTPIndexer) UpsertMany(ctx context.Context, docs []DocumentView) error {
	if len(docs) == 0 {
		return nil
	}
	return h.do(ctx, http.MethodPost, fmt.Sprintf("/indexes/%s/documents", h.indexName), docs)
}

func (h *HTTPIndexer) DeleteOne(ctx context.Context, id uuid.UUID) error {
	return h.do(ctx, http.MethodDelete, fmt.Sprintf("/indexes/%s/documents/%s", h.indexName, id), nil)
}

func (h *HTTPIndexer) do(ctx context.Context, method, path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode search sync request: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, h.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build search sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("search sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("search sync request %s %s returned %d", method, path, resp.StatusCode)
	}
	return nil
}
