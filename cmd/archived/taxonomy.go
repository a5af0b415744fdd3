package main

import "net/http"

type taxonomyEntry struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// handleListCategories serves GET /categories, used by the review queue UI
// to populate its category picker when resolving a CLASSIFY_FAIL reason.
func (s *server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cats, err := s.categories.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]taxonomyEntry, 0, len(cats))
	for _, c := range cats {
		out = append(out, taxonomyEntry{ID: c.ID.String(), Slug: c.Slug, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// handleListTags serves GET /tags, used by the review queue UI to populate
// its tag picker.
func (s *server) handleListTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tags, err := s.tags.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]taxonomyEntry, 0, len(tags))
	for _, t := range tags {
		out = append(out, taxonomyEntry{ID: t.ID.String(), Slug: t.Slug, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": out})
}
