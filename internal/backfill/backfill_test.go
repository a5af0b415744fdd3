package backfill

import (
	"testing"
	"time"

	"docarchive/internal/catalog"
	"docarchive/internal/rules"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSortedEqual(t *testing.T) {
	t.Parallel()

	require.True(t, sortedEqual([]string{"b", "a"}, []string{"a", "b"}))
	require.True(t, sortedEqual(nil, nil))
	require.False(t, sortedEqual([]string{"a"}, []string{"a", "b"}))
}

func TestClassificationChanged_DetectsCategoryChange(t *testing.T) {
	t.Parallel()

	oldCat := uuid.New()
	newCat := uuid.New()
	doc := catalog.Document{CategoryID: &oldCat, EventDate: datePtr(2024, 1, 1), ReviewStatus: catalog.ReviewStatusNone}
	output := rules.RuleOutput{EventDate: *doc.EventDate}

	require.True(t, classificationChanged(doc, catalog.Category{ID: newCat}, output, nil, catalog.ReviewStatusNone))
	require.False(t, classificationChanged(doc, catalog.Category{ID: oldCat}, output, nil, catalog.ReviewStatusNone))
}

func TestClassificationChanged_DetectsReviewStatusAndTagChange(t *testing.T) {
	t.Parallel()

	catID := uuid.New()
	doc := catalog.Document{
		CategoryID:   &catID,
		EventDate:    datePtr(2024, 6, 1),
		ReviewStatus: catalog.ReviewStatusNone,
		Tags:         []string{"alpha", "beta"},
	}
	output := rules.RuleOutput{EventDate: *doc.EventDate, ReviewReasons: []string{"CLASSIFY_FAIL"}}

	require.True(t, classificationChanged(doc, catalog.Category{ID: catID}, output, doc.Tags, catalog.ReviewStatusNeedsReview))
	require.True(t, classificationChanged(doc, catalog.Category{ID: catID}, rules.RuleOutput{EventDate: *doc.EventDate}, []string{"alpha"}, catalog.ReviewStatusNone))
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
