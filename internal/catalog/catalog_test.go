package catalog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "safety-drill", Slugify("Safety Drill!!"))
	require.Equal(t, "", Slugify("   "))
	require.Equal(t, "set-dcp", Slugify("set:dcp"))
}

func TestStringSetEqual(t *testing.T) {
	t.Parallel()

	require.True(t, stringSetEqual([]string{"b", "a"}, []string{"a", "b"}))
	require.False(t, stringSetEqual([]string{"a"}, []string{"a", "b"}))
	require.True(t, stringSetEqual(nil, nil))
}

func TestUUIDPtrEqual(t *testing.T) {
	t.Parallel()

	a := uuid.New()
	b := a
	require.True(t, uuidPtrEqual(&a, &b))
	require.True(t, uuidPtrEqual(nil, nil))
	require.False(t, uuidPtrEqual(&a, nil))

	c := uuid.New()
	require.False(t, uuidPtrEqual(&a, &c))
}

func TestTimePtrEqual(t *testing.T) {
	t.Parallel()

	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a
	require.True(t, timePtrEqual(&a, &b))
	require.True(t, timePtrEqual(nil, nil))
	require.False(t, timePtrEqual(&a, nil))
}
