package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lost-woods/nistcheck/src/history"
)

func TestStore_RecordListGet(t *testing.T) {
	s, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second"} {
		require.NoError(t, s.Record(ctx, history.Run{
			ID:           id,
			Source:       "/data/sample.bin",
			BitsPerBlock: 1_000_000,
			Blocks:       10,
			Subtests:     3,
			Failed:       i,
			Report:       "report " + id,
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			FinishedAt:   base.Add(time.Duration(i)*time.Hour + time.Minute),
		}))
	}

	runs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].ID, "newest first")
	assert.Equal(t, 1, runs[0].Failed)
	assert.True(t, runs[1].FinishedAt.Equal(base.Add(time.Minute)))

	got, err := s.Get(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "report first", got.Report)
	assert.Equal(t, 1_000_000, got.BitsPerBlock)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, history.ErrNotFound)

	err = s.Record(ctx, history.Run{ID: "first", StartedAt: base, FinishedAt: base})
	require.Error(t, err, "ids are unique")
}
