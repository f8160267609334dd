package stats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/stats"
)

func TestRecompute_ValidatesDate(t *testing.T) {
	svc := stats.NewService(memory.NewStore().Stats())
	_, err := svc.Recompute(context.Background(), "2025/03/03")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGet_MissingDayIsNotFound(t *testing.T) {
	svc := stats.NewService(memory.NewStore().Stats())
	_, err := svc.Get(context.Background(), "2025-03-03")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRange(t *testing.T) {
	svc := stats.NewService(memory.NewStore().Stats())
	ctx := context.Background()
	for _, d := range []string{"2025-03-01", "2025-03-02", "2025-03-04"} {
		_, err := svc.Recompute(ctx, d)
		require.NoError(t, err)
	}

	got, err := svc.Range(ctx, "2025-03-02", "2025-03-04")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-02", got[0].StatDate)
	assert.Equal(t, "2025-03-04", got[1].StatDate)

	_, err = svc.Range(ctx, "2025-03-04", "2025-03-02")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
