package validation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	require.ErrorIs(t, err, ErrNoReport)

	report := Report{
		RunID:    uuid.New(),
		Score:    80,
		MaxScore: 100,
		Percent:  80,
		Band:     BandGood,
		Modules: []ModuleResult{
			{Module: "trial_balance", Status: StatusPassed, Score: 20, MaxScore: 20},
		},
	}
	require.NoError(t, store.Save(ctx, report))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, report.RunID, latest.RunID)
	require.Equal(t, BandGood, latest.Band)
	require.Len(t, latest.Modules, 1)

	byID, err := store.Get(ctx, report.RunID.String())
	require.NoError(t, err)
	require.Equal(t, report.Percent, byID.Percent)
}

func TestRedisStoreLatestTracksNewestRun(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := Report{RunID: uuid.New(), Percent: 60, Band: BandFair}
	second := Report{RunID: uuid.New(), Percent: 95, Band: BandExcellent}
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, second.RunID, latest.RunID)

	// Both individual runs stay readable until retention expires.
	_, err = store.Get(ctx, first.RunID.String())
	require.NoError(t, err)
}

func TestRedisStoreRunExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	report := Report{RunID: uuid.New(), Percent: 50, Band: BandPoor}
	require.NoError(t, store.Save(ctx, report))

	mr.FastForward(2 * time.Hour)

	_, err := store.Get(ctx, report.RunID.String())
	require.ErrorIs(t, err, ErrNoReport)

	// The latest pointer has no TTL.
	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, report.RunID, latest.RunID)
}

func TestRedisStoreUnknownRun(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrNoReport)
}
