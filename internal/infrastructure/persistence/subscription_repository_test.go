package persistence

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func newTrial(t *testing.T, repo *GormSubscriptionRepository, trialEnds time.Time) *subscription.Subscription {
	t.Helper()
	s, err := subscription.NewTrial(uuid.New(), uuid.New(), trialEnds.Add(-14*day), 14*day)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestGormSubscriptionRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSubscriptionRepository(newSQLiteDB(t))

	s := newTrial(t, repo, baseTime.Add(3*day))

	got, err := repo.FindByBusinessID(ctx, s.BusinessID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, subscription.StatusTrial, got.Status)
	require.NotNil(t, got.TrialEndsAt)
	assert.True(t, got.TrialEndsAt.Equal(baseTime.Add(3*day)))
	assert.Equal(t, 1, got.Version)

	dup, err := subscription.NewTrial(s.BusinessID, uuid.New(), baseTime, 14*day)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), subscription.ErrAlreadyExisting)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrNoSubscription)
}

func TestGormSubscriptionRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSubscriptionRepository(newSQLiteDB(t))
	s := newTrial(t, repo, baseTime.Add(day))

	stale, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, subscription.Cancel(s, baseTime))
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, got.Status)
	assert.Equal(t, 2, got.Version)

	require.NoError(t, subscription.Cancel(stale, baseTime))
	assert.ErrorIs(t, repo.Save(ctx, stale), shared.ErrConcurrencyConflict)

	ghost := *s
	ghost.ID = uuid.New()
	assert.ErrorIs(t, repo.Save(ctx, &ghost), subscription.ErrNoSubscription)
}

func TestGormSubscriptionRepository_Activate(t *testing.T) {
	ctx := context.Background()
	planID := uuid.New()
	start := baseTime
	end := baseTime.AddDate(0, 1, 0)

	t.Run("creates the row when the business has none", func(t *testing.T) {
		repo := NewGormSubscriptionRepository(newSQLiteDB(t))
		businessID := uuid.New()

		got, err := repo.Activate(ctx, businessID, planID, start, end, baseTime)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.Equal(t, planID, got.PlanID)

		stored, err := repo.FindByBusinessID(ctx, businessID)
		require.NoError(t, err)
		require.NotNil(t, stored.EndsAt)
		assert.True(t, stored.EndsAt.Equal(end))
	})

	t.Run("activates an expired trial", func(t *testing.T) {
		repo := NewGormSubscriptionRepository(newSQLiteDB(t))
		s := newTrial(t, repo, baseTime.Add(-day))
		changed, err := repo.ExpireTrial(ctx, s.ID, baseTime)
		require.NoError(t, err)
		require.True(t, changed)

		got, err := repo.Activate(ctx, s.BusinessID, planID, start, end, baseTime)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.Equal(t, 3, got.Version)
	})

	t.Run("refuses cancelled subscriptions", func(t *testing.T) {
		repo := NewGormSubscriptionRepository(newSQLiteDB(t))
		s := newTrial(t, repo, baseTime.Add(day))
		require.NoError(t, subscription.Cancel(s, baseTime))
		require.NoError(t, repo.Save(ctx, s))

		_, err := repo.Activate(ctx, s.BusinessID, planID, start, end, baseTime)
		assert.ErrorIs(t, err, subscription.ErrCancelled)
	})

	t.Run("rejects an empty period", func(t *testing.T) {
		repo := NewGormSubscriptionRepository(newSQLiteDB(t))
		_, err := repo.Activate(ctx, uuid.New(), planID, start, start, baseTime)
		assert.ErrorIs(t, err, subscription.ErrInvalidPeriod)
	})
}

func TestGormSubscriptionRepository_GuardedTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSubscriptionRepository(newSQLiteDB(t))

	lapsed := newTrial(t, repo, baseTime.Add(-time.Hour))
	running := newTrial(t, repo, baseTime.Add(time.Hour))

	changed, err := repo.ExpireTrial(ctx, running.ID, baseTime)
	require.NoError(t, err)
	assert.False(t, changed, "trial still running")

	changed, err = repo.ExpireTrial(ctx, lapsed.ID, baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ExpireTrial(ctx, lapsed.ID, baseTime)
	require.NoError(t, err)
	assert.False(t, changed, "second expiry is a no-op")

	active, err := repo.Activate(ctx, uuid.New(), uuid.New(), baseTime.Add(-31*day), baseTime.Add(-time.Hour), baseTime)
	require.NoError(t, err)
	changed, err = repo.ExpireActive(ctx, active.ID, baseTime)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.ExpireActive(ctx, active.ID, baseTime)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.ExpireActive(ctx, running.ID, baseTime)
	require.NoError(t, err)
	assert.False(t, changed, "trials are not touched by the active expiry")
}

func TestGormSubscriptionRepository_MarkTrialWarned(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSubscriptionRepository(newSQLiteDB(t))
	s := newTrial(t, repo, baseTime.Add(2*day))

	ok, err := repo.MarkTrialWarned(ctx, s.ID, baseTime)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkTrialWarned(ctx, s.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastWarnedAt)
	assert.True(t, got.LastWarnedAt.Equal(baseTime))
}

func TestGormSubscriptionRepository_Scans(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSubscriptionRepository(newSQLiteDB(t))

	var lapsedIDs []uuid.UUID
	for i := 0; i < 5; i++ {
		s := newTrial(t, repo, baseTime.Add(-time.Duration(i+1)*time.Hour))
		lapsedIDs = append(lapsedIDs, s.ID)
	}
	soon := newTrial(t, repo, baseTime.Add(2*day))
	warned := newTrial(t, repo, baseTime.Add(day))
	_, err := repo.MarkTrialWarned(ctx, warned.ID, baseTime)
	require.NoError(t, err)
	newTrial(t, repo, baseTime.Add(10*day))

	t.Run("keyset paging visits every lapsed trial once in id order", func(t *testing.T) {
		var seen []uuid.UUID
		page := subscription.Page{Limit: 2}
		for {
			batch, err := repo.FindLapsedTrials(ctx, baseTime, page)
			require.NoError(t, err)
			if len(batch) == 0 {
				break
			}
			for _, s := range batch {
				seen = append(seen, s.ID)
			}
			page.AfterID = batch[len(batch)-1].ID
		}
		want := append([]uuid.UUID(nil), lapsedIDs...)
		sort.Slice(want, func(i, j int) bool { return want[i].String() < want[j].String() })
		assert.Equal(t, want, seen)
	})

	t.Run("warning window excludes warned and distant trials", func(t *testing.T) {
		got, err := repo.FindTrialsEndingBetween(ctx, baseTime, baseTime.Add(3*day), subscription.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, soon.ID, got[0].ID)
	})

	t.Run("lapsed active", func(t *testing.T) {
		a, err := repo.Activate(ctx, uuid.New(), uuid.New(), baseTime.Add(-31*day), baseTime.Add(-day), baseTime)
		require.NoError(t, err)
		_, err = repo.Activate(ctx, uuid.New(), uuid.New(), baseTime, baseTime.Add(30*day), baseTime)
		require.NoError(t, err)

		got, err := repo.FindLapsedActive(ctx, baseTime, subscription.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.ID, got[0].ID)
	})
}
