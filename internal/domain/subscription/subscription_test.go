package subscription

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTrial(t *testing.T, now time.Time) *Subscription {
	t.Helper()
	s, err := NewTrial(uuid.New(), uuid.New(), now, 14*24*time.Hour)
	require.NoError(t, err)
	return s
}

func TestNewTrial(t *testing.T) {
	t.Run("creates trial ending after trial length", func(t *testing.T) {
		s := newTrial(t, baseTime)

		assert.Equal(t, StatusTrial, s.Status)
		require.NotNil(t, s.TrialEndsAt)
		assert.Equal(t, baseTime.Add(14*24*time.Hour), *s.TrialEndsAt)
		assert.Equal(t, baseTime, s.StartsAt)
		assert.Nil(t, s.EndsAt)
		assert.Equal(t, 1, s.Version)
	})

	t.Run("fails without business ID", func(t *testing.T) {
		s, err := NewTrial(uuid.Nil, uuid.New(), baseTime, time.Hour)
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	t.Run("fails with non-positive trial length", func(t *testing.T) {
		s, err := NewTrial(uuid.New(), uuid.New(), baseTime, 0)
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}

func TestActivate(t *testing.T) {
	planID := uuid.New()
	start := baseTime
	end := baseTime.AddDate(0, 1, 0)

	tests := []struct {
		name    string
		status  Status
		wantErr error
	}{
		{"from trial", StatusTrial, nil},
		{"from active renews", StatusActive, nil},
		{"from expired renews", StatusExpired, nil},
		{"from cancelled is rejected", StatusCancelled, ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTrial(t, baseTime)
			s.Status = tt.status

			err := Activate(s, planID, start, end, baseTime)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.status, s.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusActive, s.Status)
			assert.Equal(t, planID, s.PlanID)
			assert.Equal(t, start, s.StartsAt)
			require.NotNil(t, s.EndsAt)
			assert.Equal(t, end, *s.EndsAt)
			assert.Equal(t, 2, s.Version)
		})
	}

	t.Run("rejects empty period", func(t *testing.T) {
		s := newTrial(t, baseTime)
		err := Activate(s, planID, start, start, baseTime)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
		assert.Equal(t, StatusTrial, s.Status)
	})
}

func TestExpireTrial(t *testing.T) {
	t.Run("expires lapsed trial", func(t *testing.T) {
		s := newTrial(t, baseTime)
		changed, err := ExpireTrial(s, s.TrialEndsAt.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusExpired, s.Status)
	})

	t.Run("no-op when already expired", func(t *testing.T) {
		s := newTrial(t, baseTime)
		s.Status = StatusExpired
		changed, err := ExpireTrial(s, baseTime.AddDate(1, 0, 0))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("refuses trial that has not ended", func(t *testing.T) {
		s := newTrial(t, baseTime)
		changed, err := ExpireTrial(s, baseTime.Add(time.Hour))
		assert.ErrorIs(t, err, ErrNotYetEnded)
		assert.False(t, changed)
		assert.Equal(t, StatusTrial, s.Status)
	})

	t.Run("refuses active subscription", func(t *testing.T) {
		s := newTrial(t, baseTime)
		require.NoError(t, Activate(s, uuid.New(), baseTime, baseTime.AddDate(0, 1, 0), baseTime))
		_, err := ExpireTrial(s, baseTime.AddDate(1, 0, 0))
		assert.ErrorIs(t, err, ErrNotInTrial)
		assert.Equal(t, StatusActive, s.Status)
	})

	t.Run("never touches cancelled", func(t *testing.T) {
		s := newTrial(t, baseTime)
		require.NoError(t, Cancel(s, baseTime))
		_, err := ExpireTrial(s, baseTime.AddDate(1, 0, 0))
		assert.Error(t, err)
		assert.Equal(t, StatusCancelled, s.Status)
	})
}

func TestExpireSubscription(t *testing.T) {
	active := func(t *testing.T) *Subscription {
		s := newTrial(t, baseTime)
		require.NoError(t, Activate(s, uuid.New(), baseTime, baseTime.AddDate(0, 1, 0), baseTime))
		return s
	}

	t.Run("expires lapsed active subscription", func(t *testing.T) {
		s := active(t)
		changed, err := ExpireSubscription(s, s.EndsAt.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusExpired, s.Status)
	})

	t.Run("no-op when already expired", func(t *testing.T) {
		s := active(t)
		s.Status = StatusExpired
		changed, err := ExpireSubscription(s, s.EndsAt.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("refuses period that has not ended", func(t *testing.T) {
		s := active(t)
		_, err := ExpireSubscription(s, baseTime.Add(time.Hour))
		assert.ErrorIs(t, err, ErrNotYetEnded)
		assert.Equal(t, StatusActive, s.Status)
	})

	t.Run("refuses trial", func(t *testing.T) {
		s := newTrial(t, baseTime)
		_, err := ExpireSubscription(s, baseTime.AddDate(1, 0, 0))
		assert.ErrorIs(t, err, ErrNotActive)
	})
}

func TestCurrentEntitlement(t *testing.T) {
	t.Run("trial reports days remaining rounded up", func(t *testing.T) {
		s := newTrial(t, baseTime)
		e := CurrentEntitlement(s, baseTime.Add(36*time.Hour))
		assert.Equal(t, StatusTrial, e.Status)
		assert.Equal(t, 13, e.DaysRemaining)
	})

	t.Run("lapsed trial reads as expired before sweep", func(t *testing.T) {
		s := newTrial(t, baseTime)
		e := CurrentEntitlement(s, s.TrialEndsAt.Add(time.Second))
		assert.Equal(t, StatusExpired, e.Status)
		assert.Equal(t, 0, e.DaysRemaining)
		assert.Equal(t, StatusTrial, s.Status, "projection must not mutate")
	})

	t.Run("cancelled stays cancelled", func(t *testing.T) {
		s := newTrial(t, baseTime)
		require.NoError(t, Cancel(s, baseTime))
		e := CurrentEntitlement(s, baseTime)
		assert.Equal(t, StatusCancelled, e.Status)
		assert.False(t, e.Status.AllowsWrites())
	})
}

// Any interleaving of activation and expiry attempts never leaves a
// subscription expired after a successful activation with a future end date,
// and never moves a cancelled subscription.
func TestTransitionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, err := NewTrial(uuid.New(), uuid.New(), baseTime, 14*24*time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		now := baseTime
		activatedUntil := time.Time{}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 20*24).Draw(t, "advanceHours")) * time.Hour)
			op := rapid.SampledFrom([]string{"activate", "expireTrial", "expireSubscription", "cancel"}).Draw(t, "op")
			before := s.Status

			switch op {
			case "activate":
				end := now.AddDate(0, 1, 0)
				err := Activate(s, uuid.New(), now, end, now)
				if before == StatusCancelled {
					if err == nil {
						t.Fatalf("activated a cancelled subscription")
					}
				} else if err == nil {
					activatedUntil = end
				}
			case "expireTrial":
				_, _ = ExpireTrial(s, now)
			case "expireSubscription":
				_, _ = ExpireSubscription(s, now)
			case "cancel":
				_ = Cancel(s, now)
			}

			if before == StatusCancelled && s.Status != StatusCancelled {
				t.Fatalf("left cancelled state via %s", op)
			}
			if s.Status == StatusExpired && !activatedUntil.IsZero() && now.Before(activatedUntil) {
				t.Fatalf("expired at %v although activation runs until %v", now, activatedUntil)
			}
			if !s.Status.IsValid() {
				t.Fatalf("invalid status %q", s.Status)
			}
		}
	})
}
