package notification

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEntry(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	userID := uuid.New()

	entry, err := NewOutboxEntry(Message{
		Kind:    KindOfflineApproved,
		UserID:  userID,
		Payload: map[string]string{"reference_id": "OFF-1001"},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
	assert.Equal(t, now, entry.CreatedAt)

	msg, err := entry.Message()
	require.NoError(t, err)
	assert.Equal(t, KindOfflineApproved, msg.Kind)
	assert.Equal(t, userID, msg.UserID)
	assert.Equal(t, "OFF-1001", msg.Payload["reference_id"])

	t.Run("requires user", func(t *testing.T) {
		_, err := NewOutboxEntry(Message{Kind: KindTrialExpired}, now)
		assert.Error(t, err)
	})

	t.Run("requires kind", func(t *testing.T) {
		_, err := NewOutboxEntry(Message{UserID: userID}, now)
		assert.Error(t, err)
	})
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	entry, err := NewOutboxEntry(Message{Kind: KindTrialExpired, UserID: uuid.New()}, now)
	require.NoError(t, err)

	entry.MarkFailed("smtp down", now)
	assert.Equal(t, OutboxStatusFailed, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.NextRetryAt)
	assert.Equal(t, now.Add(DefaultBaseBackoff), *entry.NextRetryAt)
	assert.True(t, entry.CanRetry())

	entry.MarkFailed("smtp down", now)
	assert.Equal(t, now.Add(2*DefaultBaseBackoff), *entry.NextRetryAt)

	for entry.Status != OutboxStatusDead {
		entry.MarkFailed("smtp down", now)
	}
	assert.True(t, entry.IsDead())
	assert.Equal(t, DefaultMaxRetries, entry.RetryCount)
	assert.Nil(t, entry.NextRetryAt)
	assert.False(t, entry.CanRetry())
}

func TestOutboxEntry_MarkSentAndSkipped(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	entry, err := NewOutboxEntry(Message{Kind: KindTrialExpired, UserID: uuid.New()}, now)
	require.NoError(t, err)

	entry.MarkSent(now)
	assert.Equal(t, OutboxStatusSent, entry.Status)
	assert.Equal(t, now, *entry.ProcessedAt)

	entry.MarkSkipped("user inactive", now)
	assert.Equal(t, OutboxStatusSkipped, entry.Status)
	assert.Equal(t, "user inactive", entry.LastError)
}

func TestKind_Subject(t *testing.T) {
	kinds := []Kind{
		KindTrialExpiring, KindTrialExpired, KindSubscriptionExpired, KindSubscriptionActivated,
		KindPaymentFailed, KindOfflineSubmitted, KindOfflineApproved, KindOfflineRejected,
	}
	for _, k := range kinds {
		assert.NotEqual(t, "Account notification", k.Subject(), string(k))
	}
	assert.Equal(t, "Account notification", Kind("other").Subject())
}
