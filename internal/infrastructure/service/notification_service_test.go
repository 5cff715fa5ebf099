package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/internal/infrastructure/messaging"
	"github.com/lexprep/achievement-engine/pkg/retry"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []UnlockNotification
	fail      error
	calls     int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, n UnlockNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func (s *recordingSink) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func unlocked() shared.AchievementUnlockedEvent {
	return shared.NewAchievementUnlockedEvent("u1", "first-lesson", "First Steps", "📘",
		time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
}

func testNotifierConfig() NotifierConfig {
	return NotifierConfig{MaxAttempts: 1, MaxRedeliveries: 2, BreakerCooldown: time.Minute}
}

func TestNotifier_DeliversOncePerUnlock(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier(sink, nil, testNotifierConfig(), nil)

	require.NoError(t, n.HandleUnlocked(context.Background(), unlocked()))

	require.Len(t, sink.delivered, 1)
	got := sink.delivered[0]
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "first-lesson", got.AchievementID)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 0, n.Pending())
}

func TestNotifier_IgnoresOtherEvents(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier(sink, nil, testNotifierConfig(), nil)

	rejected := shared.NewActivityRejectedEvent("u1", "e1", "Bogus", "bad", time.Now())
	require.NoError(t, n.HandleUnlocked(context.Background(), rejected))
	assert.Empty(t, sink.delivered)
}

func TestNotifier_FailureParksAndRedeliveryRecovers(t *testing.T) {
	sink := &recordingSink{fail: errors.New("sink down")}
	dlq := messaging.NewDeadLetterQueue(10)
	n := NewNotifier(sink, dlq, testNotifierConfig(), nil)

	err := n.Notify(context.Background(), unlocked())
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, 1, n.Pending())

	sink.setFail(nil)
	delivered, dropped, err := n.Redeliver(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 0, n.Pending())
	require.Len(t, sink.delivered, 1)
}

func TestNotifier_RedeliveryGivesUp(t *testing.T) {
	sink := &recordingSink{fail: errors.New("sink down")}
	n := NewNotifier(sink, nil, testNotifierConfig(), nil)

	_ = n.Notify(context.Background(), unlocked())

	_, dropped, _ := n.Redeliver(context.Background())
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 1, n.Pending())

	_, dropped, _ = n.Redeliver(context.Background())
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, n.Pending())
}

func TestNotifier_Throttled(t *testing.T) {
	sink := &recordingSink{}
	cfg := testNotifierConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	n := NewNotifier(sink, nil, cfg, nil)

	require.NoError(t, n.Notify(context.Background(), unlocked()))
	err := n.Notify(context.Background(), unlocked())
	assert.ErrorIs(t, err, shared.ErrRateLimited)
	assert.Equal(t, 1, n.Pending())
}

func TestNotifier_OpenBreakerFailsFast(t *testing.T) {
	sink := &recordingSink{fail: errors.New("sink down")}
	n := NewNotifier(sink, nil, testNotifierConfig(), nil)

	for i := 0; i < 5; i++ {
		_ = n.Notify(context.Background(), unlocked())
	}
	assert.Equal(t, "open", n.BreakerState())

	err := n.Notify(context.Background(), unlocked())
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, 5, sink.calls)
	assert.Equal(t, 6, n.Pending())
}

func TestNotificationID_StableAcrossDeliveries(t *testing.T) {
	a := toNotification(unlocked())
	b := toNotification(unlocked())
	assert.Equal(t, a.ID, b.ID)
}

func TestWebhookSink(t *testing.T) {
	var (
		status = http.StatusNoContent
		got    UnlockNotification
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "s3cret", r.Header.Get("X-Webhook-Secret"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	note := toNotification(unlocked())

	require.NoError(t, sink.Deliver(context.Background(), note))
	assert.Equal(t, note.ID, got.ID)

	status = http.StatusServiceUnavailable
	err := sink.Deliver(context.Background(), note)
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))

	status = http.StatusBadRequest
	err = sink.Deliver(context.Background(), note)
	require.Error(t, err)
	assert.False(t, retry.IsRetryable(err))
}

type fakeQueue struct {
	items []any
	err   error
}

func (q *fakeQueue) Push(_ context.Context, v any) error {
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, v)
	return nil
}

func TestQueueSink(t *testing.T) {
	q := &fakeQueue{}
	sink := NewQueueSink(q)
	require.NoError(t, sink.Deliver(context.Background(), toNotification(unlocked())))
	assert.Len(t, q.items, 1)

	q.err = errors.New("connection refused")
	assert.True(t, retry.IsRetryable(sink.Deliver(context.Background(), toNotification(unlocked()))))
}
