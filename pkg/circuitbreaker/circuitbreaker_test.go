package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errSink = errors.New("sink down")

func failing(context.Context) error { return errSink }
func ok(context.Context) error      { return nil }

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(Settings{Name: "test", TripAfter: 2, Cooldown: time.Hour})

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errSink)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errSink)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := New(Settings{Name: "test", TripAfter: 2})

	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), ok)
	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	var transitions []State
	cb := New(Settings{
		Name:          "test",
		TripAfter:     1,
		CloseAfter:    1,
		Cooldown:      10 * time.Millisecond,
		OnStateChange: func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Settings{Name: "test", TripAfter: 1, Cooldown: 10 * time.Millisecond})

	_ = cb.Execute(context.Background(), failing)
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(context.Background(), failing)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
}

func TestBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	cb := New(Settings{Name: "test", TripAfter: 1, Cooldown: 10 * time.Millisecond})
	_ = cb.Execute(context.Background(), failing)
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrTooManyRequests)
	close(release)
	assert.NoError(t, <-done)
}

func TestBreaker_CancellationDoesNotCount(t *testing.T) {
	cb := New(Settings{Name: "test", TripAfter: 1})

	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_CountsPredicate(t *testing.T) {
	cb := New(Settings{Name: "test", TripAfter: 1, Counts: func(err error) bool { return !errors.Is(err, errSink) }})

	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, StateClosed, cb.State())
}

func TestNotifierBreaker_Defaults(t *testing.T) {
	cb := NotifierBreaker("webhook", 0, nil)
	assert.Equal(t, "notifier-webhook", cb.Name())
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, DefaultSettings("").Cooldown, cb.s.Cooldown)
}
