package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/formflow/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func TestDispatch(t *testing.T) {
	t.Run("calls typed handlers then wildcard handlers", func(t *testing.T) {
		d := NewDispatcher()
		var order []string

		d.SubscribeAll("audit-log", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "wildcard")
			return nil
		})
		d.Subscribe(event.TypeTransitionCommitted, "typed", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "typed")
			return nil
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeTransitionCommitted, 1, nil))

		require.NoError(t, err)
		assert.Equal(t, []string{"typed", "wildcard"}, order)
	})

	t.Run("skips handlers of other types", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		d.Subscribe(event.TypeSubmissionCreated, "created", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeConsentRecorded, 1, nil)))
		assert.False(t, called)
	})

	t.Run("stops at first error", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		second := false

		d.Subscribe(event.TypeConsentRecorded, "failing", func(ctx context.Context, evt *event.Event) error {
			return errors.New("boom")
		})
		d.Subscribe(event.TypeConsentRecorded, "second", func(ctx context.Context, evt *event.Event) error {
			second = true
			return nil
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeConsentRecorded, 1, nil))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler failing failed")
		assert.False(t, second)
		assert.Equal(t, 1, logger.ErrorCount())
	})

	t.Run("recovers handler panic", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeConsentRecorded, "panics", func(ctx context.Context, evt *event.Event) error {
			panic("unexpected")
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeConsentRecorded, 1, nil))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler panic")
	})

	t.Run("rejects events after close", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.Close())

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeConsentRecorded, 1, nil))
		assert.Error(t, err)
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("close waits for running handlers", func(t *testing.T) {
		d := NewDispatcher()
		var calls atomic.Int32

		d.Subscribe(event.TypeTransitionCommitted, "count", func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			return nil
		})
		d.SubscribeAll("count-all", func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			return nil
		})

		for i := 0; i < 10; i++ {
			d.DispatchAsync(context.Background(), event.NewEvent(event.TypeTransitionCommitted, int64(i), nil))
		}

		require.NoError(t, d.Close())
		assert.Equal(t, int32(20), calls.Load())
	})

	t.Run("handlers survive caller cancellation", func(t *testing.T) {
		d := NewDispatcher()
		var seen atomic.Value

		d.Subscribe(event.TypeConsentRecorded, "ctx", func(ctx context.Context, evt *event.Event) error {
			seen.Store(ctx.Err() == nil)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d.DispatchAsync(ctx, event.NewEvent(event.TypeConsentRecorded, 1, nil))

		require.NoError(t, d.Close())
		assert.Equal(t, true, seen.Load())
	})

	t.Run("logs async handler errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		d.Subscribe(event.TypeConsentRecorded, "failing", func(ctx context.Context, evt *event.Event) error {
			return errors.New("boom")
		})

		d.DispatchAsync(context.Background(), event.NewEvent(event.TypeConsentRecorded, 1, nil))
		require.NoError(t, d.Close())

		assert.Equal(t, 1, logger.ErrorCount())
	})

	t.Run("drops events after close", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		require.NoError(t, d.Close())

		d.DispatchAsync(context.Background(), event.NewEvent(event.TypeConsentRecorded, 1, nil))
		assert.Equal(t, 1, logger.ErrorCount())
	})
}

func TestListHandlers(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Subscribe(event.TypeTransitionCommitted, "committed", noop)
	d.SubscribeAll("everything", noop)

	handlers := d.ListHandlers(event.TypeTransitionCommitted)
	require.Len(t, handlers, 2)
	assert.Equal(t, "committed", handlers[0].Name)
	assert.Equal(t, "everything", handlers[1].Name)
	assert.Nil(t, handlers[0].Handler)

	assert.Len(t, d.ListHandlers(event.TypeSubmissionCreated), 1)
}

func TestClose_Twice(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Close())
	assert.Error(t, d.Close())
}
