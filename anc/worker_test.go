package anc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, dev Exchanger) *Worker {
	t.Helper()

	c, _ := newTestController(t, dev)
	w, err := NewWorker(context.Background(), c, 0)
	require.NoError(t, err)
	t.Cleanup(w.Close)

	return w
}

func TestWorker_RunsJobsInOrder(t *testing.T) {
	dev := newFakeDevice()
	w := newTestWorker(t, dev)

	ctx := context.Background()
	require.NoError(t, w.Do(ctx, func(c *Controller) error { return c.SetMode("x", ModeStep) }))
	require.NoError(t, w.Do(ctx, func(c *Controller) error { return c.Step("x", 3) }))

	mode, err := Call(ctx, w, func(c *Controller) (Mode, error) { return c.ReadMode("x") })
	require.NoError(t, err)
	assert.Equal(t, ModeStep, mode)

	assert.Equal(t, []string{"setm 1 stp", "stepu 1 3", "getm 1"}, dev.sent())
}

func TestWorker_ReturnsJobError(t *testing.T) {
	w := newTestWorker(t, newFakeDevice())

	err := w.Do(context.Background(), func(c *Controller) error {
		return c.SetMode("w", ModeStep)
	})
	require.ErrorIs(t, err, ErrUnknownAxis)

	_, err = Call(context.Background(), w, func(c *Controller) ([]bool, error) {
		return nil, errors.New("boom")
	})
	require.EqualError(t, err, "boom")
}

func TestWorker_CallerGivesUpWhileJobCompletes(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var sent []string

	w := newTestWorker(t, exchangerFunc(func(cmd string) (string, error) {
		<-release
		mu.Lock()
		sent = append(sent, cmd)
		mu.Unlock()

		return "OK", nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Do(ctx, func(c *Controller) error { return c.SetMode("z", ModeGround) })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1 && sent[0] == "setm 2 gnd"
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_CancelledContextSendsNothing(t *testing.T) {
	dev := newFakeDevice()
	w := newTestWorker(t, dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		err := w.Do(ctx, func(c *Controller) error { return c.Step("x", 5) })
		require.ErrorIs(t, err, context.Canceled)
	}

	// a later job runs after anything that might have been queued
	require.NoError(t, w.Do(context.Background(), func(c *Controller) error { return c.SetMode("x", ModeStep) }))
	assert.Equal(t, []string{"setm 1 stp"}, dev.sent())
}

func TestWorker_DropsQueuedJobOfAbandonedCaller(t *testing.T) {
	dev := newFakeDevice()
	w := newTestWorker(t, dev)

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- w.Do(context.Background(), func(*Controller) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Do(ctx, func(c *Controller) error { return c.Step("z", -7) })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-firstDone)

	require.NoError(t, w.Do(context.Background(), func(c *Controller) error { return c.SetMode("y", ModeStep) }))
	assert.Equal(t, []string{"setm 3 stp"}, dev.sent())
}

func TestWorker_Closed(t *testing.T) {
	c, _ := newTestController(t, newFakeDevice())
	w, err := NewWorker(context.Background(), c, 1)
	require.NoError(t, err)
	assert.Same(t, c, w.Controller())

	w.Close()
	w.Close()

	err = w.Do(context.Background(), func(*Controller) error { return nil })
	require.ErrorIs(t, err, ErrWorkerClosed)
}

func TestWorker_ParentContextStops(t *testing.T) {
	c, _ := newTestController(t, newFakeDevice())
	ctx, cancel := context.WithCancel(context.Background())

	w, err := NewWorker(ctx, c, 1)
	require.NoError(t, err)

	cancel()
	w.Close()

	err = w.Do(context.Background(), func(*Controller) error { return nil })
	require.ErrorIs(t, err, ErrWorkerClosed)
}

func TestWorker_RecoversPanic(t *testing.T) {
	w := newTestWorker(t, newFakeDevice())

	err := w.Do(context.Background(), func(*Controller) error { panic("bad job") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad job")

	require.NoError(t, w.Do(context.Background(), func(c *Controller) error { return c.Startup() }))
}

func TestNewWorker_NilController(t *testing.T) {
	_, err := NewWorker(context.Background(), nil, 1)
	require.Error(t, err)
}
