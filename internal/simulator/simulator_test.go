package simulator

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-anc/anc"
	"github.com/arloliu/go-anc/logger"
	"github.com/arloliu/go-anc/wiznet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSimulator(t *testing.T, n int, opts ...Option) *Simulator {
	t.Helper()

	opts = append([]Option{WithLogger(logger.NewMockLogger().AllowAll())}, opts...)
	sim, err := Listen("127.0.0.1:0", n, opts...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sim.Serve(context.Background()) }()

	t.Cleanup(func() {
		require.NoError(t, sim.Close())
		require.ErrorIs(t, <-done, ErrServerClosed)
	})

	return sim
}

func newController(t *testing.T, sim *Simulator, axes ...string) (*anc.Controller, *wiznet.Client) {
	t.Helper()

	l := logger.NewMockLogger().AllowAll()
	cfg, err := wiznet.NewClientConfig("127.0.0.1", sim.Port(),
		wiznet.WithSettleDelay(time.Millisecond),
		wiznet.WithCloseDelay(time.Millisecond),
		wiznet.WithDrainTimeout(5*time.Millisecond),
		wiznet.WithReplyTimeout(time.Second),
		wiznet.WithRetries(3),
		wiznet.WithLogger(l),
	)
	require.NoError(t, err)

	client, err := wiznet.NewClient(cfg)
	require.NoError(t, err)

	ctrl, err := anc.New(client, axes,
		anc.WithLogger(l),
		anc.WithSleeper(func(time.Duration) {}),
	)
	require.NoError(t, err)

	return ctrl, client
}

func TestEndToEnd_EnsureStepMode(t *testing.T) {
	sim := startSimulator(t, 3, WithMode(1, anc.ModeStep))
	ctrl, _ := newController(t, sim, "x", "z", "y")

	prev, err := ctrl.EnsureStepMode("x", "z", "y")
	require.NoError(t, err)
	assert.Equal(t, []anc.Mode{anc.ModeStep, anc.ModeGround, anc.ModeGround}, prev)
	assert.Equal(t, []string{"getm 1", "getm 2", "setm 2 stp", "getm 3", "setm 3 stp"}, sim.Commands())

	for ch := 1; ch <= 3; ch++ {
		assert.Equal(t, anc.ModeStep, sim.Mode(ch))
	}
}

func TestEndToEnd_CheckConnections(t *testing.T) {
	sim := startSimulator(t, 3, WithCapacitance(2, 850.5))
	ctrl, _ := newController(t, sim, "x", "z", "y")

	value, err := ctrl.CheckCapacitance("z")
	require.NoError(t, err)
	assert.InDelta(t, 850.5, value, 1e-9)

	connected, err := ctrl.CheckConnections()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, connected)

	for ch := 1; ch <= 3; ch++ {
		assert.Equal(t, anc.ModeStep, sim.Mode(ch), "channel %d left in step mode", ch)
	}
}

func TestEndToEnd_Step(t *testing.T) {
	sim := startSimulator(t, 2)
	ctrl, client := newController(t, sim, "x", "y")

	require.NoError(t, ctrl.Startup())
	require.NoError(t, ctrl.Step("y", -40))
	require.NoError(t, ctrl.Step("y", 15))
	require.NoError(t, ctrl.Step("w", 15))

	assert.Equal(t, int64(-25), sim.Position(2))
	assert.Zero(t, sim.Position(1))

	count, err := ctrl.StepCount("y")
	require.NoError(t, err)
	assert.Equal(t, int64(-25), count)

	m := client.GetMetrics()
	assert.Equal(t, uint64(4), m.ExchangeCount.Load())
	assert.Zero(t, m.TransportErrCount.Load())
}

func TestEndToEnd_WrongModeIsPayload(t *testing.T) {
	sim := startSimulator(t, 1)
	ctrl, _ := newController(t, sim, "x")

	reply, err := ctrl.Raw("stepu 1 10")
	require.NoError(t, err)
	assert.Equal(t, replyWrongMode, reply)
	assert.Zero(t, sim.Position(1))

	reply, err = ctrl.Raw("getf 1")
	require.NoError(t, err)
	assert.Equal(t, replyBadCommand, reply)

	reply, err = ctrl.Raw("getm 7")
	require.NoError(t, err)
	assert.Equal(t, replyWrongAxis, reply)
}

func TestServe_StopsWithContext(t *testing.T) {
	sim, err := Listen("127.0.0.1:0", 1, WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestClose_WhileClientsConnect(t *testing.T) {
	sim, err := Listen("127.0.0.1:0", 1, WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sim.Serve(context.Background()) }()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, err := net.DialTimeout("tcp", sim.Addr().String(), 100*time.Millisecond)
				if err != nil {
					continue
				}
				_, _ = conn.Write([]byte("getm 1\r\n"))
				_ = conn.Close()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- sim.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	require.ErrorIs(t, <-done, ErrServerClosed)

	close(stop)
	wg.Wait()
}

func TestListen_InvalidChannelCount(t *testing.T) {
	_, err := Listen("127.0.0.1:0", 0)
	require.Error(t, err)
}
