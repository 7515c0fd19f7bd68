package wiznet

import (
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// replyFunc decides the bridge answer for the n-th connection (1-based).
// Returning ok=false leaves the command unanswered until the client hangs up.
type replyFunc func(n int, command string) (reply string, ok bool)

// fakeBridge imitates the serial-to-Ethernet bridge: one command per
// connection, answered by a replyFunc.
type fakeBridge struct {
	t     *testing.T
	ln    net.Listener
	reply replyFunc

	conns atomic.Int32

	mu       sync.Mutex
	received []string
	stale    string
	hangUp   bool
}

func newFakeBridge(t *testing.T, reply replyFunc) *fakeBridge {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := &fakeBridge{t: t, ln: ln, reply: reply}
	t.Cleanup(func() { _ = ln.Close() })

	go b.serve()

	return b
}

// withStale makes the bridge push data right after accepting a connection,
// as if left over from an aborted exchange.
func (b *fakeBridge) withStale(data string) *fakeBridge {
	b.mu.Lock()
	b.stale = data
	b.mu.Unlock()

	return b
}

// withHangUp makes the bridge close every connection as soon as the command
// is read, without answering.
func (b *fakeBridge) withHangUp() *fakeBridge {
	b.mu.Lock()
	b.hangUp = true
	b.mu.Unlock()

	return b
}

func (b *fakeBridge) port() int {
	return b.ln.Addr().(*net.TCPAddr).Port
}

func (b *fakeBridge) connCount() int {
	return int(b.conns.Load())
}

// requests returns the raw bytes received on each connection, in order.
func (b *fakeBridge) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.received))
	copy(out, b.received)

	return out
}

func (b *fakeBridge) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.handle(conn)
	}
}

func (b *fakeBridge) handle(conn net.Conn) {
	defer conn.Close()

	n := int(b.conns.Add(1))

	b.mu.Lock()
	stale, hangUp := b.stale, b.hangUp
	b.mu.Unlock()

	if stale != "" {
		_, _ = conn.Write([]byte(stale))
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var data []byte
	buf := make([]byte, 256)
	for !strings.Contains(string(data), "\r\n") {
		k, err := conn.Read(buf)
		data = append(data, buf[:k]...)
		if err != nil {
			break
		}
	}

	b.mu.Lock()
	b.received = append(b.received, string(data))
	b.mu.Unlock()

	if len(data) == 0 || hangUp {
		return
	}

	if b.reply != nil {
		if reply, ok := b.reply(n, strings.TrimSuffix(string(data), "\r\n")); ok {
			_, _ = conn.Write([]byte(reply))
		}
	}

	// Wait for the client to hang up.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

// always answers every command with payload + "\r\n> ".
func always(payload string) replyFunc {
	return func(int, string) (string, bool) {
		return payload + "\r\n> ", true
	}
}

// silent never answers.
func silent() replyFunc {
	return func(int, string) (string, bool) {
		return "", false
	}
}

// fastOptions shrinks every delay so that tests run in milliseconds.
func fastOptions() []ClientOption {
	return []ClientOption{
		WithSettleDelay(time.Millisecond),
		WithCloseDelay(time.Millisecond),
		WithDrainTimeout(5 * time.Millisecond),
		WithReplyTimeout(300 * time.Millisecond),
		WithConnectTimeout(300 * time.Millisecond),
	}
}

func newTestClient(t *testing.T, port int, opts ...ClientOption) *Client {
	t.Helper()

	cfg, err := NewClientConfig("127.0.0.1", port, append(fastOptions(), opts...)...)
	require.NoError(t, err)

	c, err := NewClient(cfg)
	require.NoError(t, err)

	return c
}

// closedPort returns a local port with no listener.
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func isFraming(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}
