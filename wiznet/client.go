package wiznet

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/arloliu/go-anc/internal/pool"
	"github.com/arloliu/go-anc/logger"
	"github.com/google/uuid"
)

// Client performs framed exchanges with an instrument behind a bridge device.
//
// Each exchange opens and closes its own TCP connection; no connection state
// survives between calls. Exchanges on the same Client are serialized.
type Client struct {
	cfg    *ClientConfig
	logger logger.Logger
	dialer *net.Dialer

	mu sync.Mutex

	metrics ClientMetrics
}

// NewClient creates a Client with the given configuration.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("wiznet: client config is nil")
	}

	return &Client{
		cfg:    cfg,
		logger: cfg.logger.With("addr", cfg.Addr()),
		dialer: &net.Dialer{Timeout: cfg.connectTimeout},
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig {
	return c.cfg
}

// GetMetrics returns the metrics of the client.
func (c *Client) GetMetrics() *ClientMetrics {
	return &c.metrics
}

// Exchange sends command and returns the reply payload with the trailing
// linebreak and prompt removed.
//
// Transport failures are retried up to the configured limit, after which the
// returned error matches ErrRetriesExhausted. A reply that is not properly
// terminated is returned at once as a *FramingError.
func (c *Client) Exchange(command string) (string, error) {
	return c.run(command, true)
}

// Write sends command without waiting for a reply.
//
// Only dial and send failures are detected; they are retried like in Exchange.
func (c *Client) Write(command string) error {
	_, err := c.run(command, false)

	return err
}

func (c *Client) run(command string, wantReply bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.incExchangeCount()

	l := c.logger.With("exchangeID", uuid.NewString(), "command", command)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.retries; attempt++ {
		c.metrics.incAttemptCount()

		reply, err := c.attempt(l, command, wantReply)
		if err == nil {
			l.Debug("wiznet: exchange done", "attempt", attempt)
			return reply, nil
		}

		if errors.Is(err, ErrFraming) {
			c.metrics.incFramingErrCount()
			l.Debug("wiznet: reply rejected", "attempt", attempt, "error", err)

			return "", err
		}

		c.metrics.incTransportErrCount()
		l.Debug("wiznet: attempt failed", "attempt", attempt, "error", err)
		lastErr = err
	}

	c.metrics.incRetriesExhaustedCount()
	l.Warn("wiznet: giving up", "retries", c.cfg.retries, "error", lastErr)

	return "", fmt.Errorf("%w: failed to reach %s after %d attempts: %w",
		ErrRetriesExhausted, c.cfg.Addr(), c.cfg.retries, lastErr)
}

// attempt performs one connect/drain/send/read/close cycle.
func (c *Client) attempt(l logger.Logger, command string, wantReply bool) (string, error) {
	conn, dialErr := c.dialer.Dial("tcp", c.cfg.Addr())

	// The bridge drops writes issued right after accept. The delay is also
	// kept on dial failure so that retries stay paced.
	pool.Sleep(c.cfg.settleDelay)

	if dialErr != nil {
		pool.Sleep(c.cfg.closeDelay)
		return "", fmt.Errorf("dial: %w", dialErr)
	}
	defer c.closeConn(l, conn)

	if wantReply {
		if n := c.drain(conn); n > 0 {
			l.Debug("wiznet: drained stale bytes", "bytes", n)
		}
		pool.Sleep(c.cfg.settleDelay)
	}

	if err := c.send(conn, command); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	if !wantReply {
		return "", nil
	}

	pool.Sleep(c.cfg.settleDelay)

	reply, err := c.readReply(conn)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	return c.cfg.frame.Decode(command, reply)
}

// drain discards whatever the bridge still buffers from an earlier exchange.
// Running out of data before the drain timeout is the normal case.
func (c *Client) drain(conn net.Conn) int {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.drainTimeout)); err != nil {
		return 0
	}

	buf := make([]byte, c.cfg.readBufferSize)
	total := 0
	for {
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			return total
		}
	}
}

func (c *Client) send(conn net.Conn, command string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.sendTimeout)); err != nil {
		return err
	}

	_, err := conn.Write(c.cfg.frame.Encode(command))

	return err
}

// readReply performs the single bounded read of a reply.
func (c *Client) readReply(conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.replyTimeout)); err != nil {
		return "", err
	}

	buf := make([]byte, c.cfg.readBufferSize)
	n, err := conn.Read(buf)
	if n > 0 {
		return string(buf[:n]), nil
	}
	if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
		return "", ErrEmptyReply
	}

	return "", fmt.Errorf("%w: %w", ErrEmptyReply, err)
}

// closeConn half-closes the write side, waits the close delay and closes.
// Errors on an already broken connection are ignored.
func (c *Client) closeConn(l logger.Logger, conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	pool.Sleep(c.cfg.closeDelay)

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		l.Debug("wiznet: close failed", "error", err)
	}
}
