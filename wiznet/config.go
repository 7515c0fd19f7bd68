package wiznet

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/arloliu/go-anc/logger"
)

// Default values. The delays were found empirically on the bridge hardware.
const (
	DefaultPort = 5000

	DefaultRetries = 50

	DefaultSettleDelay    = 100 * time.Millisecond // wait after dial, after drain and after send
	DefaultCloseDelay     = 100 * time.Millisecond // wait between half-close and close
	DefaultDrainTimeout   = 10 * time.Millisecond  // bound of the stale-data read
	DefaultReplyTimeout   = 1 * time.Second        // bound of the reply read
	DefaultConnectTimeout = 2 * time.Second
	DefaultSendTimeout    = 1 * time.Second

	DefaultReadBufferSize = 1024 // a reply never exceeds this in one read
)

// Limits enforced by the options.
const (
	MaxRetries        = 1000
	MinReadBufferSize = 64
	MaxReadBufferSize = 64 * 1024
)

// ClientConfig holds the endpoint, frame and timing parameters of a Client.
// It is immutable once created.
type ClientConfig struct {
	host string
	port int

	frame Frame

	retries int

	settleDelay    time.Duration
	closeDelay     time.Duration
	drainTimeout   time.Duration
	replyTimeout   time.Duration
	connectTimeout time.Duration
	sendTimeout    time.Duration

	readBufferSize int

	logger logger.Logger
}

// NewClientConfig creates a configuration for the bridge at host:port.
//
// opts are applied in order; see the With* functions.
func NewClientConfig(host string, port int, opts ...ClientOption) (*ClientConfig, error) {
	cfg := &ClientConfig{
		frame:          DefaultFrame(),
		retries:        DefaultRetries,
		settleDelay:    DefaultSettleDelay,
		closeDelay:     DefaultCloseDelay,
		drainTimeout:   DefaultDrainTimeout,
		replyTimeout:   DefaultReplyTimeout,
		connectTimeout: DefaultConnectTimeout,
		sendTimeout:    DefaultSendTimeout,
		readBufferSize: DefaultReadBufferSize,
		logger:         logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.readBufferSize <= len(cfg.frame.Terminator()) {
		return nil, fmt.Errorf("wiznet: read buffer size %d cannot hold the frame terminator", cfg.readBufferSize)
	}

	return cfg, nil
}

func (cfg *ClientConfig) setHost(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		cfg.host = host
		return nil
	}

	host = strings.TrimPrefix(host, ".")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return errors.New("wiznet: empty host")
	}
	if _, err := net.LookupHost(host); err == nil {
		cfg.host = host
		return nil
	}

	return fmt.Errorf("wiznet: invalid host %q", host)
}

func (cfg *ClientConfig) setPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("wiznet: port %d out of range [1, 65535]", port)
	}
	cfg.port = port

	return nil
}

// Host returns the bridge host.
func (cfg *ClientConfig) Host() string { return cfg.host }

// Port returns the bridge TCP port.
func (cfg *ClientConfig) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *ClientConfig) Addr() string { return net.JoinHostPort(cfg.host, fmt.Sprint(cfg.port)) }

// Frame returns the request/reply delimiters.
func (cfg *ClientConfig) Frame() Frame { return cfg.frame }

// Retries returns the maximum number of attempts per exchange.
func (cfg *ClientConfig) Retries() int { return cfg.retries }

// SettleDelay returns the wait inserted after dialing, draining and sending.
func (cfg *ClientConfig) SettleDelay() time.Duration { return cfg.settleDelay }

// CloseDelay returns the wait between half-closing and closing a connection.
func (cfg *ClientConfig) CloseDelay() time.Duration { return cfg.closeDelay }

// DrainTimeout returns the bound of the stale-data read.
func (cfg *ClientConfig) DrainTimeout() time.Duration { return cfg.drainTimeout }

// ReplyTimeout returns the bound of the reply read.
func (cfg *ClientConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// ConnectTimeout returns the TCP dial timeout.
func (cfg *ClientConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// SendTimeout returns the TCP write timeout.
func (cfg *ClientConfig) SendTimeout() time.Duration { return cfg.sendTimeout }

// ReadBufferSize returns the size of the single reply read.
func (cfg *ClientConfig) ReadBufferSize() int { return cfg.readBufferSize }

// GetLogger returns the configured logger.
func (cfg *ClientConfig) GetLogger() logger.Logger { return cfg.logger }

// ExchangeLatency returns the pacing cost of one successful exchange, excluding
// network time. The worst case of an exchange is Retries times this value plus
// the timeouts of the failing operations.
func (cfg *ClientConfig) ExchangeLatency() time.Duration {
	return 3*cfg.settleDelay + cfg.closeDelay
}

// --- ClientOption ---

// ClientOption is a functional option for configuring a ClientConfig.
type ClientOption interface {
	apply(*ClientConfig) error
}

type clientOptFunc func(*ClientConfig) error

func (f clientOptFunc) apply(cfg *ClientConfig) error { return f(cfg) }

// WithFrame sets the linebreak and prompt delimiters. The linebreak must not be empty.
func WithFrame(linebreak string, prompt string) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if linebreak == "" {
			return errors.New("wiznet: linebreak must not be empty")
		}
		cfg.frame = Frame{Linebreak: linebreak, Prompt: prompt}

		return nil
	})
}

// WithRetries sets the maximum number of attempts per exchange, in [1, MaxRetries].
func WithRetries(n int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if n < 1 || n > MaxRetries {
			return fmt.Errorf("wiznet: retries %d out of range [1, %d]", n, MaxRetries)
		}
		cfg.retries = n

		return nil
	})
}

// WithSettleDelay sets the wait inserted after dialing, after draining and after sending.
func WithSettleDelay(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < 0 {
			return errors.New("wiznet: settle delay must not be negative")
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithCloseDelay sets the wait between half-closing and closing a connection.
func WithCloseDelay(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < 0 {
			return errors.New("wiznet: close delay must not be negative")
		}
		cfg.closeDelay = d

		return nil
	})
}

// WithDrainTimeout sets how long the stale-data read may wait for bytes.
func WithDrainTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("wiznet: drain timeout must be positive")
		}
		cfg.drainTimeout = d

		return nil
	})
}

// WithReplyTimeout sets how long the reply read may wait for bytes.
func WithReplyTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("wiznet: reply timeout must be positive")
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithConnectTimeout sets the TCP dial timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("wiznet: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithSendTimeout sets the TCP write timeout.
func WithSendTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("wiznet: send timeout must be positive")
		}
		cfg.sendTimeout = d

		return nil
	})
}

// WithReadBufferSize sets the size of the single reply read, in [MinReadBufferSize, MaxReadBufferSize].
func WithReadBufferSize(n int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if n < MinReadBufferSize || n > MaxReadBufferSize {
			return fmt.Errorf("wiznet: read buffer size %d out of range [%d, %d]", n, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = n

		return nil
	})
}

// WithLogger sets the logger for the client.
func WithLogger(l logger.Logger) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if l == nil {
			return errors.New("wiznet: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
