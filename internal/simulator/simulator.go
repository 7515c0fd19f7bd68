// Package simulator emulates a positioner controller behind a
// serial-to-Ethernet bridge, for examples and end-to-end tests.
//
// Like the real bridge it accepts one command per connection, answers it
// with payload + "\r\n> " and waits for the peer to close.
package simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-anc/anc"
	"github.com/arloliu/go-anc/logger"
	"github.com/arloliu/go-anc/wiznet"
)

// Device replies.
const (
	replyOK         = "OK"
	replyWrongMode  = "Axis in wrong mode\r\nERROR"
	replyWrongAxis  = "Wrong axis type\r\nERROR"
	replyBadCommand = "Unknown command\r\nERROR"
)

const (
	readTimeout  = 5 * time.Second
	closeTimeout = 5 * time.Second
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("simulator: server closed")

type channel struct {
	mode        anc.Mode
	capacitance float64 // nF, 0 when no piezo is wired
	position    int64
}

// Simulator is a fake controller listening on TCP.
type Simulator struct {
	ln     net.Listener
	frame  wiznet.Frame
	logger logger.Logger

	mu       sync.Mutex
	channels []*channel
	commands []string

	// connMu orders wg.Add in Serve against wg.Wait in Close
	connMu  sync.Mutex
	closing bool
	wg      sync.WaitGroup
	closed  chan struct{}
	once    sync.Once
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithCapacitance wires a piezo of the given capacitance on channel ch (1-based).
func WithCapacitance(ch int, nF float64) Option {
	return func(s *Simulator) {
		if ch >= 1 && ch <= len(s.channels) {
			s.channels[ch-1].capacitance = nF
		}
	}
}

// WithMode sets the initial mode of channel ch (1-based).
func WithMode(ch int, mode anc.Mode) Option {
	return func(s *Simulator) {
		if ch >= 1 && ch <= len(s.channels) {
			s.channels[ch-1].mode = mode
		}
	}
}

// WithLogger sets the logger of the simulator.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// Listen starts a simulator with n channels on addr, all in ground mode.
// Call Serve to accept connections.
func Listen(addr string, n int, opts ...Option) (*Simulator, error) {
	if n < 1 {
		return nil, fmt.Errorf("simulator: invalid channel count %d", n)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		ln:       ln,
		frame:    wiznet.DefaultFrame(),
		logger:   logger.GetLogger(),
		channels: make([]*channel, n),
		closed:   make(chan struct{}),
	}
	for i := range s.channels {
		s.channels[i] = &channel{mode: anc.ModeGround}
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Addr returns the listening address.
func (s *Simulator) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

// Port returns the listening port.
func (s *Simulator) Port() int {
	return s.Addr().Port
}

// Serve accepts connections until ctx is done or Close is called.
// It always returns a non-nil error, ErrServerClosed after a shutdown.
func (s *Simulator) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return ErrServerClosed
			default:
				return fmt.Errorf("simulator: accept: %w", err)
			}
		}

		if !s.track() {
			_ = conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops the listener and waits for open connections to finish.
func (s *Simulator) Close() error {
	var err error
	s.once.Do(func() {
		s.connMu.Lock()
		s.closing = true
		s.connMu.Unlock()

		close(s.closed)
		err = s.ln.Close()
		s.wg.Wait()
	})

	return err
}

// track registers an accepted connection, or reports false once Close began.
func (s *Simulator) track() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closing {
		return false
	}
	s.wg.Add(1)

	return true
}

// Mode returns the current mode of channel ch (1-based).
func (s *Simulator) Mode(ch int) anc.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.channels[ch-1].mode
}

// Position returns the net steps executed on channel ch (1-based).
func (s *Simulator) Position(ch int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.channels[ch-1].position
}

// Commands returns the commands received so far, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.commands))
	copy(out, s.commands)

	return out
}

func (s *Simulator) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	r := bufio.NewReader(conn)

	line, err := r.ReadString(s.frame.Linebreak[len(s.frame.Linebreak)-1])
	if err != nil {
		// dial-only probes and clients giving up end here
		return
	}

	cmd := strings.TrimSuffix(line, s.frame.Linebreak)
	reply := s.execute(cmd)
	s.logger.Debug("simulator: command", "command", cmd, "reply", reply)

	if _, err := conn.Write([]byte(reply + s.frame.Terminator())); err != nil {
		s.logger.Warn("simulator: write reply failed", "command", cmd, "error", err)
		return
	}

	// the client half-closes, then closes
	_ = conn.SetReadDeadline(time.Now().Add(closeTimeout))
	_, _ = io.Copy(io.Discard, r)
}

func (s *Simulator) execute(cmd string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, cmd)

	fields := strings.Fields(cmd)
	if len(fields) < 2 {
		return replyBadCommand
	}

	ch, err := strconv.Atoi(fields[1])
	if err != nil || ch < 1 || ch > len(s.channels) {
		return replyWrongAxis
	}
	c := s.channels[ch-1]

	switch {
	case fields[0] == "getm" && len(fields) == 2:
		return fmt.Sprintf("mode = %s%sOK", c.mode, s.frame.Linebreak)

	case fields[0] == "setm" && len(fields) == 3:
		c.mode = anc.Mode(fields[2])
		return replyOK

	case fields[0] == "getc" && len(fields) == 2:
		if c.mode != anc.ModeCapacitance {
			return replyWrongMode
		}
		return fmt.Sprintf("capacitance = %s nF%sOK",
			strconv.FormatFloat(c.capacitance, 'f', -1, 64), s.frame.Linebreak)

	case (fields[0] == "stepu" || fields[0] == "stepd") && len(fields) == 3:
		n, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || n < 0 {
			return replyBadCommand
		}
		if !c.mode.IsStep() {
			return replyWrongMode
		}
		if fields[0] == "stepd" {
			n = -n
		}
		c.position += n

		return replyOK
	}

	return replyBadCommand
}
