package anc

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-anc/logger"
	"github.com/arloliu/go-anc/wiznet"
	"github.com/stretchr/testify/require"
)

// fakeDevice is a scripted Exchanger imitating the controller: it keeps a
// mode per channel, answers getm/getc/setm/step commands and records them.
type fakeDevice struct {
	mu sync.Mutex

	modes map[int]Mode
	// capacitance replies per channel, returned verbatim as payload
	capReplies map[int]string
	// errors forced for exact commands
	failures map[string]error

	commands []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		modes:      map[int]Mode{},
		capReplies: map[int]string{},
		failures:   map[string]error{},
	}
}

func (d *fakeDevice) withMode(ch int, mode Mode) *fakeDevice {
	d.modes[ch] = mode
	return d
}

func (d *fakeDevice) withCapacitance(ch int, reply string) *fakeDevice {
	d.capReplies[ch] = reply
	return d
}

func (d *fakeDevice) failOn(command string, err error) *fakeDevice {
	d.failures[command] = err
	return d
}

func (d *fakeDevice) Exchange(command string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = append(d.commands, command)

	if err, ok := d.failures[command]; ok {
		return "", err
	}

	var verb string
	var ch int
	var arg string
	fields := strings.Fields(command)
	if len(fields) > 0 {
		verb = fields[0]
	}
	if len(fields) > 1 {
		_, _ = fmt.Sscanf(fields[1], "%d", &ch)
	}
	if len(fields) > 2 {
		arg = fields[2]
	}

	switch verb {
	case "setm":
		d.modes[ch] = Mode(arg)
		return "OK", nil
	case "getm":
		mode, ok := d.modes[ch]
		if !ok {
			mode = ModeGround
		}
		return fmt.Sprintf("mode = %s\r\nOK", mode), nil
	case "getc":
		if reply, ok := d.capReplies[ch]; ok {
			return reply, nil
		}
		return "capacitance = 0 nF\r\nOK", nil
	default:
		return "OK", nil
	}
}

func (d *fakeDevice) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, len(d.commands))
	copy(out, d.commands)

	return out
}

// sleepRecorder captures pacing delays instead of sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sleeps = append(r.sleeps, d)
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]time.Duration, len(r.sleeps))
	copy(out, r.sleeps)

	return out
}

func newTestController(t *testing.T, dev Exchanger, opts ...Option) (*Controller, *sleepRecorder) {
	t.Helper()

	rec := &sleepRecorder{}
	defaults := []Option{
		WithSleeper(rec.sleep),
		WithLogger(logger.NewMockLogger().AllowAll()),
	}

	c, err := New(dev, []string{"x", "z", "y"}, append(defaults, opts...)...)
	require.NoError(t, err)

	return c, rec
}

var errLinkDown = fmt.Errorf("%w: dial tcp: connection refused", wiznet.ErrRetriesExhausted)

func framingErr(command string) error {
	return &wiznet.FramingError{Command: command, Reply: "garbage"}
}
