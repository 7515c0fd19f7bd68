package anc

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arloliu/go-anc/logger"
	"github.com/arloliu/go-anc/wiznet"
	"github.com/puzpuzpuz/xsync/v3"
)

// Exchanger sends one command and returns the unframed reply payload.
// *wiznet.Client implements it.
type Exchanger interface {
	Exchange(command string) (string, error)
}

var _ Exchanger = (*wiznet.Client)(nil)

// Controller translates axis operations into controller commands.
type Controller struct {
	ex       Exchanger
	opts     *options
	logger   logger.Logger
	axes     []string
	channels map[string]int

	// net open-loop steps dispatched per axis, an entry appears with the
	// first step of that axis and is removed by ResetStepCount
	steps *xsync.MapOf[string, int64]

	metrics ControllerMetrics
}

// New creates a Controller sending commands through ex.
//
// axes lists the axis names in the order of the controller channels: axes[0]
// is channel 1. Names must be non-empty and unique.
func New(ex Exchanger, axes []string, opts ...Option) (*Controller, error) {
	if ex == nil {
		return nil, errors.New("anc: exchanger is nil")
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: no axes", ErrInvalidAxes)
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	c := &Controller{
		ex:       ex,
		opts:     o,
		logger:   o.logger,
		axes:     make([]string, len(axes)),
		channels: make(map[string]int, len(axes)),
		steps:    xsync.NewMapOf[string, int64](),
	}
	copy(c.axes, axes)

	for i, axis := range axes {
		if strings.TrimSpace(axis) == "" {
			return nil, fmt.Errorf("%w: empty name at position %d", ErrInvalidAxes, i+1)
		}
		if _, dup := c.channels[axis]; dup {
			return nil, fmt.Errorf("%w: duplicate axis %q", ErrInvalidAxes, axis)
		}
		c.channels[axis] = i + 1
	}

	return c, nil
}

// Axes returns the configured axis ordering.
func (c *Controller) Axes() []string {
	axes := make([]string, len(c.axes))
	copy(axes, c.axes)

	return axes
}

// Channel returns the 1-based channel index of axis.
func (c *Controller) Channel(axis string) (int, error) {
	ch, ok := c.channels[axis]
	if !ok {
		return 0, fmt.Errorf("%w %q, configured axes are %v", ErrUnknownAxis, axis, c.axes)
	}

	return ch, nil
}

// GetMetrics returns the metrics of the controller.
func (c *Controller) GetMetrics() *ControllerMetrics {
	return &c.metrics
}

// StepCount returns the net number of steps dispatched on axis since the
// controller was created or the count was last reset (up minus down).
// Motion is open loop, so this is the commanded displacement, not a
// measured one. It is safe to call while another goroutine steps.
func (c *Controller) StepCount(axis string) (int64, error) {
	if _, err := c.Channel(axis); err != nil {
		return 0, err
	}

	n, _ := c.steps.Load(axis)

	return n, nil
}

// ResetStepCount zeroes the step count of axis, typically after the axis
// was referenced, and returns the count it had.
func (c *Controller) ResetStepCount(axis string) (int64, error) {
	if _, err := c.Channel(axis); err != nil {
		return 0, err
	}

	n, _ := c.steps.LoadAndDelete(axis)

	return n, nil
}

// Raw sends command as is and returns the reply payload.
func (c *Controller) Raw(command string) (string, error) {
	return c.exchange(command)
}

// Startup puts every configured axis in step mode, in channel order.
func (c *Controller) Startup() error {
	for _, axis := range c.axes {
		if err := c.SetMode(axis, ModeStep); err != nil {
			return err
		}
	}

	return nil
}

// SetMode switches axis to mode.
func (c *Controller) SetMode(axis string, mode Mode) error {
	ch, err := c.Channel(axis)
	if err != nil {
		return err
	}

	if err := c.setMode(ch, mode); err != nil {
		return fmt.Errorf("anc: set mode %s on axis %q: %w", mode, axis, err)
	}

	return nil
}

// ReadMode queries the current mode of axis.
func (c *Controller) ReadMode(axis string) (Mode, error) {
	ch, err := c.Channel(axis)
	if err != nil {
		return "", err
	}

	cmd := fmt.Sprintf("getm %d", ch)
	reply, err := c.exchange(cmd)
	if err != nil {
		return "", fmt.Errorf("anc: read mode of axis %q: %w", axis, err)
	}

	return parseMode(cmd, reply, c.opts.linebreak)
}

// EnsureStepMode puts each given axis in step mode, one axis after the other
// in the given order, and returns the modes observed before any change.
// Axes already in step mode are left untouched.
//
// All axis names are checked before anything is sent. If a command fails,
// the modes collected so far are returned along with the error, so the
// caller can still restore them.
func (c *Controller) EnsureStepMode(axes ...string) ([]Mode, error) {
	for _, axis := range axes {
		if _, err := c.Channel(axis); err != nil {
			return nil, err
		}
	}

	prev := make([]Mode, 0, len(axes))
	for _, axis := range axes {
		mode, err := c.ReadMode(axis)
		if err != nil {
			return prev, err
		}
		prev = append(prev, mode)

		if mode.IsStep() {
			continue
		}

		c.logger.Debug("anc: switching axis to step mode", "axis", axis, "mode", mode)
		if err := c.SetMode(axis, ModeStep); err != nil {
			return prev, err
		}
	}

	return prev, nil
}

// CheckCapacitance measures the piezo capacitance of axis in nF.
//
// The axis is switched to capacitance mode, measured, and switched back to
// step mode. The switch back is attempted even when the measurement fails.
// A reply that does not carry a readable value yields NaN and a nil error.
func (c *Controller) CheckCapacitance(axis string) (float64, error) {
	ch, err := c.Channel(axis)
	if err != nil {
		return math.NaN(), err
	}

	if err := c.setMode(ch, ModeCapacitance); err != nil {
		return math.NaN(), fmt.Errorf("anc: capacitance mode on axis %q: %w", axis, err)
	}

	reply, getErr := c.exchange(fmt.Sprintf("getc %d", ch))
	if getErr != nil {
		getErr = fmt.Errorf("anc: read capacitance of axis %q: %w", axis, getErr)
	}

	if err := c.setMode(ch, ModeStep); err != nil {
		return math.NaN(), errors.Join(getErr, fmt.Errorf("anc: restore step mode on axis %q: %w", axis, err))
	}
	if getErr != nil {
		return math.NaN(), getErr
	}

	value, ok := parseCapacitance(reply)
	if !ok {
		c.metrics.incCapacitanceNaNCount()
		c.logger.Warn("anc: unreadable capacitance reply", "axis", axis, "reply", reply)
	}

	return value, nil
}

// CheckConnections measures every configured axis in channel order and reports
// which ones are connected. An axis is connected when its capacitance is
// neither zero nor NaN.
func (c *Controller) CheckConnections() ([]bool, error) {
	connected := make([]bool, 0, len(c.axes))
	for _, axis := range c.axes {
		value, err := c.CheckCapacitance(axis)
		if err != nil {
			return connected, err
		}
		connected = append(connected, value != 0 && !math.IsNaN(value))
	}

	return connected, nil
}

// Step moves axis by count steps at the configured time per step.
// See StepPaced.
func (c *Controller) Step(axis string, count int) error {
	return c.StepPaced(axis, count, c.opts.timePerStep)
}

// StepPaced moves axis by count steps, up for count >= 0 and down otherwise,
// then blocks for PacingDelay(count, timePerStep) while the piezo moves.
//
// An unknown axis is logged and ignored. A step reply that fails framing is
// logged and ignored as the command has reached the device; any other
// transport error is returned without pacing.
func (c *Controller) StepPaced(axis string, count int, timePerStep time.Duration) error {
	ch, ok := c.channels[axis]
	if !ok {
		c.logger.Warn("anc: step on unknown axis ignored", "axis", axis, "axes", c.axes)
		return nil
	}

	dir, n := "stepu", count
	if count < 0 {
		dir, n = "stepd", -count
	}

	c.metrics.incStepCmdCount()
	if _, err := c.exchange(fmt.Sprintf("%s %d %d", dir, ch, n)); err != nil {
		if !errors.Is(err, wiznet.ErrFraming) {
			return fmt.Errorf("anc: step axis %q: %w", axis, err)
		}
		c.metrics.incSuppressedStepErrCount()
		c.logger.Warn("anc: step reply rejected", "axis", axis, "steps", count, "error", err)
	}

	c.steps.Compute(axis, func(old int64, _ bool) (int64, bool) {
		return old + int64(count), false
	})

	c.opts.sleep(PacingDelay(n, timePerStep))

	return nil
}

func (c *Controller) setMode(ch int, mode Mode) error {
	_, err := c.exchange(fmt.Sprintf("setm %d %s", ch, mode))
	return err
}

func (c *Controller) exchange(cmd string) (string, error) {
	c.metrics.incCommandCount()
	return c.ex.Exchange(cmd)
}
