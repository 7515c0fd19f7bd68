package anc

import (
	"errors"
	"time"

	"github.com/arloliu/go-anc/internal/pool"
	"github.com/arloliu/go-anc/logger"
	"github.com/arloliu/go-anc/wiznet"
)

// DefaultTimePerStep is the open-loop motion time assumed per step (1/400 s).
const DefaultTimePerStep = 2500 * time.Microsecond

type options struct {
	timePerStep time.Duration
	linebreak   string
	logger      logger.Logger
	sleep       func(time.Duration)
}

func defaultOptions() *options {
	return &options{
		timePerStep: DefaultTimePerStep,
		linebreak:   wiznet.DefaultLinebreak,
		logger:      logger.GetLogger(),
		sleep:       pool.Sleep,
	}
}

// Option is a functional option for configuring a Controller.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithTimePerStep sets the pacing time per step used by Step.
func WithTimePerStep(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < 0 {
			return errors.New("anc: time per step must not be negative")
		}
		o.timePerStep = d

		return nil
	})
}

// WithLinebreak sets the line separator used inside multi-line replies.
// It must match the transport frame linebreak.
func WithLinebreak(linebreak string) Option {
	return optFunc(func(o *options) error {
		if linebreak == "" {
			return errors.New("anc: linebreak must not be empty")
		}
		o.linebreak = linebreak

		return nil
	})
}

// WithLogger sets the logger for the controller.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("anc: logger must not be nil")
		}
		o.logger = l

		return nil
	})
}

// WithSleeper replaces the function used to block the caller after step commands.
func WithSleeper(sleep func(time.Duration)) Option {
	return optFunc(func(o *options) error {
		if sleep == nil {
			return errors.New("anc: sleeper must not be nil")
		}
		o.sleep = sleep

		return nil
	})
}
