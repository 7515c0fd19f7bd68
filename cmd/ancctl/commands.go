package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-anc/anc"
	"github.com/arloliu/go-anc/wiznet"
)

var errUsage = errors.New("usage")

// commandSet executes textual commands against a controller. It backs both
// the one-shot mode and the interactive shell.
type commandSet struct {
	ctrl   *anc.Controller
	client *wiznet.Client // optional, for metrics
	out    io.Writer
}

func (cs *commandSet) exec(args []string) error {
	if len(args) == 0 {
		return nil
	}

	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "help", "?":
		cs.printHelp()
		return nil
	case "axes":
		return cs.cmdAxes()
	case "mode", "m":
		return cs.cmdMode(args)
	case "setmode", "sm":
		return cs.cmdSetMode(args)
	case "ensure-step", "es":
		return cs.cmdEnsureStep(args)
	case "cap", "c":
		return cs.cmdCapacitance(args)
	case "check":
		return cs.cmdCheck()
	case "step", "s":
		return cs.cmdStep(args)
	case "count":
		return cs.cmdCount(args)
	case "reset-count":
		return cs.cmdResetCount(args)
	case "startup":
		return cs.ctrl.Startup()
	case "raw", "r":
		return cs.cmdRaw(args)
	case "stats":
		cs.cmdStats()
		return nil
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
}

func (cs *commandSet) printHelp() {
	fmt.Fprintln(cs.out, `Commands:
  axes                          list axes in channel order
  mode <axis>                   read axis mode
  setmode <axis> <mode>         set axis mode (stp, cap, gnd, inp, off)
  ensure-step <axis>...         put axes in step mode, print previous modes
  cap <axis>                    measure capacitance in nF
  check                         report which axes are connected
  step <axis> <count> [pace]    step up (count > 0) or down (count < 0), pace per step e.g. 2.5ms
  count <axis>                  net steps dispatched since start or last reset
  reset-count <axis>            zero the step count, print the previous one
  startup                       put every axis in step mode
  raw <command...>              send a raw controller command
  stats                         print transport and controller counters
  help                          show this help`)
}

func (cs *commandSet) cmdAxes() error {
	for _, axis := range cs.ctrl.Axes() {
		ch, err := cs.ctrl.Channel(axis)
		if err != nil {
			return err
		}
		fmt.Fprintf(cs.out, "%s\tchannel %d\n", axis, ch)
	}

	return nil
}

func (cs *commandSet) cmdMode(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: mode <axis>", errUsage)
	}

	mode, err := cs.ctrl.ReadMode(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cs.out, "%s: %s\n", args[0], mode)

	return nil
}

func (cs *commandSet) cmdSetMode(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: setmode <axis> <mode>", errUsage)
	}

	return cs.ctrl.SetMode(args[0], anc.Mode(args[1]))
}

func (cs *commandSet) cmdEnsureStep(args []string) error {
	if len(args) == 0 {
		args = cs.ctrl.Axes()
	}

	prev, err := cs.ctrl.EnsureStepMode(args...)
	for i, mode := range prev {
		fmt.Fprintf(cs.out, "%s: was %s\n", args[i], mode)
	}

	return err
}

func (cs *commandSet) cmdCapacitance(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: cap <axis>", errUsage)
	}

	value, err := cs.ctrl.CheckCapacitance(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cs.out, "%s: %g nF\n", args[0], value)

	return nil
}

func (cs *commandSet) cmdCheck() error {
	connected, err := cs.ctrl.CheckConnections()
	axes := cs.ctrl.Axes()
	for i, ok := range connected {
		state := "not connected"
		if ok {
			state = "connected"
		}
		fmt.Fprintf(cs.out, "%s: %s\n", axes[i], state)
	}

	return err
}

func (cs *commandSet) cmdStep(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: step <axis> <count> [pace]", errUsage)
	}

	count, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid step count %q: %w", args[1], err)
	}

	if len(args) == 3 {
		pace, err := time.ParseDuration(args[2])
		if err != nil || pace < 0 {
			return fmt.Errorf("invalid pace %q", args[2])
		}

		return cs.ctrl.StepPaced(args[0], count, pace)
	}

	return cs.ctrl.Step(args[0], count)
}

func (cs *commandSet) cmdCount(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: count <axis>", errUsage)
	}

	n, err := cs.ctrl.StepCount(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cs.out, "%s: %d steps\n", args[0], n)

	return nil
}

func (cs *commandSet) cmdResetCount(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: reset-count <axis>", errUsage)
	}

	n, err := cs.ctrl.ResetStepCount(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cs.out, "%s: was %d steps\n", args[0], n)

	return nil
}

func (cs *commandSet) cmdRaw(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: raw <command...>", errUsage)
	}

	reply, err := cs.ctrl.Raw(strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cs.out, reply)

	return nil
}

func (cs *commandSet) cmdStats() {
	m := cs.ctrl.GetMetrics()
	fmt.Fprintf(cs.out, "commands: %d, steps: %d, suppressed step errors: %d, unreadable capacitances: %d\n",
		m.CommandCount.Load(), m.StepCmdCount.Load(),
		m.SuppressedStepErrCount.Load(), m.CapacitanceNaNCount.Load())

	if cs.client == nil {
		return
	}

	cm := cs.client.GetMetrics()
	fmt.Fprintf(cs.out, "exchanges: %d, attempts: %d, transport errors: %d, framing errors: %d, exhausted: %d\n",
		cm.ExchangeCount.Load(), cm.AttemptCount.Load(), cm.TransportErrCount.Load(),
		cm.FramingErrCount.Load(), cm.RetriesExhaustedCount.Load())
}
