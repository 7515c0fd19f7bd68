// Command ancctl drives a piezo positioner controller sitting behind a
// serial-to-Ethernet bridge.
//
// With a command it runs that command and exits; without one it starts an
// interactive shell. Settings come from a YAML file, command-line flags
// override them.
//
// Usage:
//
//	ancctl [flags] [command [args...]]
//
// Flags:
//
//	-config string      YAML configuration file
//	-host string        bridge address
//	-port int           bridge TCP port (default 5000)
//	-axes string        comma separated axis names in channel order, e.g. x,z,y
//	-log-level string   debug, info, warn, error (default "info")
//	-startup            put every axis in step mode before running
//	-i                  interactive shell even when a command is given
//
// Examples:
//
//	# Check which piezos are wired
//	ancctl -host 192.168.1.50 -axes x,z,y check
//
//	# Step z down by 400 steps using a config file
//	ancctl -config /etc/anc/cryostat.yaml step z -400
//
//	# Interactive session with transport debugging
//	ancctl -config cryostat.yaml -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arloliu/go-anc/internal/config"
	"github.com/arloliu/go-anc/logger"
)

type cliFlags struct {
	configFile  string
	host        string
	port        int
	axes        string
	logLevel    string
	startup     bool
	interactive bool

	set  map[string]bool
	args []string
}

func parseFlags(args []string, errOut io.Writer) (*cliFlags, error) {
	f := &cliFlags{set: map[string]bool{}}

	fs := flag.NewFlagSet("ancctl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&f.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&f.host, "host", "", "bridge address")
	fs.IntVar(&f.port, "port", 0, "bridge TCP port (default 5000)")
	fs.StringVar(&f.axes, "axes", "", "comma separated axis names in channel order, e.g. x,z,y")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (default \"info\")")
	fs.BoolVar(&f.startup, "startup", false, "put every axis in step mode before running")
	fs.BoolVar(&f.interactive, "i", false, "interactive shell even when a command is given")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	f.args = fs.Args()

	return f, nil
}

// config merges the configuration file, if any, with the flags that were set.
func (f *cliFlags) config() (*config.Config, error) {
	cfg := &config.Config{}
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.set["host"] {
		cfg.Host = f.host
	}
	if f.set["port"] {
		cfg.Port = f.port
	}
	if f.set["axes"] {
		cfg.Axes = splitAxes(f.axes)
	}
	if f.set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
	if f.set["startup"] {
		cfg.FullStartup = f.startup
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func splitAxes(s string) []string {
	var axes []string
	for _, axis := range strings.Split(s, ",") {
		if axis = strings.TrimSpace(axis); axis != "" {
			axes = append(axes, axis)
		}
	}

	return axes
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := f.config()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if f.interactive || len(f.args) == 0 {
		err = runShell(ctx, cfg)
	} else {
		err = runOnce(cfg, f.args)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	return 0
}

func runOnce(cfg *config.Config, args []string) error {
	l := logger.NewSlogWriter(os.Stderr, cfg.Level(), false)
	logger.SetLogger(l)

	ctrl, client, err := cfg.NewController(l)
	if err != nil {
		return err
	}

	cs := &commandSet{ctrl: ctrl, client: client, out: os.Stdout}

	return cs.exec(args)
}
