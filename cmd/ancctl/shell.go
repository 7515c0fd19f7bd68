package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/arloliu/go-anc/anc"
	"github.com/arloliu/go-anc/internal/config"
	"github.com/arloliu/go-anc/logger"
	"github.com/chzyer/readline"
)

// shell is the interactive command loop. Commands run on an anc.Worker so
// that Ctrl-C stops waiting for a slow exchange without killing the program.
type shell struct {
	rl     *readline.Instance
	cs     *commandSet
	worker *anc.Worker
}

func runShell(ctx context.Context, cfg *config.Config) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "anc> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	l := logger.NewSlogWriter(rl.Stderr(), cfg.Level(), false)
	logger.SetLogger(l)

	fmt.Fprintf(rl.Stdout(), "bridge %s, axes %v\n", cfg.Host, cfg.Axes)

	ctrl, client, err := cfg.NewController(l)
	if err != nil {
		return err
	}

	worker, err := anc.NewWorker(ctx, ctrl, 1)
	if err != nil {
		return err
	}
	defer worker.Close()

	s := &shell{
		rl:     rl,
		cs:     &commandSet{ctrl: ctrl, client: client, out: rl.Stdout()},
		worker: worker,
	}
	s.cs.printHelp()

	return s.loop(ctx)
}

func (s *shell) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if cmd := strings.ToLower(fields[0]); cmd == "exit" || cmd == "quit" || cmd == "q" {
			return nil
		}

		s.execute(ctx, fields)
	}
}

func (s *shell) execute(ctx context.Context, fields []string) {
	cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := s.worker.Do(cmdCtx, func(*anc.Controller) error {
		return s.cs.exec(fields)
	})

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(s.rl.Stderr(), "interrupted, the running exchange finishes in the background")
	default:
		fmt.Fprintln(s.rl.Stderr(), "error:", err)
	}
}
