package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"code.hybscloud.com/iox"
	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"cmdq/core"
	"cmdq/standalone"
	"cmdq/standalone/config"

	"pkt.systems/pslog"
)

type consoleKind uint8

const (
	consoleNone consoleKind = iota
	consoleGCode
	consoleStatus
	consoleAbort
	consolePlay
	consoleDump
	consoleHelp
	consoleQuit
)

type consoleCommand struct {
	kind   consoleKind
	text   string // G-code for consoleGCode
	file   string
	offset uint32
}

const consoleHelpText = `Console commands:
  status              show queue counters
  dump                list queued records
  play FILE [OFFSET]  play a file from playback.root
  abort               drop queued commands and stop playback
  help                show this help
  quit                leave the console
Anything else is queued as a G-code command.
`

// parseConsoleLine classifies one console input line
func parseConsoleLine(line string) (consoleCommand, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return consoleCommand{}, fmt.Errorf("console: %w", err)
	}
	if len(tokens) == 0 {
		return consoleCommand{kind: consoleNone}, nil
	}

	switch strings.ToLower(tokens[0]) {
	case "status":
		return consoleCommand{kind: consoleStatus}, nil
	case "abort":
		return consoleCommand{kind: consoleAbort}, nil
	case "dump":
		return consoleCommand{kind: consoleDump}, nil
	case "help", "?":
		return consoleCommand{kind: consoleHelp}, nil
	case "quit", "exit", "q":
		return consoleCommand{kind: consoleQuit}, nil
	case "play":
		if len(tokens) < 2 || len(tokens) > 3 {
			return consoleCommand{}, errors.New("usage: play FILE [OFFSET]")
		}
		cmd := consoleCommand{kind: consolePlay, file: tokens[1]}
		if len(tokens) == 3 {
			off, err := strconv.ParseUint(tokens[2], 10, 32)
			if err != nil {
				return consoleCommand{}, fmt.Errorf("console: bad offset %q", tokens[2])
			}
			cmd.offset = uint32(off)
		}
		return cmd, nil
	}
	return consoleCommand{kind: consoleGCode, text: strings.TrimSpace(line)}, nil
}

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Queue commands typed on the local console",
		Long:  consoleHelpText,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			m, err := standalone.NewManager(ctx, cfg, out)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			err = runConsole(ctx, m, cfg, cmd.InOrStdin(), out)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// runConsole reads console lines on a separate goroutine. G-code goes
// through the manager's UI queue; console commands are handled on the
// main loop between iterations.
func runConsole(ctx context.Context, m *standalone.Manager, cfg config.Config, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := pslog.Ctx(ctx)

	controls := make(chan consoleCommand, 8)
	go func() {
		defer close(controls)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			cc, err := parseConsoleLine(scanner.Text())
			if err != nil {
				logger.Warn("console input rejected", "err", err)
				continue
			}
			switch cc.kind {
			case consoleNone:
			case consoleGCode:
				if err := submitUI(ctx, m, cc.text); err != nil {
					return
				}
			default:
				select {
				case controls <- cc:
				case <-ctx.Done():
					return
				}
				if cc.kind == consoleQuit {
					return
				}
			}
		}
	}()

	quit := false
	closed := false
	err := m.RunUntil(ctx, func() bool {
		if !closed {
			select {
			case cc, ok := <-controls:
				if !ok {
					closed = true
					break
				}
				quit = handleConsole(m, cfg, cc, out)
			default:
			}
		}
		// Input ended: leave once everything typed has run
		return quit || (closed && m.Idle())
	})
	if quit || closed {
		return nil
	}
	return err
}

// submitUI waits for room in the UI queue
func submitUI(ctx context.Context, m *standalone.Manager, text string) error {
	backoff := iox.Backoff{}
	for {
		err := m.SubmitUI(text)
		if !core.IsFull(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		backoff.Wait()
	}
}

// handleConsole runs a console command on the main loop and reports
// whether the console should close
func handleConsole(m *standalone.Manager, cfg config.Config, cc consoleCommand, out io.Writer) bool {
	switch cc.kind {
	case consoleStatus:
		st := m.Status()
		fmt.Fprintf(out, "records=%d free_back=%d free_front=%d executed=%d moves=%d/%d position=%d playing=%t\n",
			st.Records, st.FreeBack, st.FreeFront, st.Executed,
			st.MovesDone, st.MovesDone+uint32(st.MovesPending), st.Position, st.Playing)
	case consoleDump:
		n := 0
		m.Queue().Walk(func(r core.Record) bool {
			fmt.Fprintf(out, "#%d %s %s\n", n, r.Tag, r.Text)
			n++
			return true
		})
		fmt.Fprintf(out, "%d records\n", n)
	case consoleAbort:
		m.Abort()
	case consolePlay:
		fs, name := playbackFs(cfg.Playback.Root, cc.file)
		if err := m.Play(fs, name, cc.offset); err != nil {
			fmt.Fprintf(out, "play failed: %v\n", err)
		}
	case consoleHelp:
		fmt.Fprint(out, consoleHelpText)
	case consoleQuit:
		return true
	}
	return false
}
