package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"cmdq/host/serial"
	"cmdq/standalone"

	"pkt.systems/pslog"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var port string
	var baud int
	var useStdin bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute G-code arriving on the host link",
		Long: "Run the command queue against a serial host link. With --stdin the\n" +
			"host link is standard input and replies go to standard output; the\n" +
			"command returns once the input ends and every command has run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Serial.Port = port
			}
			if baud > 0 {
				cfg.Serial.Baud = baud
			}
			logger := pslog.Ctx(ctx)

			var src io.Reader
			var sink io.Writer
			if useStdin {
				src, sink = cmd.InOrStdin(), cmd.OutOrStdout()
			} else {
				p, err := serial.Open(&serial.Config{
					Device:      cfg.Serial.Port,
					Baud:        cfg.Serial.Baud,
					ReadTimeout: cfg.ReadTimeout(),
				})
				if err != nil {
					return err
				}
				defer func() { _ = p.Close() }()
				if err := p.Flush(); err != nil {
					logger.Warn("serial flush failed", "err", err)
				}
				logger.Info("host link open", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)
				src, sink = p, p
			}

			m, err := standalone.NewManager(ctx, cfg, sink)
			if err != nil {
				return err
			}
			reader := serial.NewReader(src, cfg.Serial.ChunkQueue, serial.DefaultChunkSize)
			m.AttachChunks(reader)
			return runHostLink(ctx, m, reader, useStdin)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "serial device (overrides serial.port)")
	cmd.Flags().IntVarP(&baud, "baud", "b", 0, "baud rate (overrides serial.baud)")
	cmd.Flags().BoolVar(&useStdin, "stdin", false, "read G-code from standard input")
	return cmd
}

// runHostLink runs the main loop while reader feeds it. When the input
// ends, exitOnEOF makes it return once the queue has drained.
func runHostLink(ctx context.Context, m *standalone.Manager, reader *serial.Reader, exitOnEOF bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDone := make(chan error, 1)
	go func() {
		readDone <- reader.Run(ctx)
	}()

	var readErr error
	ended := false
	settled := false
	err := m.RunUntil(ctx, func() bool {
		if ended {
			// Chunks queued before the end were pulled by the last Poll
			settled = true
		} else {
			select {
			case readErr = <-readDone:
				ended = true
			default:
			}
		}
		switch {
		case readErr != nil:
			return true
		case settled && exitOnEOF:
			return m.Idle()
		}
		return false
	})

	pslog.Ctx(ctx).Info("host link closed",
		"bytes", reader.Bytes(),
		"reads", reader.Reads(),
		"full_waits", reader.Waits(),
	)
	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		return readErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
