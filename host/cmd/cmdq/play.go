package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cmdq/standalone"

	"pkt.systems/pslog"
)

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var offset uint32
	cmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Execute a G-code file from storage",
		Long: "Play a G-code file through the command queue. Relative names are\n" +
			"resolved against playback.root. An interrupted run logs the offset to\n" +
			"pass to --offset to resume.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			logger := pslog.Ctx(ctx)

			m, err := standalone.NewManager(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			fs, name := playbackFs(cfg.Playback.Root, args[0])
			if err := m.Play(fs, name, offset); err != nil {
				return err
			}

			err = m.RunUntil(ctx, m.Idle)
			st := m.Status()
			if errors.Is(err, context.Canceled) {
				logger.Warn("playback interrupted", "file", name, "resume_offset", st.Position)
				return nil
			}
			if err != nil {
				return err
			}
			if !m.PlaybackDone() {
				return fmt.Errorf("playback of %s stopped at offset %d", name, st.Position)
			}
			logger.Info("playback finished", "file", name, "bytes", st.Position, "executed", st.Executed)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "file offset to resume from")
	return cmd
}

// playbackFs returns the filesystem and name to open for a playback file
func playbackFs(root, name string) (afero.Fs, string) {
	osFs := afero.NewOsFs()
	if filepath.IsAbs(name) || root == "" {
		return osFs, name
	}
	return afero.NewBasePathFs(osFs, root), name
}
