package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cmdq/standalone/config"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("cmdq command failed")
		return 1
	}
	return 0
}

type rootOptions struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cmdq",
		Short:         "G-code command queue for motion controllers",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "config file (default ~/.cmdq/config.yaml)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newPlayCmd(opts))
	root.AddCommand(newConsoleCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig reads the config file and returns a context whose logger
// honours the configured level
func (o *rootOptions) loadConfig(ctx context.Context) (context.Context, config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), o.cfgPath)
	if err != nil {
		return ctx, cfg, err
	}
	if strings.EqualFold(cfg.Logging.Level, "debug") && os.Getenv("LOG_LEVEL") == "" {
		logger := pslog.NewWithOptions(os.Stderr, pslog.Options{
			Mode:     pslog.ModeConsole,
			MinLevel: pslog.DebugLevel,
		})
		ctx = pslog.ContextWithLogger(ctx, logger)
	}
	return ctx, cfg, nil
}
