package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/octopresence/internal/app/layer"
	"github.com/dkeye/octopresence/internal/app/presence"
	"github.com/dkeye/octopresence/internal/config"
	"github.com/dkeye/octopresence/internal/wiring"
)

var errNoPrinters = errors.New("no printer database configured")

type app struct {
	cfg      *config.Config
	stack    *wiring.Stack
	layer    *layer.Blocking
	presence *presence.Blocking
}

// close releases the stack built for the command, if any. Safe to call
// more than once.
func (a *app) close() error {
	if a.stack == nil {
		return nil
	}
	err := a.stack.Close()
	a.stack = nil
	return err
}

func Execute() error {
	return run(newRootCmd())
}

// run executes root and always closes the stack, including when the command
// fails.
func run(root *cobra.Command, a *app) error {
	defer func() {
		if err := a.close(); err != nil {
			log.Error().Err(err).Str("module", "presencectl").Msg("closing stores")
		}
	}()
	return root.Execute()
}

func newRootCmd() (*cobra.Command, *app) {
	var (
		configPath string
		verbose    bool
		a          = &app{}
	)

	root := &cobra.Command{
		Use:          "presencectl",
		Short:        "Inspect and drive printer presence groups",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})

			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			stack, err := wiring.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.stack = stack
			a.layer = layer.NewBlocking(stack.Layer, cfg.Presence.BlockingTimeout)
			a.presence = presence.NewBlocking(stack.Router, cfg.Presence.BlockingTimeout)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newCountCmd(a),
		newTouchCmd(a),
		newDiscardCmd(a),
		newNotifyCmd(a),
		newSendStatusCmd(a),
		newViewingCmd(a),
		newSendCmd(a),
		newShouldWatchCmd(a),
	)
	return root, a
}

func defaultConfigPath() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return "config/config." + env + ".yaml"
}
