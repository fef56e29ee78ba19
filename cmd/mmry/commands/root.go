package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/configutil"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/plugins"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

const ConfigName = "mmry.json5"

type globals struct {
	runDir  string
	config  string
	verbose bool
}

func initSlog(out io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

// readConfig reads --config or searches mmry.json5 up from the working
// directory, no config file means defaults.
func (g *globals) readConfig() (plugins.Config, error) {
	var config plugins.Config
	var err error
	if g.config != "" {
		config, err = configutil.ReadConfig[plugins.Config](g.config)
	} else {
		config, err = configutil.ReadRecursively[plugins.Config]("", ConfigName)
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no mmry config found, using defaults")
		return plugins.Config{}, nil
	}
	if err != nil {
		return plugins.Config{}, fmt.Errorf("read config: %w", err)
	}
	return config, nil
}

func (g *globals) client() (*mmry.Client, error) {
	return mmry.FromEnv(g.runDir, telemetry.NewSlogAPI(nil))
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "mmry",
		Short:         "mmry runs the plugins that import your data into mmry.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initSlog(cmd.ErrOrStderr(), g.verbose)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.runDir, "run-dir", "", "the run directory, overrides "+mmry.EnvRunDir)
	flags.StringVar(&g.config, "config", "", "path to the mmry config, searched up from the working directory by default")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "log debug messages")

	root.AddCommand(
		newRunCmd(g),
		newPluginsCmd(),
		newItemsCmd(g),
		newStateCmd(g),
		newExportCmd(g),
	)
	return root
}

func ExecuteContext(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
