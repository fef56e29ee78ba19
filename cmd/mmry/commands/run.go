package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmry-org/mmry-plugins/internal/components/chrono"
	itelemetry "github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/restyutil"
	"github.com/mmry-org/mmry-plugins/lib/telemetry"
	"github.com/mmry-org/mmry-plugins/plugins"
	"github.com/mmry-org/mmry-plugins/plugins/builtin"

	"github.com/spf13/cobra"
)

const report_scheduled_run = "scheduled-run"

func newRunCmd(g *globals) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "run <plugin>",
		Short: "Runs a plugin once in the run directory, or on a cron schedule with --schedule.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule != "" {
				return g.runScheduled(cmd.Context(), args[0], schedule)
			}
			return g.run(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", `run the plugin on a cron schedule (ex. "@every 1h", "0 9 * * *") until interrupted`)
	return cmd
}

func (g *globals) setupPlugin(name string) (plugins.Plugin, *mmry.Client, error) {
	config, err := g.readConfig()
	if err != nil {
		return nil, nil, err
	}

	var dump restyutil.Output
	if config.HTTPDumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(filepath.Join(config.HTTPDumpDir, name), nil)
		if err != nil {
			return nil, nil, err
		}
		dump = output
	}

	registry, err := builtin.NewRegistry(config, dump)
	if err != nil {
		return nil, nil, err
	}
	plugin, ok := registry.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown plugin '%s', available plugins: %s", name, strings.Join(registry.Names(), ", "))
	}

	client, err := g.client()
	if err != nil {
		return nil, nil, err
	}
	return plugin, client, nil
}

func runOnce(ctx context.Context, name string, plugin plugins.Plugin, client *mmry.Client) error {
	client.Time("started " + name)
	err := plugin.Run(ctx, client)
	client.Time("finished " + name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (g *globals) run(ctx context.Context, name string) error {
	tel, err := telemetry.SetupFromEnv(ctx, "mmry-"+name)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	plugin, client, err := g.setupPlugin(name)
	if err != nil {
		return err
	}
	client.Info()
	return runOnce(ctx, name, plugin, client)
}

// runScheduled runs the plugin on every tick of `schedule` until ctx is done, a
// failed run is reported and the next one still happens.
func (g *globals) runScheduled(ctx context.Context, name, schedule string) error {
	tel, err := telemetry.SetupFromEnv(ctx, "mmry-"+name)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())
	if tel.Enabled() {
		telemetry.InstrumentPerfStats(ctx, time.Second*30)
	}

	plugin, client, err := g.setupPlugin(name)
	if err != nil {
		return err
	}
	client.Info()

	reporter := itelemetry.NewScopedAPI("mmry_run", client.Tel())
	cron := chrono.NewStandardCron(client.Clock(), reporter)
	err = cron.Cron(schedule, func() {
		err := runOnce(ctx, name, plugin, client)
		if err != nil {
			reporter.ReportBroken(report_scheduled_run, err)
		}
	})
	if err != nil {
		<-cron.Stop().Done()
		return fmt.Errorf("invalid schedule '%s': %w", schedule, err)
	}
	reporter.ReportInfo(fmt.Sprintf("running %s on schedule '%s', interrupt to stop", name, schedule))

	<-ctx.Done()
	<-cron.Stop().Done()
	return nil
}
