package commands

import (
	"fmt"
	"strings"

	"github.com/mmry-org/mmry-plugins/plugins"
	"github.com/mmry-org/mmry-plugins/plugins/builtin"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func formatInputs(inputs []plugins.ManifestInput) string {
	lines := make([]string, len(inputs))
	for i, input := range inputs {
		line := fmt.Sprintf("%s (%s)", input.ID, input.Kind)
		if input.Required {
			line += " required"
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "Lists the available plugins and their inputs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := builtin.NewRegistry(plugins.Config{}, nil)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Plugin", "Description", "Inputs"})
			for _, p := range registry.All() {
				manifest := p.Manifest()
				t.AppendRow(table.Row{manifest.Name, manifest.Description, formatInputs(manifest.Inputs)})
				t.AppendSeparator()
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
}
