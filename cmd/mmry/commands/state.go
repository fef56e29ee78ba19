package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Prints the state plugins persisted in the run directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			state, err := client.State()
			if err != nil {
				return err
			}

			snapshot := state.Snapshot()
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Key", "Value"})
			for _, key := range state.Keys() {
				t.AppendRow(table.Row{key, preview(string(snapshot[key]))})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
}
