package commands

import (
	"strings"

	"github.com/mmry-org/mmry-plugins/lib/mmry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const previewLength = 60

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength-3]) + "..."
}

func newItemsCmd(g *globals) *cobra.Command {
	var input bool
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Lists the items a plugin wrote to the run directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			it := client.OutputItems()
			if input {
				it = client.InputItems()
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Collection", "External ID", "Content"})
			err = it.Iterate(func(item mmry.StoredItem) error {
				t.AppendRow(table.Row{
					item.ID,
					item.Item.Collection,
					item.Item.ExternalID,
					preview(item.Item.Content),
				})
				return nil
			})
			if err != nil {
				return err
			}
			t.AppendFooter(table.Row{"", "", "Total", t.Length()})
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&input, "in", false, "list the input items instead")
	return cmd
}
