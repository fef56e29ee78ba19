package commands

import (
	"fmt"

	"github.com/mmry-org/mmry-plugins/lib/itemdb"

	"github.com/spf13/cobra"
)

func newExportCmd(g *globals) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copies the items of the run directory into a sqlite or libsql database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			items, err := client.OutputItems().Collect()
			if err != nil {
				return err
			}

			if dsn == "" {
				config, err := g.readConfig()
				if err != nil {
					return err
				}
				dsn = config.Export.DSN()
			}
			db, err := itemdb.OpenDB(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			store := itemdb.NewStore(db)
			err = store.Upsert(cmd.Context(), client.Clock().Now(), items)
			if err != nil {
				return err
			}
			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d items, the database now holds %d items\n", len(items), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "sqlite file or libsql url to export to, defaults to the export section of the config")
	return cmd
}
