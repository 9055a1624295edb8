package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the contacts schema",
	Long:  "Creates the contacts table, adds the identity key columns and their unique index, and fills keys for contacts created before they existed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		n, err := st.BackfillKeys(ctx)
		if err != nil {
			return eris.Wrap(err, "backfill identity keys")
		}

		zap.L().Info("migrate: complete", zap.String("driver", cfg.Store.Driver), zap.Int("backfilled", n))
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date, %d contacts keyed\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
