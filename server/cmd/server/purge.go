package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/livepaste/livepaste/server/internal/config"
	"github.com/livepaste/livepaste/server/internal/store"
)

func newPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired snippets once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Server.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := store.New(db)
			if err != nil {
				return err
			}
			n, err := st.PurgeExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired snippets\n", n)
			return nil
		},
	}
}
