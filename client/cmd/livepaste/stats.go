package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livepaste/livepaste/client/internal/scrape"
)

const (
	apiKeyKey    = "api_key"
	apiHeaderKey = "api_key_header"
)

func newStatsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show room, viewer and message totals from the server's /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := scrape.New(v.GetString(serverKey), v.GetString(apiHeaderKey), v.GetString(apiKeyKey))
			st, err := s.Scrape(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "rooms      %.0f\n", st.Rooms)
			fmt.Fprintf(w, "viewers    %.0f\n", st.Viewers)
			fmt.Fprintf(w, "sessions   %.0f\n", st.Sessions)
			fmt.Fprintf(w, "published  %.0f\n", st.Published)
			fmt.Fprintf(w, "dropped    %.0f\n", st.Dropped)
			fmt.Fprintf(w, "purged     %.0f\n", st.Purged)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("api-key", "", "API key for a guarded /metrics (or LIVEPASTE_API_KEY)")
	f.String("api-key-header", scrape.DefaultHeader, "header carrying the API key")
	v.BindPFlag(apiKeyKey, f.Lookup("api-key"))           //nolint:errcheck
	v.BindPFlag(apiHeaderKey, f.Lookup("api-key-header")) //nolint:errcheck
	return cmd
}
