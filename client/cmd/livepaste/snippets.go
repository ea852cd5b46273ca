package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livepaste/livepaste/client/internal/rest"
)

func newNewCmd(v *viper.Viper) *cobra.Command {
	var slug, language string
	cmd := &cobra.Command{
		Use:   "new [file]",
		Short: "Create a snippet from a file or stdin and print its slug",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, args)
			if err != nil {
				return err
			}
			created, err := client(v).Create(cmd.Context(), rest.CreateRequest{
				Slug:     slug,
				Content:  content,
				Language: languageFor(v, language, args),
			})
			if err != nil {
				return err
			}
			base := strings.TrimRight(v.GetString(serverKey), "/")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", created.Slug)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s/%s (expires %s)\n", base, created.Slug, created.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&slug, "slug", "s", "", "custom slug (sanitized by the server)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "language for syntax highlighting")
	return cmd
}

func newGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <slug>",
		Short: "Print a snippet's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sn, err := client(v).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sn.Content)
			if !strings.HasSuffix(sn.Content, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if len(sn.Images) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "(%d images attached)\n", len(sn.Images))
			}
			return nil
		},
	}
}

func newRmCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <slug>",
		Short: "Delete a snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client(v).Delete(cmd.Context(), args[0])
		},
	}
}

func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check <slug>",
		Short: "Report whether a slug is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := client(v).Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state := "taken or invalid"
			if a.Available {
				state = "available"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.Slug, state)
			return nil
		},
	}
}
