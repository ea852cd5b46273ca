package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livepaste/livepaste/client/internal/follower"
	"github.com/livepaste/livepaste/pkg/protocol"
)

const pushTimeout = 15 * time.Second

func newWatchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <slug>",
		Short: "Follow a room and print edits, images and viewer counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := client(v).RoomURL(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			f := follower.New(url, 0, func(m protocol.Message) { printMessage(out, m) })
			f.Run(ctx)
			return nil
		},
	}
}

func newPushCmd(v *viper.Viper) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "push <slug> [file]",
		Short: "Replace a room's content live from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, args[1:])
			if err != nil {
				return err
			}
			lang := languageFor(v, language, args[1:])
			if lang == "" {
				lang = "javascript"
			}
			url, err := client(v).RoomURL(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), pushTimeout)
			defer cancel()

			// The room echoes every edit to all viewers, sender included.
			echoed := make(chan struct{})
			var once bool
			f := follower.New(url, 1, func(m protocol.Message) {
				if e, ok := m.(protocol.BroadcastEdit); ok && !once && e.Content == content {
					once = true
					close(echoed)
				}
			})
			if err := f.Send(protocol.Edit{Content: content, Language: lang}); err != nil {
				return err
			}
			go f.Run(ctx)

			select {
			case <-echoed:
				fmt.Fprintf(cmd.ErrOrStderr(), "pushed %d bytes to %s\n", len(content), args[0])
				return nil
			case <-ctx.Done():
				return fmt.Errorf("push to %s: no confirmation within %s", args[0], pushTimeout)
			}
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language for syntax highlighting")
	return cmd
}

func printMessage(w io.Writer, m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Connected:
		fmt.Fprintf(w, "# connected to %s (%d other viewers)\n", msg.Slug, msg.Viewers)
	case protocol.Viewers:
		fmt.Fprintf(w, "# viewers: %d\n", msg.Count)
	case protocol.BroadcastEdit:
		fmt.Fprintf(w, "# edit (%s)\n%s\n", msg.Language, msg.Content)
	case protocol.BroadcastImage:
		fmt.Fprintf(w, "# image added: %s %dx%d\n", msg.Image.ID, msg.Image.Width, msg.Image.Height)
	case protocol.BroadcastRemoveImage:
		fmt.Fprintf(w, "# image removed: %s\n", msg.ID)
	}
}
