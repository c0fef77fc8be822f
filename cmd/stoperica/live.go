package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLiveCmd(flags *globalFlags) *cobra.Command {
	liveCmd := &cobra.Command{Use: "live", Short: "Shared live sessions"}

	liveCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions currently being hosted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.liveClient(cmd.Context())
			if err != nil {
				return err
			}
			sessions, err := client.Discover(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no live sessions")
				return nil
			}
			now := time.Now()
			for _, s := range sessions {
				printLiveLine(cmd.OutOrStdout(), s, now)
			}
			return nil
		},
	})

	liveCmd.AddCommand(&cobra.Command{
		Use:   "watch <session-id>",
		Short: "Join a live session and follow it until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			client, err := a.liveClient(ctx)
			if err != nil {
				return err
			}
			go client.KeepAlive(ctx)

			p, err := client.Join(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = p.Leave(cmd.Context()) }()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case u, ok := <-p.Updates():
					if !ok {
						return nil
					}
					if u.Removed {
						_, _ = fmt.Fprintln(out, warnColor.Sprint("session ended"))
						return nil
					}
					printLive(out, u.Session)
				}
			}
		},
	})
	return liveCmd
}
