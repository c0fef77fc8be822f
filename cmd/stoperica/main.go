package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-stoperica/internal/history"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "stoperica",
		Short:         "Lap and sector stopwatch for track days",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataPath, "data", "", "local database file (default DATA_PATH)")
	root.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "archive server URL (default UPLOAD_ENDPOINT)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newHistoryCmd(flags))
	root.AddCommand(newUploadsCmd(flags))
	root.AddCommand(newLiveCmd(flags))
	root.AddCommand(newMarkersCmd(flags))
	root.AddCommand(newReplayCmd(flags))
	root.AddCommand(newTrackCmd(flags))
	root.AddCommand(newWhoamiCmd(flags))
	return root
}

// signalContext ends on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	hist := &cobra.Command{Use: "history", Short: "Saved sessions"}

	hist.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			sessions, err := a.history.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			for _, s := range sessions {
				printSessionLine(cmd.OutOrStdout(), s)
			}
			return nil
		},
	})

	hist.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one session with its laps and sectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := a.history.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	})

	hist.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a session and upload it again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			a.identity(cmd.Context())
			s, err := a.history.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", s.ID, s.Name)
			return nil
		},
	})

	hist.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session locally and on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			a.identity(cmd.Context())
			if err := a.history.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	hist.AddCommand(&cobra.Command{
		Use:   "analytics",
		Short: "Fastest and slowest laps across all sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			sessions, err := a.history.List(cmd.Context())
			if err != nil {
				return err
			}
			printAnalytics(cmd.OutOrStdout(), history.Analyze(sessions))
			return nil
		},
	})

	hist.AddCommand(&cobra.Command{
		Use:   "compare <left-id> <right-id>",
		Short: "Lap by lap comparison of two sessions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			left, err := a.history.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			right, err := a.history.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			c, err := history.Compare(left, right)
			if err != nil {
				return err
			}
			printComparison(cmd.OutOrStdout(), c)
			return nil
		},
	})
	return hist
}

func newUploadsCmd(flags *globalFlags) *cobra.Command {
	uploads := &cobra.Command{Use: "uploads", Short: "Pending uploads"}

	uploads.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Count sessions waiting for a retry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.history.PendingFailed(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d session(s) waiting for upload\n", n)
			return nil
		},
	})

	var timeout time.Duration
	retry := &cobra.Command{
		Use:   "retry",
		Short: "Upload every queued session now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			a.client.SetTimeout(timeout)
			a.identity(cmd.Context())
			n, err := a.uploader.RetryFailed(cmd.Context())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d session(s) uploaded\n", n)
			return err
		},
	}
	retry.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per request timeout")
	uploads.AddCommand(retry)
	return uploads
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show or set the driver name and anonymous account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if username != "" {
				if err := a.prefs.SetUsername(cmd.Context(), username); err != nil {
					return err
				}
			}
			id := a.identity(cmd.Context())
			userID := id.UserID
			if userID == "" {
				userID = warnColor.Sprint("not signed in")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "username: %s\nuser id:  %s\n", id.Username, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "set-username", "", "store a new driver name")
	return cmd
}

var errNothingRecorded = errors.New("nothing recorded")
