package main

import (
	"fmt"
	"time"

	"backend-stoperica/internal/proximity"
	"backend-stoperica/internal/recorder"
	"backend-stoperica/internal/session"
	"backend-stoperica/internal/stopwatch"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newMarkersCmd(flags *globalFlags) *cobra.Command {
	markers := &cobra.Command{Use: "markers", Short: "Start line and sector markers"}

	markers.AddCommand(&cobra.Command{
		Use:   "import <track.yaml>",
		Short: "Replace the saved markers with a track definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			track, err := proximity.LoadTrack(args[0])
			if err != nil {
				return err
			}
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.markers.Save(cmd.Context(), track.Markers); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s: start line and %d sector marker(s)\n", track.Name, len(track.Sectors))
			return nil
		},
	})

	markers.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved markers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			m, err := a.markers.Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if m.Empty() {
				_, _ = fmt.Fprintln(out, "no markers")
				return nil
			}
			if m.Start != nil {
				_, _ = fmt.Fprintf(out, "start    %.6f, %.6f\n", m.Start.Lat, m.Start.Lng)
			}
			for i, p := range m.Sectors {
				_, _ = fmt.Fprintf(out, "sector %d %.6f, %.6f\n", i+1, p.Lat, p.Lng)
			}
			return nil
		},
	})

	markers.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget all markers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.markers.Reset(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "markers cleared")
			return nil
		},
	})
	return markers
}

func newReplayCmd(flags *globalFlags) *cobra.Command {
	var trackPath, location string
	var save bool

	cmd := &cobra.Command{
		Use:   "replay <fixes.yaml>",
		Short: "Time a recorded drive against the track markers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recording, err := proximity.LoadRecording(args[0])
			if err != nil {
				return err
			}
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			sumCfg := a.summaryConfig()
			var markers proximity.Markers
			if trackPath != "" {
				track, err := proximity.LoadTrack(trackPath)
				if err != nil {
					return err
				}
				markers = track.Markers
				if track.LengthM > 0 {
					sumCfg.TrackLengthM = track.LengthM
				}
				if location == "" {
					location = track.Name
				}
			} else {
				if markers, err = a.markers.Load(ctx); err != nil {
					return err
				}
				if markers.Start == nil {
					return proximity.ErrNoStartMarker
				}
			}
			if location == "" {
				location = a.cfg.Location
			}

			clock := clockwork.NewFakeClockAt(time.Now())
			sw := stopwatch.New(clock)
			controls := stopwatch.NewControls(sw, clock)
			trigger := proximity.NewTrigger(markers, a.proximityConfig(), clock)

			n, err := proximity.Replay(ctx, clock, trigger, recording.Fixes, controls)
			if err != nil {
				return err
			}
			if n == 0 {
				return errNothingRecorded
			}

			out := cmd.OutOrStdout()
			if !save {
				s, ok := session.Build(sw.Stop(), session.Meta{
					Name:       "Replay",
					Username:   a.cfg.Username,
					Location:   location,
					FinishedAt: clock.Now(),
				}, sumCfg)
				if !ok {
					return errNothingRecorded
				}
				printSession(out, s)
				return nil
			}

			id := a.identity(ctx)
			rec := recorder.New(sw, clock, a.history, a.uploader, recorder.Options{
				Username: id.Username,
				Location: location,
				Summary:  sumCfg,
			})
			s, stored, err := rec.Reset(ctx, true)
			if err != nil {
				return err
			}
			if !stored {
				if s.ID == "" {
					return errNothingRecorded
				}
				_, _ = fmt.Fprintln(out, warnColor.Sprint("identical session already saved"))
				return nil
			}
			printSession(out, s)
			return nil
		},
	}
	cmd.Flags().StringVar(&trackPath, "track", "", "track definition to use instead of the saved markers")
	cmd.Flags().StringVar(&location, "location", "", "location recorded with the session")
	cmd.Flags().BoolVar(&save, "save", false, "store and upload the result")
	return cmd
}
