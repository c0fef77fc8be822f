package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"backend-stoperica/internal/events"
	"backend-stoperica/internal/proximity"
	"backend-stoperica/internal/shared/geo"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errNoNATS = errors.New("NATS_URL is not set")

// echoPublisher forwards events and prints each one.
type echoPublisher struct {
	next events.Publisher
	out  io.Writer
	sent int
}

func (p *echoPublisher) Publish(ctx context.Context, ev events.Event) error {
	if err := p.next.Publish(ctx, ev); err != nil {
		return err
	}
	p.sent++
	if ev.Kind == events.Sector {
		_, _ = fmt.Fprintf(p.out, "%s %d\n", ev.Kind, ev.SectorIndex)
	} else {
		_, _ = fmt.Fprintln(p.out, ev.Kind)
	}
	return nil
}

func newTrackCmd(flags *globalFlags) *cobra.Command {
	var trackPath string
	host, _ := os.Hostname()
	device := host

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Publish lap and sector events from location fixes on stdin",
		Long: "Read JSON fixes ({\"latitude\":..,\"longitude\":..}) from stdin, one per line,\n" +
			"and publish START_LAP, LAP and SECTOR events for the device on NATS_URL.\n" +
			"A `run` with the same --device picks them up.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.NATSURL == "" {
				return errNoNATS
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var markers proximity.Markers
			if trackPath != "" {
				track, err := proximity.LoadTrack(trackPath)
				if err != nil {
					return err
				}
				markers = track.Markers
			} else if markers, err = a.markers.Load(ctx); err != nil {
				return err
			}
			if markers.Start == nil {
				return proximity.ErrNoStartMarker
			}

			bus, err := events.ConnectNATS(a.cfg.NATSURL, device)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pub := &echoPublisher{next: bus, out: out}
			trigger := proximity.NewTrigger(markers, a.proximityConfig(), clockwork.NewRealClock())

			fixes := make(chan geo.Point)
			readErr := make(chan error, 1)
			go func() { readErr <- proximity.ReadFixes(ctx, cmd.InOrStdin(), fixes) }()

			log.Info().Str("device", device).Str("subject", events.Subject(device)).Msg("tracking")
			trigger.Run(ctx, fixes, pub)

			select {
			case err = <-readErr:
			case <-ctx.Done():
			}
			if cerr := bus.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			_, _ = fmt.Fprintf(out, "%d event(s) published\n", pub.sent)
			return err
		},
	}
	cmd.Flags().StringVar(&trackPath, "track", "", "track definition to use instead of the saved markers")
	cmd.Flags().StringVar(&device, "device", host, "device id for the event subject on NATS")
	return cmd
}
