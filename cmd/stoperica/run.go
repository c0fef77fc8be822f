package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"backend-stoperica/internal/events"
	"backend-stoperica/internal/laptime"
	"backend-stoperica/internal/recorder"
	"backend-stoperica/internal/stopwatch"
	"backend-stoperica/internal/upload"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const runHelp = `keys: s start/pause  l lap  x sector  p print  r save & reset  d reset  q quit`

type runOptions struct {
	location      string
	device        string
	hostLive      bool
	retryInterval time.Duration
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stopwatch from the keyboard and device events",
		Long: "Run the stopwatch. Keyboard presses and events published by `stoperica track`\n" +
			"on NATS_URL drive the same controls.\n\n" + runHelp,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runStopwatch(ctx, a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	host, _ := os.Hostname()
	cmd.Flags().StringVar(&opts.location, "location", "", "location recorded with sessions (default LOCATION)")
	cmd.Flags().StringVar(&opts.device, "device", host, "device id for the event subject on NATS")
	cmd.Flags().BoolVar(&opts.hostLive, "live", false, "host a live session once the stopwatch starts")
	cmd.Flags().DurationVar(&opts.retryInterval, "retry-interval", 30*time.Second, "how often to probe the server for queued uploads")
	return cmd
}

func openBus(url, device string) (events.Bus, error) {
	if url == "" {
		return events.NewLocalBus(), nil
	}
	return events.ConnectNATS(url, device)
}

func runStopwatch(ctx context.Context, a *app, opts runOptions, in io.Reader, out io.Writer) error {
	if opts.location == "" {
		opts.location = a.cfg.Location
	}
	id := a.identity(ctx)

	clock := clockwork.NewRealClock()
	sw := stopwatch.New(clock)
	controls := stopwatch.NewControls(sw, clock)
	rec := recorder.New(sw, clock, a.history, a.uploader, recorder.Options{
		Username: id.Username,
		Location: opts.location,
		Summary:  a.summaryConfig(),
	})

	bus, err := openBus(a.cfg.NATSURL, opts.device)
	if err != nil {
		return err
	}
	defer bus.Close()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	go controls.Listen(ctx, sub)

	if opts.retryInterval > 0 {
		go upload.NewWatcher(a.client, a.uploader, clock, opts.retryInterval).Run(ctx)
	}

	if opts.hostLive {
		client, err := a.liveClient(ctx)
		if err != nil {
			return err
		}
		go client.KeepAlive(ctx)
		controls.OnStart(func() {
			h, err := rec.Host(ctx, client)
			if err != nil {
				log.Warn().Err(err).Msg("could not host live session")
				return
			}
			_, _ = fmt.Fprintf(out, "live session %s\n", h.SessionID())
		})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	_, _ = fmt.Fprintln(out, runHelp)
	for {
		select {
		case <-ctx.Done():
			finish(rec, sw, out)
			return nil
		case line, ok := <-lines:
			if !ok || line == "q" {
				finish(rec, sw, out)
				return nil
			}
			if err := handleKey(ctx, line, bus, rec, sw, out); err != nil {
				_, _ = fmt.Fprintln(out, warnColor.Sprint(err))
			}
		}
	}
}

func handleKey(ctx context.Context, key string, bus events.Publisher, rec *recorder.Recorder, sw *stopwatch.Stopwatch, out io.Writer) error {
	now := time.Now()
	switch key {
	case "s":
		return bus.Publish(ctx, events.Event{Kind: events.StartLap, At: now})
	case "l":
		return bus.Publish(ctx, events.Event{Kind: events.Lap, At: now})
	case "x":
		return bus.Publish(ctx, events.Event{Kind: events.Sector, At: now})
	case "p":
		printSnapshot(out, sw.Snapshot())
	case "r", "d":
		s, stored, err := rec.Reset(ctx, key == "r")
		if err != nil {
			return err
		}
		if stored {
			printSession(out, s)
		} else {
			_, _ = fmt.Fprintln(out, "reset")
		}
	case "":
	default:
		_, _ = fmt.Fprintln(out, runHelp)
	}
	return nil
}

// finish saves an unfinished run before exiting.
func finish(rec *recorder.Recorder, sw *stopwatch.Stopwatch, out io.Writer) {
	if sw.State() == stopwatch.Idle {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, stored, err := rec.Reset(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("saving session failed")
		return
	}
	if stored {
		printSession(out, s)
	}
}

func printSnapshot(out io.Writer, snap stopwatch.Snapshot) {
	headingColor.Fprintf(out, "%s  total %s  lap %s\n", snap.State, laptime.Format(snap.Display.Total), laptime.Format(snap.Display.CurrentLap))
	if best, ok := snap.BestLap(); ok {
		worst, _ := snap.WorstLap()
		_, _ = fmt.Fprintf(out, "  best %s  worst %s\n", fastColor.Sprint(laptime.Format(best)), slowColor.Sprint(laptime.Format(worst)))
	}
	sectors := snap.Sectors
	if len(snap.CurrentSectors) > 0 {
		sectors = append(append([][]string{}, sectors...), snap.CurrentSectors)
	}
	printLaps(out, snap.Laps, sectors)
}
