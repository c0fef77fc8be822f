package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"backend-stoperica/internal/events"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
)

const fixesJSON = `{"latitude": 45.0, "longitude": 14.0}
{"latitude": 45.005, "longitude": 14.0}
{"latitude": 45.01, "longitude": 14.0}
{"latitude": 45.0, "longitude": 14.0}
`

func TestTrackPublishesOnNATS(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	defer srv.Shutdown()

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	sub, err := events.NewNATSBus(conn, "kart-7").Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	c := newCLI(t)
	t.Setenv("NATS_URL", srv.ClientURL())
	t.Setenv("PROXIMITY_COOLDOWN", "1ns")
	track := c.file("track.yaml", trackYAML)

	out, err := c.runWithInput(fixesJSON, "track", "--track", track, "--device", "kart-7")
	if err != nil {
		t.Fatalf("track: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 event(s) published") {
		t.Fatalf("unexpected output %q", out)
	}

	want := []events.Kind{events.StartLap, events.Sector, events.Lap}
	for i, kind := range want {
		select {
		case ev := <-sub.C:
			if ev.Kind != kind {
				t.Fatalf("event %d: got %s, want %s", i, ev.Kind, kind)
			}
			if kind == events.Sector && ev.SectorIndex != 1 {
				t.Fatalf("unexpected sector index %d", ev.SectorIndex)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func TestTrackNeedsNATS(t *testing.T) {
	c := newCLI(t)
	track := c.file("track.yaml", trackYAML)
	if _, err := c.runWithInput(fixesJSON, "track", "--track", track); !errors.Is(err, errNoNATS) {
		t.Fatalf("expected errNoNATS, got %v", err)
	}
}
