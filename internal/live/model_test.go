package live

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestLiveSessionJSONCarriesCurrentSectors(t *testing.T) {
	in := LiveSession{
		SessionID:      "s1",
		HostID:         "u1",
		HostName:       "ana",
		SessionName:    "ana's Session",
		Participants:   map[string]string{"u1": "ana"},
		Laps:           []string{"Lap 1: 00:30:00"},
		Sectors:        [][]string{{"Sector 1: 00:10:00"}},
		CurrentSectors: []string{"Sector 1: 00:04:00"},
		IsActive:       true,
		Location:       "Grobnik",
		BestLap:        "Best: 00:30:00",
		WorstLap:       "Worst: 00:30:00",
		TotalTime:      "00:34:00",
		Timestamp:      1000,
		CreatedAt:      900,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]json.RawMessage
	_ = json.Unmarshal(raw, &wire)
	if string(wire["sectors"]) != `{"0":{"0":"Sector 1: 00:10:00"},"1":{"0":"Sector 1: 00:04:00"}}` {
		t.Fatalf("unexpected sectors on the wire: %s", wire["sectors"])
	}

	var out LiveSession
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch\n got %+v\nwant %+v", out, in)
	}
}

func TestLiveSessionDefaults(t *testing.T) {
	var s LiveSession
	if err := json.Unmarshal([]byte(`{"sessionId":"s1"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.SessionName != DefaultSessionName || !s.IsActive || s.Location != DefaultLocation {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if s.BestLap != "N/A" || s.WorstLap != "N/A" || s.TotalTime != DefaultTotalTime {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if s.Participants == nil || s.Laps == nil || len(s.Sectors) != 0 {
		t.Fatalf("collections should be empty, got %+v", s)
	}
}

func TestFreshness(t *testing.T) {
	now := time.UnixMilli(100_000)
	s := LiveSession{Timestamp: 80_000}
	if !s.Fresh(now, SessionTimeout) {
		t.Fatalf("20s old record should be fresh")
	}
	s.Timestamp = 70_000
	if s.Fresh(now, SessionTimeout) {
		t.Fatalf("30s old record should be stale")
	}
}

func TestFilterFreshSortsNewestFirst(t *testing.T) {
	now := time.UnixMilli(100_000)
	sessions := []LiveSession{
		{SessionID: "old", IsActive: true, Timestamp: 95_000, CreatedAt: 10},
		{SessionID: "stale", IsActive: true, Timestamp: 1_000, CreatedAt: 50},
		{SessionID: "inactive", IsActive: false, Timestamp: 99_000, CreatedAt: 60},
		{SessionID: "new", IsActive: true, Timestamp: 99_000, CreatedAt: 30},
	}
	got := FilterFresh(sessions, now, SessionTimeout)
	if len(got) != 2 || got[0].SessionID != "new" || got[1].SessionID != "old" {
		t.Fatalf("unexpected discovery result %+v", got)
	}
}

func TestLabels(t *testing.T) {
	if BestLabel(28500*time.Millisecond, true) != "Best: 00:28:50" {
		t.Fatalf("unexpected best label")
	}
	if WorstLabel(0, false) != "N/A" {
		t.Fatalf("unset worst should render N/A")
	}
}
