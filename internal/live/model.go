package live

import (
	"encoding/json"
	"time"

	"backend-stoperica/internal/laptime"
)

const (
	DefaultSessionName = "Live Session"
	DefaultLocation    = "Unknown Location"
	DefaultTotalTime   = "00:00:00"

	SessionTimeout    = 30 * time.Second
	BroadcastInterval = 500 * time.Millisecond
	PresenceTTL       = 15 * time.Second
	JanitorInterval   = 5 * time.Second
)

// LiveSession is the shared record a host publishes and participants watch.
// Timestamps are Unix milliseconds.
type LiveSession struct {
	SessionID    string            `json:"sessionId"`
	HostID       string            `json:"hostId"`
	HostName     string            `json:"hostName"`
	SessionName  string            `json:"sessionName"`
	Participants map[string]string `json:"participants"`
	Laps         []string          `json:"laps"`
	// Sectors has one entry per completed lap.
	Sectors [][]string `json:"-"`
	// CurrentSectors are the sectors of the lap still in progress.
	CurrentSectors []string `json:"-"`
	Timestamp      int64    `json:"timestamp"`
	IsActive       bool     `json:"isActive"`
	Location       string   `json:"location"`
	BestLap        string   `json:"bestLap"`
	WorstLap       string   `json:"worstLap"`
	TotalTime      string   `json:"totalTime"`
	CreatedAt      int64    `json:"createdAt"`
}

type liveSessionJSON LiveSession

type liveSessionWire struct {
	liveSessionJSON
	Sectors json.RawMessage `json:"sectors"`
}

func (s LiveSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(liveSessionWire{
		liveSessionJSON: liveSessionJSON(s),
		Sectors:         EncodeSectors(s.wireSectors()),
	})
}

// UnmarshalJSON fills absent fields with the record defaults and rebuilds the
// dense sector structure from the wire map.
func (s *LiveSession) UnmarshalJSON(data []byte) error {
	wire := liveSessionWire{liveSessionJSON: liveSessionJSON(defaultSession())}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = LiveSession(wire.liveSessionJSON)
	if s.Participants == nil {
		s.Participants = map[string]string{}
	}
	if s.Laps == nil {
		s.Laps = []string{}
	}
	s.Sectors = DecodeSectors(wire.Sectors, len(s.Laps))
	s.CurrentSectors = decodeSlot(wire.Sectors, len(s.Laps))
	return nil
}

func defaultSession() LiveSession {
	return LiveSession{
		SessionName: DefaultSessionName,
		IsActive:    true,
		Location:    DefaultLocation,
		BestLap:     laptime.NotAvailable,
		WorstLap:    laptime.NotAvailable,
		TotalTime:   DefaultTotalTime,
	}
}

// wireSectors lines completed sectors up with the laps and appends the
// in-progress slot.
func (s LiveSession) wireSectors() [][]string {
	n := max(len(s.Laps), len(s.Sectors))
	all := make([][]string, n, n+1)
	copy(all, s.Sectors)
	if len(s.CurrentSectors) > 0 {
		all = append(all, s.CurrentSectors)
	}
	return all
}

// Fresh reports whether the record was written within timeout of now.
func (s LiveSession) Fresh(now time.Time, timeout time.Duration) bool {
	return now.UnixMilli()-s.Timestamp < timeout.Milliseconds()
}

func BestLabel(d time.Duration, ok bool) string {
	if !ok {
		return laptime.NotAvailable
	}
	return "Best: " + laptime.Format(d)
}

func WorstLabel(d time.Duration, ok bool) string {
	if !ok {
		return laptime.NotAvailable
	}
	return "Worst: " + laptime.Format(d)
}
