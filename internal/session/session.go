package session

import (
	"fmt"
	"slices"
	"time"

	"backend-stoperica/internal/laptime"
	"backend-stoperica/internal/stopwatch"
	"backend-stoperica/internal/summary"

	"github.com/google/uuid"
)

const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Session is a finished run as stored locally and uploaded to the archive.
type Session struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Date          string     `json:"date"`
	StartTime     string     `json:"startTime"`
	FastestLap    string     `json:"fastestLap"`
	SlowestLap    string     `json:"slowestLap"`
	AverageLap    string     `json:"averageLap"`
	Consistency   string     `json:"consistency"`
	TotalTime     string     `json:"totalTime"`
	Location      string     `json:"location"`
	DateTime      string     `json:"dateTime"`
	Laps          []string   `json:"laps"`
	Sectors       [][]string `json:"sectors"`
	IsLive        bool       `json:"isLive"`
	LiveSessionID *string    `json:"liveSessionId"`
	TopSpeed      string     `json:"topSpeed"`
	AverageSpeed  string     `json:"averageSpeed"`
	IsUploaded    bool       `json:"isUploaded"`
	UploadError   *string    `json:"uploadError"`
}

// Meta is everything about a run that the stopwatch itself does not know.
type Meta struct {
	Name          string
	Username      string
	Location      string
	LiveSessionID string
	FinishedAt    time.Time
}

// Build turns the final stopwatch state into a session. It reports false when
// the run recorded neither a lap nor a sector.
func Build(snap stopwatch.Snapshot, meta Meta, cfg summary.Config) (Session, bool) {
	sectors := make([][]string, 0, len(snap.Sectors)+1)
	for _, lap := range snap.Sectors {
		sectors = append(sectors, append([]string{}, lap...))
	}
	if len(snap.CurrentSectors) > 0 {
		sectors = append(sectors, append([]string{}, snap.CurrentSectors...))
	}
	if len(snap.Laps) == 0 && len(sectors) == 0 {
		return Session{}, false
	}

	sum := summary.Calculate(cfg, snap.Laps)
	s := Session{
		ID:           uuid.NewString(),
		Name:         meta.Name,
		Username:     meta.Username,
		Date:         meta.FinishedAt.Format(DateLayout),
		StartTime:    snap.StartedAt.Format(TimeLayout),
		FastestLap:   sum.FastestLap,
		SlowestLap:   sum.SlowestLap,
		AverageLap:   sum.AverageLap,
		Consistency:  sum.Consistency,
		TotalTime:    laptime.Format(snap.Display.Total),
		Location:     meta.Location,
		DateTime:     meta.FinishedAt.Format(DateTimeLayout),
		Laps:         append([]string{}, snap.Laps...),
		Sectors:      sectors,
		TopSpeed:     sum.TopSpeed,
		AverageSpeed: sum.AverageSpeed,
	}
	if meta.LiveSessionID != "" {
		id := meta.LiveSessionID
		s.IsLive = true
		s.LiveSessionID = &id
	}
	return s, true
}

func DefaultName(n int) string {
	return fmt.Sprintf("Session %d", n)
}

// SameTimes reports whether two sessions carry identical lap and sector lists.
func SameTimes(a, b Session) bool {
	if !slices.Equal(a.Laps, b.Laps) || len(a.Sectors) != len(b.Sectors) {
		return false
	}
	for i := range a.Sectors {
		if !slices.Equal(a.Sectors[i], b.Sectors[i]) {
			return false
		}
	}
	return true
}

// Normalize replaces nil lists so the JSON form always carries arrays.
func (s *Session) Normalize() {
	if s.Laps == nil {
		s.Laps = []string{}
	}
	if s.Sectors == nil {
		s.Sectors = [][]string{}
	}
	for i := range s.Sectors {
		if s.Sectors[i] == nil {
			s.Sectors[i] = []string{}
		}
	}
	if s.TopSpeed == "" {
		s.TopSpeed = laptime.NotAvailable
	}
	if s.AverageSpeed == "" {
		s.AverageSpeed = laptime.NotAvailable
	}
}
