package main

import (
	"fmt"
	"io"
	"time"

	"backend-stoperica/internal/history"
	"backend-stoperica/internal/laptime"
	"backend-stoperica/internal/live"
	"backend-stoperica/internal/session"

	"github.com/fatih/color"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	fastColor    = color.New(color.FgGreen)
	slowColor    = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

func uploadStatus(s session.Session) string {
	switch {
	case s.IsUploaded:
		return fastColor.Sprint("uploaded")
	case s.UploadError != nil:
		return slowColor.Sprintf("failed: %s", *s.UploadError)
	default:
		return warnColor.Sprint("pending")
	}
}

func printSessionLine(w io.Writer, s session.Session) {
	live := ""
	if s.IsLive {
		live = warnColor.Sprint(" [live]")
	}
	_, _ = fmt.Fprintf(w, "%s  %s%s  %s  laps=%d  fastest=%s  %s\n",
		dimColor.Sprint(s.ID), headingColor.Sprint(s.Name), live, s.DateTime, len(s.Laps), s.FastestLap, uploadStatus(s))
}

func printSession(w io.Writer, s session.Session) {
	headingColor.Fprintf(w, "%s\n", s.Name)
	_, _ = fmt.Fprintf(w, "  id:           %s\n", s.ID)
	_, _ = fmt.Fprintf(w, "  driver:       %s\n", s.Username)
	_, _ = fmt.Fprintf(w, "  date:         %s %s\n", s.Date, s.StartTime)
	_, _ = fmt.Fprintf(w, "  location:     %s\n", s.Location)
	_, _ = fmt.Fprintf(w, "  total:        %s\n", s.TotalTime)
	_, _ = fmt.Fprintf(w, "  fastest lap:  %s\n", fastColor.Sprint(s.FastestLap))
	_, _ = fmt.Fprintf(w, "  slowest lap:  %s\n", slowColor.Sprint(s.SlowestLap))
	_, _ = fmt.Fprintf(w, "  average lap:  %s\n", s.AverageLap)
	_, _ = fmt.Fprintf(w, "  consistency:  %s\n", s.Consistency)
	_, _ = fmt.Fprintf(w, "  top speed:    %s\n", s.TopSpeed)
	_, _ = fmt.Fprintf(w, "  avg speed:    %s\n", s.AverageSpeed)
	printLaps(w, s.Laps, s.Sectors)
}

func printLaps(w io.Writer, laps []string, sectors [][]string) {
	for i, lap := range laps {
		_, _ = fmt.Fprintf(w, "  %s\n", lap)
		if i < len(sectors) {
			for _, sec := range sectors[i] {
				_, _ = fmt.Fprintf(w, "      %s\n", dimColor.Sprint(sec))
			}
		}
	}
	// sectors of an unfinished lap
	for i := len(laps); i < len(sectors); i++ {
		for _, sec := range sectors[i] {
			_, _ = fmt.Fprintf(w, "      %s\n", dimColor.Sprint(sec))
		}
	}
}

func printAnalytics(w io.Writer, a history.Analytics) {
	headingColor.Fprintf(w, "Sessions analysed: %d\n", a.Sessions)
	if a.Fastest != nil {
		_, _ = fmt.Fprintf(w, "Fastest lap: %s in %s (%s)\n",
			fastColor.Sprint(laptime.Format(a.FastestLapTime)), a.Fastest.Name, a.Fastest.DateTime)
	} else {
		_, _ = fmt.Fprintf(w, "Fastest lap: %s\n", laptime.NotAvailable)
	}
	if a.Slowest != nil {
		_, _ = fmt.Fprintf(w, "Slowest lap: %s in %s (%s)\n",
			slowColor.Sprint(laptime.Format(a.SlowestLapTime)), a.Slowest.Name, a.Slowest.DateTime)
	} else {
		_, _ = fmt.Fprintf(w, "Slowest lap: %s\n", laptime.NotAvailable)
	}
}

func printComparison(w io.Writer, c history.Comparison) {
	headingColor.Fprintf(w, "%s vs %s\n", c.Left.Name, c.Right.Name)
	for _, d := range c.Laps {
		_, _ = fmt.Fprintf(w, "  Lap %-3d %-10s %-10s %s\n", d.Lap, d.Left, d.Right, colorDelta(d))
	}
	_, _ = fmt.Fprintf(w, "  Total   %-10s %-10s %s\n", c.Totals.Left, c.Totals.Right, colorDelta(c.Totals))
}

func colorDelta(d history.LapDelta) string {
	text := history.FormatDelta(d)
	switch {
	case !d.Valid:
		return dimColor.Sprint(text)
	case d.Delta < 0:
		return fastColor.Sprint(text)
	case d.Delta > 0:
		return slowColor.Sprint(text)
	default:
		return text
	}
}

func printLiveLine(w io.Writer, s live.LiveSession, now time.Time) {
	age := now.Sub(time.UnixMilli(s.Timestamp)).Round(time.Second)
	_, _ = fmt.Fprintf(w, "%s  %s  host=%s  %s  laps=%d  viewers=%d  updated %s ago\n",
		dimColor.Sprint(s.SessionID), headingColor.Sprint(s.SessionName), s.HostName, s.Location, len(s.Laps), len(s.Participants)-1, age)
}

func printLive(w io.Writer, s live.LiveSession) {
	headingColor.Fprintf(w, "%s @ %s\n", s.SessionName, s.Location)
	_, _ = fmt.Fprintf(w, "  total: %s  best: %s  worst: %s\n", s.TotalTime, fastColor.Sprint(s.BestLap), slowColor.Sprint(s.WorstLap))
	sectors := append([][]string{}, s.Sectors...)
	if len(s.CurrentSectors) > 0 {
		for len(sectors) < len(s.Laps) {
			sectors = append(sectors, nil)
		}
		sectors = append(sectors, s.CurrentSectors)
	}
	printLaps(w, s.Laps, sectors)
}
