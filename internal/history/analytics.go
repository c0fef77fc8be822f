package history

import (
	"errors"
	"fmt"
	"time"

	"backend-stoperica/internal/laptime"
	"backend-stoperica/internal/session"
)

var ErrSameSession = errors.New("cannot compare a session with itself")

// Analytics picks the session holding the fastest single lap and the one
// holding the slowest single lap. Sessions without a readable value are skipped.
type Analytics struct {
	Sessions       int
	Fastest        *session.Session
	FastestLapTime time.Duration
	Slowest        *session.Session
	SlowestLapTime time.Duration
}

func Analyze(sessions []session.Session) Analytics {
	a := Analytics{Sessions: len(sessions)}
	for i := range sessions {
		s := &sessions[i]
		if d, ok := laptime.Parse(s.FastestLap); ok && (a.Fastest == nil || d < a.FastestLapTime) {
			a.Fastest = s
			a.FastestLapTime = d
		}
		if d, ok := laptime.Parse(s.SlowestLap); ok && (a.Slowest == nil || d > a.SlowestLapTime) {
			a.Slowest = s
			a.SlowestLapTime = d
		}
	}
	return a
}

type LapDelta struct {
	Lap   int
	Left  string
	Right string
	// Delta is right minus left; negative means the right session was faster.
	Delta time.Duration
	Valid bool
}

type Comparison struct {
	Left   session.Session
	Right  session.Session
	Laps   []LapDelta
	Totals LapDelta
}

func Compare(left, right session.Session) (Comparison, error) {
	if left.ID != "" && left.ID == right.ID {
		return Comparison{}, ErrSameSession
	}
	c := Comparison{Left: left, Right: right}

	n := min(len(left.Laps), len(right.Laps))
	for i := 0; i < n; i++ {
		c.Laps = append(c.Laps, delta(i+1, left.Laps[i], right.Laps[i]))
	}
	c.Totals = delta(0, left.TotalTime, right.TotalTime)
	return c, nil
}

func delta(lap int, left, right string) LapDelta {
	d := LapDelta{Lap: lap, Left: laptime.Token(left), Right: laptime.Token(right)}
	l, okL := laptime.Parse(left)
	r, okR := laptime.Parse(right)
	if okL && okR {
		d.Delta = r - l
		d.Valid = true
	}
	return d
}

// FormatDelta renders a signed lap delta, e.g. "-00:01:50".
func FormatDelta(d LapDelta) string {
	if !d.Valid {
		return laptime.NotAvailable
	}
	sign := "+"
	v := d.Delta
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%s", sign, laptime.Format(v))
}
