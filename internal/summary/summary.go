package summary

import (
	"fmt"
	"math"
	"time"

	"backend-stoperica/internal/laptime"
)

const (
	DefaultTrackLengthM    = 1700.0
	DefaultReferenceStdDev = 8944.3
	DefaultTopSpeedFactor  = 1.4
)

// Config carries the constants the summary depends on. Zero fields fall back
// to the defaults.
type Config struct {
	TrackLengthM      float64
	ReferenceStdDevMs float64
	TopSpeedFactor    float64
}

func DefaultConfig() Config {
	return Config{
		TrackLengthM:      DefaultTrackLengthM,
		ReferenceStdDevMs: DefaultReferenceStdDev,
		TopSpeedFactor:    DefaultTopSpeedFactor,
	}
}

func (c Config) withDefaults() Config {
	if c.TrackLengthM <= 0 {
		c.TrackLengthM = DefaultTrackLengthM
	}
	if c.ReferenceStdDevMs <= 0 {
		c.ReferenceStdDevMs = DefaultReferenceStdDev
	}
	if c.TopSpeedFactor <= 0 {
		c.TopSpeedFactor = DefaultTopSpeedFactor
	}
	return c
}

type Summary struct {
	FastestLap   string `json:"fastestLap"`
	SlowestLap   string `json:"slowestLap"`
	AverageLap   string `json:"averageLap"`
	Consistency  string `json:"consistency"`
	TopSpeed     string `json:"topSpeed"`
	AverageSpeed string `json:"averageSpeed"`
}

type lap struct {
	number int
	d      time.Duration
}

func Calculate(cfg Config, laps []string) Summary {
	cfg = cfg.withDefaults()
	valid := parseLaps(laps)

	return Summary{
		FastestLap:   extreme(valid, func(a, b time.Duration) bool { return a < b }),
		SlowestLap:   extreme(valid, func(a, b time.Duration) bool { return a > b }),
		AverageLap:   average(valid),
		Consistency:  consistency(valid, cfg.ReferenceStdDevMs),
		TopSpeed:     topSpeed(valid, cfg),
		AverageSpeed: averageSpeed(valid, cfg),
	}
}

func parseLaps(laps []string) []lap {
	valid := make([]lap, 0, len(laps))
	for i, text := range laps {
		d, ok := laptime.Parse(text)
		if !ok {
			continue
		}
		valid = append(valid, lap{number: i + 1, d: d})
	}
	return valid
}

// extreme keeps the first lap for which no later lap compares strictly better.
func extreme(valid []lap, better func(a, b time.Duration) bool) string {
	if len(valid) == 0 {
		return laptime.NotAvailable
	}
	pick := valid[0]
	for _, l := range valid[1:] {
		if better(l.d, pick.d) {
			pick = l
		}
	}
	return fmt.Sprintf("%d: %s", pick.number, laptime.Format(pick.d))
}

func meanMs(valid []lap) float64 {
	var sum float64
	for _, l := range valid {
		sum += float64(l.d.Milliseconds())
	}
	return sum / float64(len(valid))
}

func average(valid []lap) string {
	if len(valid) == 0 {
		return laptime.NotAvailable
	}
	return laptime.Format(time.Duration(int64(meanMs(valid))) * time.Millisecond)
}

// Consistency scores how tightly lap times cluster: 100% means identical laps,
// 0% a spread at or above the reference deviation.
func consistency(valid []lap, reference float64) string {
	if len(valid) < 2 {
		return laptime.NotAvailable
	}
	mean := meanMs(valid)
	var variance float64
	for _, l := range valid {
		diff := float64(l.d.Milliseconds()) - mean
		variance += diff * diff
	}
	variance /= float64(len(valid))

	score := 100 * (1 - math.Sqrt(variance)/reference)
	score = math.Max(0, math.Min(100, score))
	return fmt.Sprintf("%.2f%%", score)
}

func meanSpeedKmh(valid []lap, trackLengthM float64) (float64, bool) {
	var sum float64
	n := 0
	for _, l := range valid {
		seconds := l.d.Seconds()
		if seconds <= 0 {
			continue
		}
		sum += trackLengthM / seconds * 3.6
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func averageSpeed(valid []lap, cfg Config) string {
	speed, ok := meanSpeedKmh(valid, cfg.TrackLengthM)
	if !ok {
		return laptime.NotAvailable
	}
	return formatSpeed(speed)
}

// topSpeed is a fixed multiple of the average speed, not a measured value.
func topSpeed(valid []lap, cfg Config) string {
	speed, ok := meanSpeedKmh(valid, cfg.TrackLengthM)
	if !ok {
		return laptime.NotAvailable
	}
	return formatSpeed(speed * cfg.TopSpeedFactor)
}

func formatSpeed(kmh float64) string {
	return fmt.Sprintf("%d km/h", int(kmh))
}
