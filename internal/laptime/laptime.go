// Package laptime renders and reads the MM:SS:CC strings used for laps and sectors.
package laptime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Invalid is returned by ParseOrMax for strings that carry no readable time.
// It sorts after every real duration, so it never wins "fastest" and always wins "slowest".
const Invalid = time.Duration(math.MaxInt64)

// NotAvailable is rendered wherever a value has no valid input.
const NotAvailable = "N/A"

const separator = ": "

var timePattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

// Format renders d as minutes:seconds:centiseconds. There is no hour field;
// durations of an hour or more wrap.
func Format(d time.Duration) string {
	ms := d.Milliseconds()
	minutes := (ms / 60000) % 60
	seconds := (ms / 1000) % 60
	centis := (ms % 1000) / 10
	return fmt.Sprintf("%02d:%02d:%02d", minutes, seconds, centis)
}

// Parse reads the time token after the last ": " in s ("Lap 3: 01:02:03" or "01:02:03").
func Parse(s string) (time.Duration, bool) {
	token := s
	if i := strings.LastIndex(s, separator); i >= 0 {
		token = s[i+len(separator):]
	}
	token = strings.TrimSpace(token)
	if !timePattern.MatchString(token) {
		return 0, false
	}

	parts := strings.Split(token, ":")
	minutes, _ := strconv.ParseInt(parts[0], 10, 64)
	seconds, _ := strconv.ParseInt(parts[1], 10, 64)
	centis, _ := strconv.ParseInt(parts[2], 10, 64)
	ms := minutes*60000 + seconds*1000 + centis*10
	return time.Duration(ms) * time.Millisecond, true
}

// ParseOrMax is Parse with failures mapped to Invalid.
func ParseOrMax(s string) time.Duration {
	d, ok := Parse(s)
	if !ok {
		return Invalid
	}
	return d
}

// Token returns the substring after the last ": ", or s itself.
func Token(s string) string {
	if i := strings.LastIndex(s, separator); i >= 0 {
		return s[i+len(separator):]
	}
	return s
}

func LapLabel(n int, d time.Duration) string {
	return fmt.Sprintf("Lap %d: %s", n, Format(d))
}

func SectorLabel(n int, d time.Duration) string {
	return fmt.Sprintf("Sector %d: %s", n, Format(d))
}
