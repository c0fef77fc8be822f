package proximity

import (
	"context"
	"fmt"
	"os"

	"backend-stoperica/internal/events"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

type Recording struct {
	Fixes []Fix `yaml:"fixes"`
}

func LoadRecording(path string) (Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("read recording: %w", err)
	}
	return ParseRecording(data)
}

func ParseRecording(data []byte) (Recording, error) {
	var r Recording
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Recording{}, fmt.Errorf("parse recording: %w", err)
	}
	return r, nil
}

// Replay feeds recorded fixes through t, moving clock to each fix's offset
// first so cooldowns and anything else on the same clock see recorded time.
// It returns the number of events published.
func Replay(ctx context.Context, clock *clockwork.FakeClock, t *Trigger, fixes []Fix, pub events.Publisher) (int, error) {
	origin := clock.Now()
	published := 0
	for _, fix := range fixes {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if step := origin.Add(fix.Offset).Sub(clock.Now()); step > 0 {
			clock.Advance(step)
		}
		ev, fired := t.Check(fix.Point)
		if !fired {
			continue
		}
		if err := pub.Publish(ctx, ev); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
