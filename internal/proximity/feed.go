package proximity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"backend-stoperica/internal/shared/geo"
)

// ReadFixes decodes a stream of JSON fixes ({"latitude":..,"longitude":..})
// from r onto out and closes out when r is exhausted or ctx ends.
func ReadFixes(ctx context.Context, r io.Reader, out chan<- geo.Point) error {
	defer close(out)
	dec := json.NewDecoder(r)
	for {
		var p geo.Point
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode fix: %w", err)
		}
		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
