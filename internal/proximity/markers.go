package proximity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"backend-stoperica/internal/kvstore"
	"backend-stoperica/internal/shared/geo"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	MarkersNamespace = "MapMarkers"
	startKey         = "startLapPosition"
	sectorsKey       = "sectorPositions"
)

var ErrNoStartMarker = errors.New("track has no start marker")

// MarkerStore persists markers between runs.
type MarkerStore struct {
	kv *kvstore.Store
}

func NewMarkerStore(kv *kvstore.Store) *MarkerStore {
	return &MarkerStore{kv: kv}
}

// Load returns the saved markers. Values that fail to decode are ignored.
func (s *MarkerStore) Load(ctx context.Context) (Markers, error) {
	var m Markers

	raw, ok, err := s.kv.Get(ctx, MarkersNamespace, startKey)
	if err != nil {
		return Markers{}, err
	}
	if ok {
		var p *geo.Point
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Warn().Err(err).Msg("stored start marker unreadable")
		} else {
			m.Start = p
		}
	}

	raw, ok, err = s.kv.Get(ctx, MarkersNamespace, sectorsKey)
	if err != nil {
		return Markers{}, err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &m.Sectors); err != nil {
			log.Warn().Err(err).Msg("stored sector markers unreadable")
			m.Sectors = nil
		}
	}
	return m, nil
}

func (s *MarkerStore) Save(ctx context.Context, m Markers) error {
	start, err := json.Marshal(m.Start)
	if err != nil {
		return fmt.Errorf("encode start marker: %w", err)
	}
	sectors := m.Sectors
	if sectors == nil {
		sectors = []geo.Point{}
	}
	rawSectors, err := json.Marshal(sectors)
	if err != nil {
		return fmt.Errorf("encode sector markers: %w", err)
	}
	if err := s.kv.Put(ctx, MarkersNamespace, startKey, string(start)); err != nil {
		return err
	}
	return s.kv.Put(ctx, MarkersNamespace, sectorsKey, string(rawSectors))
}

func (s *MarkerStore) Reset(ctx context.Context) error {
	if err := s.kv.Delete(ctx, MarkersNamespace, startKey); err != nil {
		return err
	}
	return s.kv.Delete(ctx, MarkersNamespace, sectorsKey)
}

// Track is a track definition file.
type Track struct {
	Name    string  `yaml:"name"`
	LengthM float64 `yaml:"lengthM"`
	Markers `yaml:",inline"`
}

func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("read track file: %w", err)
	}
	return ParseTrack(data)
}

func ParseTrack(data []byte) (Track, error) {
	var t Track
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Track{}, fmt.Errorf("parse track file: %w", err)
	}
	if t.Start == nil {
		return Track{}, ErrNoStartMarker
	}
	return t, nil
}
