// Package geo loads imagery targets and maps them onto slippy-map tiles.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoTargets    = errors.New("geo: no targets")
	ErrDuplicateID  = errors.New("geo: duplicate target id")
	ErrTooManyTiles = errors.New("geo: target covers too many tiles")
)

// Target is one area of interest.
type Target struct {
	ID         string
	Geometry   orb.Geometry
	Bound      orb.Bound
	Properties map[string]any
}

// idKeys are the properties consulted, in order, for a target id.
var idKeys = []string{"id", "name", "target_id"}

// LoadTargetsDir reads every .geojson and .json file in dir, in name order.
// Feature collections, single features and bare geometries are accepted.
func LoadTargetsDir(dir string) ([]Target, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read targets dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".geojson", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var targets []Target
	seen := map[string]string{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		features, err := parseFeatures(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		for i, f := range features {
			if f.Geometry == nil {
				continue
			}
			t := Target{
				ID:         featureID(f, fmt.Sprintf("%s_%d", stem, i)),
				Geometry:   f.Geometry,
				Bound:      f.Geometry.Bound(),
				Properties: map[string]any(f.Properties),
			}
			if t.Properties == nil {
				t.Properties = map[string]any{}
			}
			if prev, ok := seen[t.ID]; ok {
				return nil, fmt.Errorf("%w: %q in %s and %s", ErrDuplicateID, t.ID, prev, name)
			}
			seen[t.ID] = name
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTargets, dir)
	}
	return targets, nil
}

func parseFeatures(data []byte) ([]*geojson.Feature, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		return fc.Features, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		return []*geojson.Feature{f}, nil
	case "":
		return nil, fmt.Errorf("missing geojson type")
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
}

func featureID(f *geojson.Feature, fallback string) string {
	for _, k := range idKeys {
		if v, ok := f.Properties[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	if f.ID != nil {
		if s := strings.TrimSpace(fmt.Sprint(f.ID)); s != "" {
			return s
		}
	}
	return fallback
}

// PointTarget builds a target from a single coordinate.
func PointTarget(id string, lon, lat float64, props map[string]any) Target {
	p := orb.Point{lon, lat}
	if props == nil {
		props = map[string]any{}
	}
	return Target{ID: id, Geometry: p, Bound: p.Bound(), Properties: props}
}

// SafeName makes a target id usable as a path segment.
func SafeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, id)
}

// CheckSafeNames returns ErrDuplicateID when two distinct ids map to the same
// SafeName, since their outputs would overwrite each other.
func CheckSafeNames(targets []Target) error {
	seen := make(map[string]string, len(targets))
	for _, t := range targets {
		name := SafeName(t.ID)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q and %q both map to %q", ErrDuplicateID, prev, t.ID, name)
		}
		seen[name] = t.ID
	}
	return nil
}
