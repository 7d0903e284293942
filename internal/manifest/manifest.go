// Package manifest is the sample manifest exchanged between get-imagery and
// prepare-samples. Documents are JSON; YAML is accepted on read.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the document version written by this package.
const Version = 1

var ErrSampleNotFound = errors.New("manifest: sample not found")

// Document lists the samples of one imagery run.
type Document struct {
	Version   int       `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Bucket    string    `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string    `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Samples   []Sample  `json:"samples" yaml:"samples"`
}

// Sample is a set of co-registered datasets tiled together.
type Sample struct {
	UID      string    `json:"uid" yaml:"uid"`
	Target   string    `json:"target,omitempty" yaml:"target,omitempty"`
	Datasets []Dataset `json:"datasets" yaml:"datasets"`
}

// Dataset is one raster object in the bucket.
type Dataset struct {
	Key      string         `json:"key" yaml:"key"`
	Label    bool           `json:"label,omitempty" yaml:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Parse decodes a JSON or YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		if yerr := yaml.Unmarshal(data, &doc); yerr != nil {
			return nil, fmt.Errorf("parse manifest: %w", yerr)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode returns the indented JSON form of d.
func (d *Document) Encode() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Validate checks uids are present and unique and every sample has datasets.
func (d *Document) Validate() error {
	if d.Version > Version {
		return fmt.Errorf("manifest: unsupported version %d", d.Version)
	}
	seen := map[string]bool{}
	for i, s := range d.Samples {
		if s.UID == "" {
			return fmt.Errorf("manifest: sample %d has no uid", i)
		}
		if seen[s.UID] {
			return fmt.Errorf("manifest: duplicate sample uid %q", s.UID)
		}
		seen[s.UID] = true
		if len(s.Datasets) == 0 {
			return fmt.Errorf("manifest: sample %q has no datasets", s.UID)
		}
		for j, ds := range s.Datasets {
			if ds.Key == "" {
				return fmt.Errorf("manifest: sample %q dataset %d has no key", s.UID, j)
			}
		}
	}
	return nil
}

// Select returns the sample with uid, or every sample when uid is empty.
func (d *Document) Select(uid string) ([]Sample, error) {
	if uid == "" {
		return d.Samples, nil
	}
	for _, s := range d.Samples {
		if s.UID == uid {
			return []Sample{s}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSampleNotFound, uid)
}

// HasLabels reports whether any dataset is marked as label data.
func (s Sample) HasLabels() bool {
	for _, ds := range s.Datasets {
		if ds.Label {
			return true
		}
	}
	return false
}
