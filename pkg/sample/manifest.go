package sample

import (
	"fmt"
	"sync/atomic"

	"github.com/nucleus/lightpipe/pkg/raster"
)

// manifestSeq numbers manifests created without an explicit UID.
var manifestSeq atomic.Int64

// Dataset is a raster source: either a path opened on demand or an
// already-decoded raster.
type Dataset struct {
	Path   string
	Raster *raster.Raster
}

// FromPath returns a lazily opened dataset.
func FromPath(path string) Dataset { return Dataset{Path: path} }

// FromRaster wraps an in-memory raster.
func FromRaster(r *raster.Raster) Dataset { return Dataset{Raster: r} }

// Open returns the raster, reading it from Path on first use.
func (d *Dataset) Open() (*raster.Raster, error) {
	if d.Raster != nil {
		return d.Raster, nil
	}
	if d.Path == "" {
		return nil, fmt.Errorf("sample: dataset has neither path nor raster")
	}
	r, err := raster.Read(d.Path)
	if err != nil {
		return nil, err
	}
	d.Raster = r
	return r, nil
}

// Manifest groups the datasets of one sample. Labels[i] and Metadata[i]
// describe Datasets[i].
type Manifest struct {
	UID      string
	Datasets []Dataset
	Labels   []bool
	Metadata []map[string]any
}

// NewManifest builds a manifest. An empty uid is replaced by "sample_%05d"
// from a process-wide counter; nil labels default to all false and nil
// metadata to empty maps.
func NewManifest(uid string, datasets []Dataset, labels []bool, metadata []map[string]any) (*Manifest, error) {
	if uid == "" {
		uid = fmt.Sprintf("sample_%05d", manifestSeq.Add(1)-1)
	}
	if labels == nil {
		labels = make([]bool, len(datasets))
	}
	if metadata == nil {
		metadata = make([]map[string]any, len(datasets))
	}
	for i := range metadata {
		if metadata[i] == nil {
			metadata[i] = map[string]any{}
		}
	}
	m := &Manifest{UID: uid, Datasets: datasets, Labels: labels, Metadata: metadata}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of datasets.
func (m *Manifest) Len() int { return len(m.Datasets) }

// Concat returns a new manifest holding m's datasets followed by those of
// others. m is not modified.
func (m *Manifest) Concat(uid string, others ...*Manifest) (*Manifest, error) {
	datasets := append([]Dataset(nil), m.Datasets...)
	labels := append([]bool(nil), m.Labels...)
	metadata := append([]map[string]any(nil), m.Metadata...)
	for _, o := range others {
		if o == nil {
			continue
		}
		datasets = append(datasets, o.Datasets...)
		labels = append(labels, o.Labels...)
		metadata = append(metadata, o.Metadata...)
	}
	return NewManifest(uid, datasets, labels, metadata)
}

func (m *Manifest) validate() error {
	if len(m.Labels) != len(m.Datasets) {
		return fmt.Errorf("sample %s: %d labels for %d datasets", m.UID, len(m.Labels), len(m.Datasets))
	}
	if len(m.Metadata) != len(m.Datasets) {
		return fmt.Errorf("sample %s: %d metadata entries for %d datasets", m.UID, len(m.Metadata), len(m.Datasets))
	}
	return nil
}
