package network

import (
	"bytes"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultManifest []byte

// Manifest is the YAML representation of the registry.
type Manifest struct {
	Networks []Entry `yaml:"networks"`
}

// Registry is a read-only lookup of network entries by id.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry validates entries and builds a registry from them. Duplicate ids are rejected.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("network %q: %w", e.ID, err)
		}
		if _, dup := r.entries[e.ID]; dup {
			return nil, fmt.Errorf("network %q: duplicate id", e.ID)
		}
		r.entries[e.ID] = e
	}

	return r, nil
}

// Default returns the built-in registry of known factory deployments.
func Default() (*Registry, error) {
	return decode(defaultManifest)
}

// Load reads manifest files and merges them on top of each other. Entries of later files
// replace entries with the same id from earlier files.
func Load(filePaths ...string) (*Registry, error) {
	merged := &Registry{entries: map[string]Entry{}}
	for _, path := range filePaths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read network manifest %s: %w", path, err)
		}

		r, err := decode(b)
		if err != nil {
			return nil, fmt.Errorf("failed to load network manifest %s: %w", path, err)
		}
		merged.Merge(r)
	}

	return merged, nil
}

// LoadOverDefault returns the built-in registry with the manifest files merged on top.
func LoadOverDefault(filePaths ...string) (*Registry, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	if len(filePaths) == 0 {
		return r, nil
	}

	overrides, err := Load(filePaths...)
	if err != nil {
		return nil, err
	}
	r.Merge(overrides)

	return r, nil
}

func decode(b []byte) (*Registry, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}

	return NewRegistry(m.Networks)
}

// Merge copies the entries of other into r, replacing entries with the same id.
func (r *Registry) Merge(other *Registry) {
	maps.Copy(r.entries, other.entries)
}

// Entry returns the entry for id. It fails with ErrUnknownNetwork when id is absent.
func (r *Registry) Entry(id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, id)
	}
	e.RPCs = slices.Clone(e.RPCs)

	return e, nil
}

// Resolve returns the factory address of network id. It fails with ErrUnknownNetwork when the id
// is absent and with ErrFactoryUnavailable when the network has no factory, so that "never
// configured" and "not rolled out yet" stay distinguishable. Resolve never mutates the registry.
func (r *Registry) Resolve(id string) (common.Address, error) {
	e, err := r.Entry(id)
	if err != nil {
		return common.Address{}, err
	}
	if !e.Deployable() {
		return common.Address{}, fmt.Errorf("%w: network %q has no factory address", ErrFactoryUnavailable, id)
	}

	return e.factoryAddress(), nil
}

// IDs returns all network ids in sorted order.
func (r *Registry) IDs() []string {
	return slices.Sorted(maps.Keys(r.entries))
}

// Deployable returns the sorted ids of networks that have a factory.
func (r *Registry) Deployable() []string {
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.Deployable() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids
}
