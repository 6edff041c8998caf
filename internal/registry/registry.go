package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ppiankov/corroborate/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateSource is returned when two records share an id
var ErrDuplicateSource = errors.New("duplicate source id")

// Registry is the static table of news sources
type Registry struct {
	sources          map[string]model.SourceRecord
	holders          map[string]map[string]struct{}
	order            []string
	maxSharedHolders int
}

// File is the on-disk layout of the sources file
type File struct {
	Sources []model.SourceRecord `yaml:"sources"`
}

// New builds a registry. maxSharedHolders is the number of shared
// institutional holders at which two sources count as related.
func New(records []model.SourceRecord, maxSharedHolders int) (*Registry, error) {
	r := &Registry{
		sources:          make(map[string]model.SourceRecord, len(records)),
		holders:          make(map[string]map[string]struct{}, len(records)),
		order:            make([]string, 0, len(records)),
		maxSharedHolders: maxSharedHolders,
	}

	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("source %q has no id", rec.Name)
		}
		if _, exists := r.sources[rec.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, rec.ID)
		}
		r.sources[rec.ID] = rec
		r.holders[rec.ID] = rec.HolderNames()
		r.order = append(r.order, rec.ID)
	}

	return r, nil
}

// Load reads a YAML sources file
func Load(path string, maxSharedHolders int) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	return New(f.Sources, maxSharedHolders)
}

// Get returns the record for id
func (r *Registry) Get(id string) (model.SourceRecord, bool) {
	rec, ok := r.sources[id]
	return rec, ok
}

// Sources returns all records in file order
func (r *Registry) Sources() []model.SourceRecord {
	out := make([]model.SourceRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// Len returns the number of sources
func (r *Registry) Len() int {
	return len(r.order)
}

// Unrelated reports whether two sources are independent enough to
// corroborate each other. Unknown ids fail closed.
func (r *Registry) Unrelated(a, b string) bool {
	s1, ok1 := r.sources[a]
	s2, ok2 := r.sources[b]
	if !ok1 || !ok2 {
		return false
	}

	if s1.Owner == s2.Owner {
		return false
	}

	return len(r.SharedHolders(a, b)) < r.maxSharedHolders
}

// SharedHolders returns the sorted institutional holders common to both sources
func (r *Registry) SharedHolders(a, b string) []string {
	h1, h2 := r.holders[a], r.holders[b]
	if len(h2) < len(h1) {
		h1, h2 = h2, h1
	}

	var shared []string
	for name := range h1 {
		if _, ok := h2[name]; ok {
			shared = append(shared, name)
		}
	}
	sort.Strings(shared)
	return shared
}
