package schema

import (
	"bytes"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/udpinsert/helpers"
)

// Registry maps Identifier to Schema. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[Identifier]*Schema
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[Identifier]*Schema)}
}

// Add rejects duplicate identifier, existing schema stays registered.
func (r *Registry) Add(s *Schema) error {
	return helpers.WithLockError(&r.mu, func() error {
		if _, ok := r.m[s.id]; ok {
			return errors.Annotatef(ErrConfig, "identifier=%s duplicate", s.id)
		}
		r.m[s.id] = s
		return nil
	})
}

func (r *Registry) AddDescription(d Description) (*Schema, error) {
	s, err := d.Build()
	if err != nil {
		return nil, err
	}
	if err = r.Add(s); err != nil {
		return nil, d.annotate(err)
	}
	return s, nil
}

// AddAll registers each description independently.
// Returned error combines all failed ones, valid schemas are registered regardless.
func (r *Registry) AddAll(ds []Description) error {
	errs := make([]error, 0, len(ds))
	for _, d := range ds {
		_, err := r.AddDescription(d)
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}

func (r *Registry) Get(id Identifier) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.m[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Annotatef(ErrUnknownSchema, "identifier=%s", id)
	}
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Schemas sorted by identifier.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	ss := make([]*Schema, 0, len(r.m))
	for _, s := range r.m {
		ss = append(ss, s)
	}
	r.mu.RUnlock()
	sort.Slice(ss, func(i, j int) bool { return bytes.Compare(ss[i].id[:], ss[j].id[:]) < 0 })
	return ss
}
