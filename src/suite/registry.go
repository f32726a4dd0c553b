package suite

import (
	"fmt"
	"sync"
)

// TestID identifies a descriptor independently of its position.
type TestID string

// Param is a bounded integer tunable.
type Param struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Value int `json:"value"`
}

func (p Param) clamp(v int) int {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Descriptor is one entry of the registry.
type Descriptor struct {
	ID      TestID `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Param   *Param `json:"parameter,omitempty"`
	Test    Test   `json:"-"`
}

// ParamValue is the value handed to Evaluate.
func (d Descriptor) ParamValue() int {
	if d.Param == nil {
		return 0
	}
	return d.Param.Value
}

// Registry is the ordered set of descriptors. Presentation code edits it
// between runs; the pipeline works on a Snapshot taken at run start.
type Registry struct {
	mu    sync.RWMutex
	descs []Descriptor
	index map[TestID]int
}

func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{index: make(map[TestID]int, len(descs))}
	for _, d := range descs {
		if d.Test == nil {
			return nil, fmt.Errorf("test %q has no implementation", d.ID)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate test id %q", d.ID)
		}
		if d.Param != nil {
			if d.Param.Min > d.Param.Max {
				return nil, fmt.Errorf("test %q: parameter range [%d, %d] is empty", d.ID, d.Param.Min, d.Param.Max)
			}
			p := *d.Param
			p.Value = p.clamp(p.Value)
			d.Param = &p
		}
		r.index[d.ID] = len(r.descs)
		r.descs = append(r.descs, d)
	}
	return r, nil
}

// Snapshot returns a deep copy of the descriptors in registry order.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.descs))
	for i, d := range r.descs {
		if d.Param != nil {
			p := *d.Param
			d.Param = &p
		}
		out[i] = d
	}
	return out
}

func (r *Registry) Lookup(id TestID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Descriptor{}, false
	}
	d := r.descs[i]
	if d.Param != nil {
		p := *d.Param
		d.Param = &p
	}
	return d, true
}

func (r *Registry) SetEnabled(id TestID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("unknown test %q", id)
	}
	r.descs[i].Enabled = enabled
	return nil
}

// SetAllEnabled toggles every descriptor.
func (r *Registry) SetAllEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.descs {
		r.descs[i].Enabled = enabled
	}
}

// SetParam sets the parameter of a test, clamped into its range, and returns
// the value actually stored.
func (r *Registry) SetParam(id TestID, value int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return 0, fmt.Errorf("unknown test %q", id)
	}
	p := r.descs[i].Param
	if p == nil {
		return 0, fmt.Errorf("test %q takes no parameter", id)
	}
	p.Value = p.clamp(value)
	return p.Value, nil
}

// Enabled counts enabled descriptors.
func (r *Registry) Enabled() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, d := range r.descs {
		if d.Enabled {
			n++
		}
	}
	return n
}
