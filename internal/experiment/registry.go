package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/cestsim/internal/propagator"
)

// Registry resolves propagator strategies by name.
type Registry struct {
	propagators map[string]func() propagator.Propagator
}

func NewRegistry() *Registry {
	r := &Registry{
		propagators: make(map[string]func() propagator.Propagator),
	}

	r.propagators["eigen"] = func() propagator.Propagator { return propagator.NewEigen() }
	r.propagators["pade"] = func() propagator.Propagator { return propagator.NewPade() }
	r.propagators["rk45"] = func() propagator.Propagator { return propagator.NewRK45() }

	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(name string, fn func() propagator.Propagator) {
	r.propagators[name] = fn
}

func (r *Registry) GetPropagator(name string) (propagator.Propagator, error) {
	fn, ok := r.propagators[name]
	if !ok {
		return nil, fmt.Errorf("unknown propagator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListPropagators() []string {
	names := make([]string, 0, len(r.propagators))
	for name := range r.propagators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
