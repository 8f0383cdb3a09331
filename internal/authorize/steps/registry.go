package steps

import (
	"fmt"
	"slices"
)

// RetrievalFactory builds a retrieval step from its dependencies.
type RetrievalFactory func(Deps) (RetrievalStep, error)

// PersistFactory builds a persist step from its dependencies.
type PersistFactory func(Deps) (PersistStep, error)

// Registry resolves configured step names to factories. It is filled once at
// start-up and read-only afterwards.
type Registry struct {
	retrieval map[string]RetrievalFactory
	persist   map[string]PersistFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		retrieval: make(map[string]RetrievalFactory),
		persist:   make(map[string]PersistFactory),
	}
}

// DefaultRegistry returns a registry holding the built-in steps.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterRetrieval(StepConsentDetails, NewConsentDetailsStep)
	r.RegisterRetrieval(StepAccountList, NewAccountListStep)
	r.RegisterPersist(StepDefaultPersist, NewDefaultPersistStep)
	return r
}

// RegisterRetrieval adds a retrieval step. A later registration replaces an earlier one.
func (r *Registry) RegisterRetrieval(name string, f RetrievalFactory) {
	r.retrieval[name] = f
}

// RegisterPersist adds a persist step. A later registration replaces an earlier one.
func (r *Registry) RegisterPersist(name string, f PersistFactory) {
	r.persist[name] = f
}

func (r *Registry) retrievalStep(name string, deps Deps) (RetrievalStep, error) {
	f, ok := r.retrieval[name]
	if !ok {
		if _, other := r.persist[name]; other {
			return nil, fmt.Errorf("step %q is not a retrieval step", name)
		}
		return nil, fmt.Errorf("unknown step %q", name)
	}
	step, err := f(deps)
	if err != nil {
		return nil, fmt.Errorf("build step %q: %w", name, err)
	}
	return step, nil
}

func (r *Registry) persistStep(name string, deps Deps) (PersistStep, error) {
	f, ok := r.persist[name]
	if !ok {
		if _, other := r.retrieval[name]; other {
			return nil, fmt.Errorf("step %q is not a persist step", name)
		}
		return nil, fmt.Errorf("unknown step %q", name)
	}
	step, err := f(deps)
	if err != nil {
		return nil, fmt.Errorf("build step %q: %w", name, err)
	}
	return step, nil
}

// Names lists the registered step names per phase, sorted.
func (r *Registry) Names() (retrieval, persist []string) {
	for name := range r.retrieval {
		retrieval = append(retrieval, name)
	}
	for name := range r.persist {
		persist = append(persist, name)
	}
	slices.Sort(retrieval)
	slices.Sort(persist)
	return retrieval, persist
}
