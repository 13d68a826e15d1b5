package workflow

import (
	"fmt"
	"sort"
)

// Registry looks up workflow definitions by request type. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	definitions map[string]*Definition
}

// NewRegistry creates a registry from definitions; request types must be unique
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{definitions: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if d == nil {
			continue
		}
		if _, dup := r.definitions[d.RequestType]; dup {
			return nil, fmt.Errorf("duplicate workflow definition for %s", d.RequestType)
		}
		r.definitions[d.RequestType] = d
	}
	return r, nil
}

// Get returns a copy of the ordered stages for a request type
func (r *Registry) Get(requestType string) ([]Stage, error) {
	d, err := r.Definition(requestType)
	if err != nil {
		return nil, err
	}
	return append([]Stage(nil), d.Stages...), nil
}

// Definition returns the definition for a request type
func (r *Registry) Definition(requestType string) (*Definition, error) {
	d, ok := r.definitions[requestType]
	if !ok || len(d.Stages) == 0 {
		return nil, NewError(KindNotFound, "registry.get", "", "unknown request type %q", requestType)
	}
	return d, nil
}

// Types returns the registered request types in lexical order
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
