package queue

import "fmt"

// Factory builds a Queue of the given capacity. Registered under a class
// name in a Registry and resolved at config-load time (spec §4.7).
type Factory func(size int) Queue

// Registry resolves a config-file "class" name to a Factory. Unknown names
// fail construction, per spec §4.7.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the built-in
// "BoundedQueue" class.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("BoundedQueue", func(size int) Queue { return NewBoundedQueue(size) })
	return r
}

// Register adds or replaces the factory for a class name.
func (r *Registry) Register(class string, f Factory) {
	r.factories[class] = f
}

// Resolve looks up class and returns its Factory, or an error naming the
// unresolved class.
func (r *Registry) Resolve(class string) (Factory, error) {
	f, ok := r.factories[class]
	if !ok {
		return nil, fmt.Errorf("queue: unknown class %q", class)
	}
	return f, nil
}
