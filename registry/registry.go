// Package registry maps service names to their dispatchers.
//
// A Registry has two phases. While building, services are added one by one;
// Freeze then produces an immutable Frozen handle that the server shares
// across all connection goroutines. Freezing up front means lookups never
// take a lock — the map is read-only for the rest of the process lifetime.
package registry

import (
	"fmt"

	"stubrpc"
)

// Registry is the mutable, build-phase collection of services.
type Registry struct {
	services map[string]stubrpc.Dispatcher
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{services: make(map[string]stubrpc.Dispatcher)}
}

// Add registers d under its wire name. Registering two services with the
// same name is a configuration mistake and fails immediately rather than
// letting the second silently shadow the first.
func (r *Registry) Add(d stubrpc.Dispatcher) error {
	name := d.Name()
	if _, ok := r.services[name]; ok {
		return fmt.Errorf("registry: service %q already registered", name)
	}
	r.services[name] = d
	return nil
}

// Freeze converts the registry into its immutable, sharable form. The
// builder must not be used afterwards.
func (r *Registry) Freeze() *Frozen {
	services := make(map[string]stubrpc.Dispatcher, len(r.services))
	for name, d := range r.services {
		services[name] = d
	}
	return &Frozen{services: services}
}

// Frozen is the read-only registry shared by all connection goroutines.
type Frozen struct {
	services map[string]stubrpc.Dispatcher
}

// Query looks up a dispatcher by exact service name.
func (f *Frozen) Query(name string) (stubrpc.Dispatcher, bool) {
	d, ok := f.services[name]
	return d, ok
}

// Names returns the registered service names, for startup logging.
func (f *Frozen) Names() []string {
	names := make([]string, 0, len(f.services))
	for name := range f.services {
		names = append(names, name)
	}
	return names
}
