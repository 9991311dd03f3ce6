// Package registry implements the device registry (spec.md §4.2): a named,
// typed directory of live driver handles with lookup by capability. The
// RWMutex-guarded map idiom and duplicate-registration error shape are
// carried over from services/hal/internal/registry/registry.go in the
// teacher, generalized from a single builder-factory table to a live handle
// directory.
package registry

import (
	"cmp"
	"slices"
	"sync"

	"github.com/jangala-dev/daqd/internal/capability"
	"github.com/jangala-dev/daqd/internal/daqerr"
)

// Driver is the minimum a registered device must satisfy: an advertised
// capability set plus whichever optional trait interfaces it implements.
// Drivers assert their own traits by implementing the corresponding
// capability.* interface; the registry recovers them with type assertions,
// the only runtime reflection this system performs (spec.md §4.2, §9).
type Driver interface {
	Capabilities() capability.Set
}

// Handle is what the registry hands callers: a stable reference to a
// registered driver plus the metadata needed to answer capability queries
// without re-asserting interfaces at every call site.
type Handle struct {
	ID     string
	Type   string
	Caps   capability.Set
	Config map[string]string

	driver Driver
}

func (h *Handle) AsMovable() (capability.Movable, bool) {
	v, ok := h.driver.(capability.Movable)
	return v, ok && h.Caps.Has(capability.Movable)
}

func (h *Handle) AsReadable() (capability.Readable, bool) {
	v, ok := h.driver.(capability.Readable)
	return v, ok && h.Caps.Has(capability.Readable)
}

func (h *Handle) AsTriggerable() (capability.Triggerable, bool) {
	v, ok := h.driver.(capability.Triggerable)
	return v, ok && h.Caps.Has(capability.Triggerable)
}

func (h *Handle) AsExposureControl() (capability.ExposureControl, bool) {
	v, ok := h.driver.(capability.ExposureControl)
	return v, ok && h.Caps.Has(capability.ExposureControl)
}

func (h *Handle) AsFrameProducer() (capability.FrameProducer, bool) {
	v, ok := h.driver.(capability.FrameProducer)
	return v, ok && h.Caps.Has(capability.FrameProducer)
}

func (h *Handle) AsSettable() (capability.Settable, bool) {
	v, ok := h.driver.(capability.Settable)
	return v, ok && h.Caps.Has(capability.Settable)
}

func (h *Handle) AsSwitchable() (capability.Switchable, bool) {
	v, ok := h.driver.(capability.Switchable)
	return v, ok && h.Caps.Has(capability.Switchable)
}

func (h *Handle) AsParameterized() (capability.Parameterized, bool) {
	v, ok := h.driver.(capability.Parameterized)
	return v, ok && h.Caps.Has(capability.Parameterized)
}

// entry pairs a handle with the components that registered an interest in
// the device (its dependents), so
// Remove can refuse to tear it down out from under them unless forced.
type entry struct {
	handle     *Handle
	dependents map[string]struct{}
}

// Registry is the process-wide device directory.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*entry
}

func New() *Registry {
	return &Registry{devices: map[string]*entry{}}
}

// Register adds a driver under id, failing with AlreadyExists if the id is
// already taken (spec.md §4.2).
func (r *Registry) Register(id, typ string, driver Driver, config map[string]string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; exists {
		return nil, daqerr.New(daqerr.AlreadyExists, "registry.Register", "device id "+id+" already registered")
	}
	h := &Handle{ID: id, Type: typ, Caps: driver.Capabilities(), Config: config, driver: driver}
	r.devices[id] = &entry{handle: h, dependents: map[string]struct{}{}}
	return h, nil
}

// Lookup returns the handle for id, or NotFound.
func (r *Registry) Lookup(id string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.devices[id]
	if !ok {
		return nil, daqerr.New(daqerr.NotFound, "registry.Lookup", "no device with id "+id)
	}
	return e.handle, nil
}

// AddDependent records that owner depends on device id, making Remove(id,
// force=false) fail until every dependent is released.
func (r *Registry) AddDependent(id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[id]
	if !ok {
		return daqerr.New(daqerr.NotFound, "registry.AddDependent", "no device with id "+id)
	}
	e.dependents[owner] = struct{}{}
	return nil
}

// RemoveDependent releases a previously recorded dependency.
func (r *Registry) RemoveDependent(id, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.devices[id]; ok {
		delete(e.dependents, owner)
	}
}

// List enumerates every registered device, sorted by id for deterministic
// RPC responses.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, e.handle)
	}
	slices.SortFunc(out, func(a, b *Handle) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// ListByCapability enumerates registered devices advertising cap.
func (r *Registry) ListByCapability(cap capability.Set) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, 0)
	for _, e := range r.devices {
		if e.handle.Caps.Has(cap) {
			out = append(out, e.handle)
		}
	}
	slices.SortFunc(out, func(a, b *Handle) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Remove unregisters id. It fails if other components depend on it unless
// force is set (spec.md §4.2).
func (r *Registry) Remove(id string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[id]
	if !ok {
		return daqerr.New(daqerr.NotFound, "registry.Remove", "no device with id "+id)
	}
	if !force && len(e.dependents) > 0 {
		return daqerr.New(daqerr.InvalidArgument, "registry.Remove", "device "+id+" has active dependents")
	}
	delete(r.devices, id)
	return nil
}
