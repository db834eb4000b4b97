package qa

import "fmt"

// Registry maps a question class's UUID to its vtable. Two vtables
// sharing a UUID is a programming error, caught at registration time
// rather than left to surface as silent misdispatch later.
type Registry struct {
	vtables map[UUID]QuestionVTable
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{vtables: make(map[UUID]QuestionVTable)}
}

// Register adds vt under its own UUID. It panics if a different
// vtable is already registered under that UUID — this is always a
// programming error (two plugins colliding on an identifier) and
// never something callers should be catching at runtime.
func (r *Registry) Register(vt QuestionVTable) {
	id := vt.UUID()
	if id == NilUUID {
		panic("qa: refusing to register a vtable with the nil UUID")
	}
	if existing, ok := r.vtables[id]; ok && existing != vt {
		panic(fmt.Sprintf("qa: UUID %s already registered to a different vtable", id))
	}
	r.vtables[id] = vt
}

// Lookup returns the vtable registered under id, if any.
func (r *Registry) Lookup(id UUID) (QuestionVTable, bool) {
	vt, ok := r.vtables[id]
	return vt, ok
}

// All returns a snapshot copy of the registered vtable set, suitable
// for passing to Database.RecheckAll.
func (r *Registry) All() map[UUID]QuestionVTable {
	out := make(map[UUID]QuestionVTable, len(r.vtables))
	for id, vt := range r.vtables {
		out[id] = vt
	}
	return out
}
