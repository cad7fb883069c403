package registry

import (
	"fmt"
	"slices"
)

// Callback is invoked for every entity matched by a system or query.
type Callback func(e Entity)

// Filter narrows the entities matched by a system or query. A nil Filter
// accepts everything. Filters run while indexes are traversed and must not
// modify the world.
type Filter func(e Entity) bool

type system struct {
	callback   Callback
	filter     Filter
	components []Entity
	enabled    bool
}

// System registers a system that Step runs for every plain entity having all
// of the given components and accepted by filter. New systems are enabled.
func (w *World) System(callback Callback, filter Filter, components ...Entity) (Entity, error) {
	if w.closed {
		return Nil, ErrClosed
	}
	if callback == nil {
		return Nil, fmt.Errorf("registry: system without callback")
	}
	for _, c := range components {
		if err := w.checkKind(c, KindComponent); err != nil {
			return Nil, err
		}
	}

	h := w.systemData.put(&system{
		callback:   callback,
		filter:     filter,
		components: slices.Clone(components),
		enabled:    true,
	})
	e, err := w.create(KindSystem)
	if err == nil {
		if err = w.systems.Set(uint64(e.ID()), h); err != nil {
			w.rollback(e)
		}
	}
	if err != nil {
		w.systemData.release(h)
		return Nil, err
	}
	rlog.Debugf("registered %s over %d components", e, len(components))
	return e, nil
}

func (w *World) systemOf(s Entity) (*system, error) {
	if err := w.checkKind(s, KindSystem); err != nil {
		return nil, err
	}
	h, ok := w.systems.Get(uint64(s.ID()))
	if !ok {
		panic("registry: live system without record: " + s.String())
	}
	return w.systemData.get(h), nil
}

// Enable makes Step run the system again.
func (w *World) Enable(s Entity) error {
	sys, err := w.systemOf(s)
	if err != nil {
		return err
	}
	sys.enabled = true
	return nil
}

// Disable makes Step skip the system.
func (w *World) Disable(s Entity) error {
	sys, err := w.systemOf(s)
	if err != nil {
		return err
	}
	sys.enabled = false
	return nil
}

// Step runs every enabled system once, in ascending system id order. Each
// system matches its entities before its callback runs for the first of
// them, callbacks may therefore modify the world. Entities deleted by an
// earlier callback of the same system are skipped, as are systems deleted or
// disabled by an earlier system.
func (w *World) Step() error {
	if w.closed {
		return ErrClosed
	}

	ids := make([]uint64, 0, w.systems.Len())
	for id := range w.systems.All() {
		ids = append(ids, id)
	}

	for _, id := range ids {
		if w.closed {
			return ErrClosed
		}
		h, ok := w.systems.Get(id)
		if !ok {
			continue
		}
		sys := w.systemData.get(h)
		if !sys.enabled {
			continue
		}
		matched, err := w.match(sys.components, sys.filter)
		if err != nil {
			// a required component was deleted, nothing can match
			continue
		}
		w.run(matched, sys.callback)
	}
	return nil
}

// Find returns the live plain entities that have all of the given
// components and pass filter, in ascending id order.
func (w *World) Find(filter Filter, components ...Entity) ([]Entity, error) {
	if w.closed {
		return nil, ErrClosed
	}
	return w.match(components, filter)
}

// Query calls callback for every entity Find would return.
func (w *World) Query(callback Callback, filter Filter, components ...Entity) error {
	matched, err := w.Find(filter, components...)
	if err != nil {
		return err
	}
	w.run(matched, callback)
	return nil
}

func (w *World) run(matched []Entity, callback Callback) {
	for _, e := range matched {
		if w.IsValid(e) {
			callback(e)
		}
	}
}

// match collects the matching entities. It walks the smallest attribute
// index and probes the others, or the identity index when no component is
// required.
func (w *World) match(components []Entity, filter Filter) ([]Entity, error) {
	comps := make([]*component, len(components))
	for i, c := range components {
		comp, err := w.lookup(c)
		if err != nil {
			return nil, err
		}
		comps[i] = comp
	}

	accept := func(e Entity) bool {
		if !e.Alive() || e.Kind() != KindEntity {
			return false
		}
		for _, comp := range comps {
			if !comp.data.Has(uint64(e.ID())) {
				return false
			}
		}
		return filter == nil || filter(e)
	}

	var out []Entity
	if len(comps) == 0 {
		for _, record := range w.identity.All() {
			if e := Entity(record); accept(e) {
				out = append(out, e)
			}
		}
		return out, nil
	}

	smallest := slices.MinFunc(comps, func(a, b *component) int { return a.data.Len() - b.data.Len() })
	for id := range smallest.data.All() {
		record, _ := w.identity.Get(id)
		if e := Entity(record); accept(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
