// Package registry implements an entity registry on top of lib/index.
//
// A World hands out Entity handles. A handle packs a 32 bit id with a
// generation counter, a liveness flag and a kind, and the identity index
// maps every id ever issued to the packed record currently valid for it.
// Deleting an entity bumps the generation, so old handles fail with
// ErrStaleEntity even after the id has been reused. Freed ids are reused
// lowest first.
//
// Components are entities too. Each one owns an attribute index from entity
// id to a handle of its payload, a byte slice of the size the component was
// registered with (tags have no payload). Systems are entities that Step runs
// over every plain entity having a given set of components.
//
//	w, _ := registry.New(nil)
//	defer w.Close()
//
//	position, _ := w.Component(16)
//	e, _ := w.Spawn()
//	payload, _ := w.Give(e, position)
//	binary.LittleEndian.PutUint64(payload, 42)
//
//	w.System(func(e registry.Entity) {
//		p, _ := w.Get(e, position)
//		fmt.Println(e, binary.LittleEndian.Uint64(p))
//	}, nil, position)
//	w.Step()
//
// With Options.Events set, spawn, delete, give and remove are published on
// a lock-free queue and can be consumed from World.Events by one observer
// goroutine.
package registry
