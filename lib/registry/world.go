package registry

import (
	"errors"
	"fmt"
	"math"

	"github.com/ValentinKolb/nibble/lib/db/util"
	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/lni/dragonboat/v4/logger"
)

var rlog = logger.GetLogger("registry")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a World during creation.
type Options struct {
	InitialCapacity int    // expected number of entities (0 = 1024)
	MaxArenaBytes   uint64 // arena ceiling of every index (0 = index.DefaultMaxArenaBytes)
	OffHeap         bool   // back the indexes with anonymous memory mappings
	Events          bool   // publish lifecycle events, the feed must be drained (see World.Events)
}

// DefaultOptions returns the default World options.
func DefaultOptions() *Options {
	return &Options{
		InitialCapacity: 1024,
		MaxArenaBytes:   index.DefaultMaxArenaBytes,
	}
}

// --------------------------------------------------------------------------
// World
// --------------------------------------------------------------------------

type component struct {
	size int
	data *index.Map // entity id -> payload handle
}

// World stores entities, the components attached to them and the systems
// run by Step. Components and systems are entities themselves and share one
// identifier space with plain entities.
//
// Thread-safety: A World is not safe for concurrent use. Callbacks run by
// Step and Query may modify the world they were called from.
type World struct {
	opts index.Options

	identity   *index.Map // id -> packed Entity
	components *index.Map // component id -> handle into componentData
	systems    *index.Map // system id -> handle into systemData

	componentData slab[*component]
	systemData    slab[*system]
	payloads      slab[[]byte]

	recycle *util.MapHeap // deleted ids, lowest first
	nextID  uint32
	live    [KindSystem + 1]int

	payloadSizes *util.SizeHistogram
	events       *util.LockFreeMPSC[Event]
	closed       bool
}

// New creates an empty World with the given options (optional).
func New(opts *Options) (*World, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	capacity := opts.InitialCapacity
	if capacity <= 0 {
		capacity = 1024
	}

	w := &World{
		opts: index.Options{
			MaxArenaBytes: opts.MaxArenaBytes,
			OffHeap:       opts.OffHeap,
		},
		recycle:      util.NewMapHeap(),
		payloadSizes: util.NewSizeHistogram(),
	}

	var err error
	identityOpts := w.opts
	identityOpts.InitialCapacity = capacity
	if w.identity, err = index.New(&identityOpts); err != nil {
		return nil, fmt.Errorf("registry: identity index: %w", err)
	}
	if w.components, err = w.newIndex(); err != nil {
		_ = w.identity.Close()
		return nil, fmt.Errorf("registry: component index: %w", err)
	}
	if w.systems, err = w.newIndex(); err != nil {
		_ = w.identity.Close()
		_ = w.components.Close()
		return nil, fmt.Errorf("registry: system index: %w", err)
	}
	if opts.Events {
		w.events = util.NewLockFreeMPSC[Event]()
	}
	return w, nil
}

func (w *World) newIndex() (*index.Map, error) {
	opts := w.opts
	return index.New(&opts)
}

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

// create allocates an identifier, lowest recycled id first, and stores the
// live record for it.
func (w *World) create(kind Kind) (Entity, error) {
	if w.closed {
		return Nil, ErrClosed
	}

	var e Entity
	if id, _, ok := w.recycle.Peek(); ok {
		prev, _ := w.identity.Get(id)
		e = pack(uint32(id), Entity(prev).Generation(), true, kind)
	} else {
		if w.nextID == math.MaxUint32 {
			return Nil, ErrExhausted
		}
		e = pack(w.nextID, 0, true, kind)
	}

	if err := w.identity.Set(uint64(e.ID()), uint64(e)); err != nil {
		return Nil, fmt.Errorf("registry: storing %s: %w", e, err)
	}
	if _, _, ok := w.recycle.Peek(); ok {
		w.recycle.PopMin()
	} else {
		w.nextID++
	}
	w.live[kind]++
	return e, nil
}

// Spawn creates a new plain entity.
func (w *World) Spawn() (Entity, error) {
	e, err := w.create(KindEntity)
	if err == nil {
		w.publish(EventSpawn, e, Nil)
	}
	return e, err
}

// IsValid reports whether e refers to a live entity of any kind.
func (w *World) IsValid(e Entity) bool {
	if w.closed || !e.Alive() {
		return false
	}
	record, ok := w.identity.Get(uint64(e.ID()))
	return ok && Entity(record) == e
}

// Kind returns the kind of a live entity.
func (w *World) Kind(e Entity) (Kind, error) {
	if err := w.check(e); err != nil {
		return 0, err
	}
	return e.Kind(), nil
}

func (w *World) check(e Entity) error {
	if w.closed {
		return ErrClosed
	}
	if !w.IsValid(e) {
		return fmt.Errorf("%w: %s", ErrStaleEntity, e)
	}
	return nil
}

func (w *World) checkKind(e Entity, kind Kind) error {
	if err := w.check(e); err != nil {
		return err
	}
	if e.Kind() != kind {
		return fmt.Errorf("%w: %s is not a %s", ErrWrongKind, e, kind)
	}
	return nil
}

// Delete removes a live entity of any kind. Its generation is incremented,
// so every existing handle to it becomes stale, and its id is reused by a
// later Spawn, Component or System.
//
// Deleting a plain entity detaches all of its components. Deleting a
// component detaches it from every entity, systems requiring it match
// nothing from then on. Deleting a system unregisters it.
func (w *World) Delete(e Entity) error {
	if err := w.check(e); err != nil {
		return err
	}

	switch e.Kind() {
	case KindEntity:
		w.detachAll(e)
	case KindComponent:
		w.dropComponent(e)
	case KindSystem:
		if h, ok := w.systems.Delete(uint64(e.ID())); ok {
			w.systemData.release(h)
		}
	}

	dead := pack(e.ID(), e.Generation()+1, false, KindEntity)
	// overwriting the live record never needs a new value cell
	if err := w.identity.Set(uint64(e.ID()), uint64(dead)); err != nil {
		panic("registry: overwriting identity record failed: " + err.Error())
	}
	w.recycle.AddItem(uint64(e.ID()), uint64(e.ID()))
	w.live[e.Kind()]--
	w.publish(EventDelete, e, Nil)
	return nil
}

// detachAll removes every component of a plain entity.
func (w *World) detachAll(e Entity) {
	id := uint64(e.ID())
	var attached []uint64
	for cid, h := range w.components.All() {
		if w.componentData.get(h).data.Has(id) {
			attached = append(attached, cid)
		}
	}
	for _, cid := range attached {
		h, _ := w.components.Get(cid)
		c := w.componentData.get(h)
		if ph, ok := c.data.Delete(id); ok && c.size > 0 {
			w.payloads.release(ph)
		}
		record, _ := w.identity.Get(cid)
		w.publish(EventRemove, e, Entity(record))
	}
}

// dropComponent frees the attribute index of a component and its payloads.
func (w *World) dropComponent(e Entity) {
	h, ok := w.components.Delete(uint64(e.ID()))
	if !ok {
		return
	}
	c := w.componentData.get(h)
	if c.size > 0 {
		for _, ph := range c.data.All() {
			w.payloads.release(ph)
		}
	}
	if err := c.data.Close(); err != nil {
		rlog.Errorf("releasing index of %s: %v", e, err)
	}
	w.componentData.release(h)
}

// --------------------------------------------------------------------------
// Components
// --------------------------------------------------------------------------

// Component registers a component kind whose payload is size bytes.
func (w *World) Component(size int) (Entity, error) {
	if w.closed {
		return Nil, ErrClosed
	}
	if size < 0 {
		return Nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, size)
	}
	data, err := w.newIndex()
	if err != nil {
		return Nil, fmt.Errorf("registry: component index: %w", err)
	}
	h := w.componentData.put(&component{size: size, data: data})

	e, err := w.create(KindComponent)
	if err == nil {
		err = w.components.Set(uint64(e.ID()), h)
		if err != nil {
			w.rollback(e)
		}
	}
	if err != nil {
		w.componentData.release(h)
		_ = data.Close()
		return Nil, err
	}
	rlog.Debugf("registered %s with %d byte payload", e, size)
	return e, nil
}

// Tag registers a component without payload.
func (w *World) Tag() (Entity, error) {
	return w.Component(0)
}

// rollback undoes create for an entity that could not be completed.
func (w *World) rollback(e Entity) {
	dead := pack(e.ID(), e.Generation(), false, KindEntity)
	if err := w.identity.Set(uint64(e.ID()), uint64(dead)); err != nil {
		panic("registry: overwriting identity record failed: " + err.Error())
	}
	w.recycle.AddItem(uint64(e.ID()), uint64(e.ID()))
	w.live[e.Kind()]--
}

// lookup returns the record of a component handle.
func (w *World) lookup(c Entity) (*component, error) {
	if err := w.checkKind(c, KindComponent); err != nil {
		return nil, err
	}
	h, ok := w.components.Get(uint64(c.ID()))
	if !ok {
		panic("registry: live component without record: " + c.String())
	}
	return w.componentData.get(h), nil
}

func (w *World) attachment(e, c Entity) (*component, error) {
	if err := w.checkKind(e, KindEntity); err != nil {
		return nil, err
	}
	return w.lookup(c)
}

// Give attaches component c to entity e and returns its zeroed payload.
// The returned slice aliases the stored payload until the component is
// removed, it is nil for tags.
func (w *World) Give(e, c Entity) ([]byte, error) {
	comp, err := w.attachment(e, c)
	if err != nil {
		return nil, err
	}
	id := uint64(e.ID())
	if comp.data.Has(id) {
		return nil, fmt.Errorf("%w: %s already has %s", ErrAlreadyAttached, e, c)
	}

	var (
		payload []byte
		h       uint64
	)
	if comp.size > 0 {
		payload = make([]byte, comp.size)
		h = w.payloads.put(payload)
	}
	if err := comp.data.Set(id, h); err != nil {
		if comp.size > 0 {
			w.payloads.release(h)
		}
		return nil, fmt.Errorf("registry: attaching %s: %w", c, err)
	}
	w.payloadSizes.AddSample(comp.size)
	w.publish(EventGive, e, c)
	return payload, nil
}

// Has reports whether entity e has component c.
func (w *World) Has(e, c Entity) (bool, error) {
	comp, err := w.attachment(e, c)
	if err != nil {
		return false, err
	}
	return comp.data.Has(uint64(e.ID())), nil
}

// Remove detaches component c from entity e.
func (w *World) Remove(e, c Entity) error {
	comp, err := w.attachment(e, c)
	if err != nil {
		return err
	}
	h, ok := comp.data.Delete(uint64(e.ID()))
	if !ok {
		return fmt.Errorf("%w: %s does not have %s", ErrNotAttached, e, c)
	}
	if comp.size > 0 {
		w.payloads.release(h)
	}
	w.publish(EventRemove, e, c)
	return nil
}

// Get returns the payload of component c on entity e. The slice aliases the
// stored payload.
func (w *World) Get(e, c Entity) ([]byte, error) {
	comp, err := w.attachment(e, c)
	if err != nil {
		return nil, err
	}
	h, ok := comp.data.Get(uint64(e.ID()))
	if !ok {
		return nil, fmt.Errorf("%w: %s does not have %s", ErrNotAttached, e, c)
	}
	if comp.size == 0 {
		return nil, nil
	}
	return w.payloads.get(h), nil
}

// Set copies data into the payload of component c on entity e. data must be
// exactly as long as the component size.
func (w *World) Set(e, c Entity, data []byte) error {
	dst, err := w.Get(e, c)
	if err != nil {
		return err
	}
	if len(data) != len(dst) {
		return fmt.Errorf("%w: got %d bytes, component holds %d", ErrSizeMismatch, len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

// --------------------------------------------------------------------------
// Info & lifecycle
// --------------------------------------------------------------------------

// Info describes the contents and memory of a World.
type Info struct {
	Entities   int                   `json:"entities"`
	Components int                   `json:"components"`
	Systems    int                   `json:"systems"`
	Recyclable int                   `json:"recyclable"`
	Payloads   int                   `json:"payloads"`
	Given      util.HistogramSummary `json:"given"`
	Identity   index.Stats           `json:"identity"`
	ArenaBytes uint64                `json:"arena_bytes"`
}

// Info returns statistics about the world. Given summarizes the payload
// sizes of all Give calls so far.
func (w *World) Info() Info {
	info := Info{
		Entities:   w.live[KindEntity],
		Components: w.live[KindComponent],
		Systems:    w.live[KindSystem],
		Recyclable: w.recycle.Len(),
		Payloads:   w.payloads.len(),
		Given:      w.payloadSizes.Summary(),
		Identity:   w.identity.Stats(),
	}
	info.ArenaBytes = info.Identity.ArenaBytes + w.components.Stats().ArenaBytes + w.systems.Stats().ArenaBytes
	if !w.closed {
		for _, h := range w.components.All() {
			info.ArenaBytes += w.componentData.get(h).data.Stats().ArenaBytes
		}
	}
	return info
}

// Close releases all indexes and closes the event feed. Handles become
// invalid and every further call fails with ErrClosed.
func (w *World) Close() error {
	if w.closed {
		return nil
	}
	var errs []error
	for _, h := range w.components.All() {
		errs = append(errs, w.componentData.get(h).data.Close())
	}
	errs = append(errs, w.identity.Close(), w.components.Close(), w.systems.Close())
	w.componentData = slab[*component]{}
	w.systemData = slab[*system]{}
	w.payloads = slab[[]byte]{}
	w.live = [KindSystem + 1]int{}
	w.closed = true
	if w.events != nil {
		w.events.Close()
	}
	return errors.Join(errs...)
}
