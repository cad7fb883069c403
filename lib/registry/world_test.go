package registry

import (
	"testing"

	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/stretchr/testify/require"
)

func newTestWorld(t *testing.T, opts *Options) *World {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func spawn(t *testing.T, w *World) Entity {
	t.Helper()
	e, err := w.Spawn()
	require.NoError(t, err)
	return e
}

func TestSpawnAndDelete(t *testing.T) {
	w := newTestWorld(t, nil)

	a, b, c := spawn(t, w), spawn(t, w), spawn(t, w)
	require.Equal(t, []uint32{0, 1, 2}, []uint32{a.ID(), b.ID(), c.ID()})
	for _, e := range []Entity{a, b, c} {
		require.True(t, w.IsValid(e))
		kind, err := w.Kind(e)
		require.NoError(t, err)
		require.Equal(t, KindEntity, kind)
	}

	require.NoError(t, w.Delete(c))
	require.NoError(t, w.Delete(a))
	require.False(t, w.IsValid(a))
	require.False(t, w.IsValid(c))
	require.ErrorIs(t, w.Delete(a), ErrStaleEntity)
	_, err := w.Kind(a)
	require.ErrorIs(t, err, ErrStaleEntity)

	// lowest free id first, generation bumped
	d := spawn(t, w)
	require.Equal(t, uint32(0), d.ID())
	require.Equal(t, uint16(1), d.Generation())
	require.False(t, w.IsValid(a), "old handle must stay stale after reuse")

	e := spawn(t, w)
	require.Equal(t, uint32(2), e.ID())
	f := spawn(t, w)
	require.Equal(t, uint32(3), f.ID())

	require.False(t, w.IsValid(Nil))
	require.Equal(t, 4, w.Info().Entities)
}

func TestGenerationsAccumulate(t *testing.T) {
	w := newTestWorld(t, nil)

	var e Entity
	for i := 0; i < 5; i++ {
		e = spawn(t, w)
		require.NoError(t, w.Delete(e))
	}
	require.Equal(t, uint32(0), e.ID())
	require.Equal(t, uint16(4), e.Generation())
	require.Equal(t, uint16(5), spawn(t, w).Generation())
}

func TestComponents(t *testing.T) {
	w := newTestWorld(t, nil)

	pos, err := w.Component(8)
	require.NoError(t, err)
	kind, err := w.Kind(pos)
	require.NoError(t, err)
	require.Equal(t, KindComponent, kind)

	e := spawn(t, w)
	has, err := w.Has(e, pos)
	require.NoError(t, err)
	require.False(t, has)

	payload, err := w.Give(e, pos)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), payload)
	payload[0] = 7

	got, err := w.Get(e, pos)
	require.NoError(t, err)
	require.Equal(t, byte(7), got[0])

	require.NoError(t, w.Set(e, pos, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	got, _ = w.Get(e, pos)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
	require.ErrorIs(t, w.Set(e, pos, []byte{1}), ErrSizeMismatch)

	_, err = w.Give(e, pos)
	require.ErrorIs(t, err, ErrAlreadyAttached)

	require.NoError(t, w.Remove(e, pos))
	require.ErrorIs(t, w.Remove(e, pos), ErrNotAttached)
	_, err = w.Get(e, pos)
	require.ErrorIs(t, err, ErrNotAttached)
	require.Zero(t, w.Info().Payloads)
}

func TestWrongKinds(t *testing.T) {
	w := newTestWorld(t, nil)

	pos, err := w.Component(4)
	require.NoError(t, err)
	e := spawn(t, w)

	_, err = w.Give(pos, pos)
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = w.Give(e, e)
	require.ErrorIs(t, err, ErrWrongKind)

	sys, err := w.System(func(Entity) {}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, w.Disable(e), ErrWrongKind)
	require.NoError(t, w.Disable(sys))

	_, err = w.System(func(Entity) {}, nil, e)
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = w.Component(-1)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestTags(t *testing.T) {
	w := newTestWorld(t, nil)

	tag, err := w.Tag()
	require.NoError(t, err)
	e := spawn(t, w)

	payload, err := w.Give(e, tag)
	require.NoError(t, err)
	require.Nil(t, payload)

	has, err := w.Has(e, tag)
	require.NoError(t, err)
	require.True(t, has)
	require.NoError(t, w.Set(e, tag, nil))
	require.Zero(t, w.Info().Payloads)
}

func TestDeleteDetachesComponents(t *testing.T) {
	w := newTestWorld(t, nil)

	pos, _ := w.Component(8)
	vel, _ := w.Component(8)
	e := spawn(t, w)
	_, err := w.Give(e, pos)
	require.NoError(t, err)
	_, err = w.Give(e, vel)
	require.NoError(t, err)
	require.Equal(t, 2, w.Info().Payloads)

	require.NoError(t, w.Delete(e))
	require.Zero(t, w.Info().Payloads)

	// the recycled id starts without components
	reused := spawn(t, w)
	require.Equal(t, e.ID(), reused.ID())
	has, err := w.Has(reused, pos)
	require.NoError(t, err)
	require.False(t, has)
}

func TestDeleteComponent(t *testing.T) {
	w := newTestWorld(t, nil)

	pos, _ := w.Component(8)
	entities := make([]Entity, 10)
	for i := range entities {
		entities[i] = spawn(t, w)
		_, err := w.Give(entities[i], pos)
		require.NoError(t, err)
	}

	require.NoError(t, w.Delete(pos))
	require.Zero(t, w.Info().Payloads)
	require.Zero(t, w.Info().Components)
	_, err := w.Has(entities[0], pos)
	require.ErrorIs(t, err, ErrStaleEntity)
	_, err = w.Find(nil, pos)
	require.ErrorIs(t, err, ErrStaleEntity)
}

func TestManyEntities(t *testing.T) {
	w := newTestWorld(t, &Options{InitialCapacity: 16})

	mass, _ := w.Component(8)
	var live []Entity
	for i := 0; i < 20_000; i++ {
		e := spawn(t, w)
		if i%3 == 0 {
			_, err := w.Give(e, mass)
			require.NoError(t, err)
		}
		live = append(live, e)
	}
	for i := 0; i < len(live); i += 2 {
		require.NoError(t, w.Delete(live[i]))
	}

	info := w.Info()
	require.Equal(t, 10_000, info.Entities)
	require.Equal(t, 10_000, info.Recyclable)
	require.Equal(t, int64(6667), info.Given.Count)
	require.Positive(t, info.ArenaBytes)

	found, err := w.Find(nil, mass)
	require.NoError(t, err)
	for i, e := range found {
		require.True(t, w.IsValid(e))
		// entity i got id i+1, the component took id 0
		require.Equal(t, uint32(1), e.ID()%3)
		require.Zero(t, e.ID()%2)
		if i > 0 {
			require.Less(t, found[i-1].ID(), e.ID())
		}
	}
	require.Len(t, found, 3333)
}

func TestArenaCeiling(t *testing.T) {
	w := newTestWorld(t, &Options{InitialCapacity: 8, MaxArenaBytes: 16 << 10})

	var err error
	n := 0
	for ; n < 100_000; n++ {
		if _, err = w.Spawn(); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, index.ErrArenaFull)
	require.Equal(t, n, w.Info().Entities)
}

func TestClose(t *testing.T) {
	w, err := New(nil)
	require.NoError(t, err)
	e := spawn(t, w)
	pos, _ := w.Component(4)

	require.NoError(t, w.Close())
	require.False(t, w.IsValid(e))
	_, err = w.Spawn()
	require.ErrorIs(t, err, ErrClosed)
	_, err = w.Component(4)
	require.ErrorIs(t, err, ErrClosed)
	_, err = w.Give(e, pos)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, w.Step(), ErrClosed)
	require.NoError(t, w.Close())
}
