package registry

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStepRunsSystemsInOrder(t *testing.T) {
	w := newTestWorld(t, nil)

	pos, _ := w.Component(8)
	vel, _ := w.Component(8)

	moving := spawn(t, w)
	still := spawn(t, w)
	for _, e := range []Entity{moving, still} {
		_, err := w.Give(e, pos)
		require.NoError(t, err)
	}
	_, err := w.Give(moving, vel)
	require.NoError(t, err)
	require.NoError(t, w.Set(moving, vel, binary.LittleEndian.AppendUint64(nil, 3)))

	var trace []string
	_, err = w.System(func(e Entity) {
		trace = append(trace, "move")
		p, _ := w.Get(e, pos)
		v, _ := w.Get(e, vel)
		binary.LittleEndian.PutUint64(p, binary.LittleEndian.Uint64(p)+binary.LittleEndian.Uint64(v))
	}, nil, pos, vel)
	require.NoError(t, err)

	counted := 0
	counter, err := w.System(func(Entity) {
		trace = append(trace, "count")
		counted++
	}, nil, pos)
	require.NoError(t, err)

	require.NoError(t, w.Step())
	require.NoError(t, w.Step())
	require.Equal(t, []string{"move", "count", "count", "move", "count", "count"}, trace)

	p, _ := w.Get(moving, pos)
	require.Equal(t, uint64(6), binary.LittleEndian.Uint64(p))
	p, _ = w.Get(still, pos)
	require.Zero(t, binary.LittleEndian.Uint64(p))

	require.NoError(t, w.Disable(counter))
	require.NoError(t, w.Step())
	require.Equal(t, 4, counted)
	require.NoError(t, w.Enable(counter))
	require.NoError(t, w.Step())
	require.Equal(t, 6, counted)
}

func TestSystemFilter(t *testing.T) {
	w := newTestWorld(t, nil)

	var seen []uint32
	_, err := w.System(func(e Entity) {
		seen = append(seen, e.ID())
	}, func(e Entity) bool {
		return e.ID()%2 == 0
	})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		spawn(t, w)
	}
	require.NoError(t, w.Step())
	// the system itself holds id 0 and is not a plain entity
	require.Equal(t, []uint32{2, 4, 6}, seen)
}

func TestCallbacksMayModifyTheWorld(t *testing.T) {
	w := newTestWorld(t, nil)

	doomed, _ := w.Tag()
	var victims []Entity
	for i := 0; i < 10; i++ {
		e := spawn(t, w)
		_, err := w.Give(e, doomed)
		require.NoError(t, err)
		victims = append(victims, e)
	}

	calls := 0
	_, err := w.System(func(e Entity) {
		calls++
		// delete this entity and the next one, then spawn a replacement
		require.NoError(t, w.Delete(e))
		next := Entity(0)
		for i, v := range victims {
			if v == e && i+1 < len(victims) {
				next = victims[i+1]
			}
		}
		if next != 0 && w.IsValid(next) {
			require.NoError(t, w.Delete(next))
		}
		_, err := w.Spawn()
		require.NoError(t, err)
	}, nil, doomed)
	require.NoError(t, err)

	require.NoError(t, w.Step())
	require.Equal(t, 5, calls)
	found, err := w.Find(nil, doomed)
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestSystemDeletedDuringStep(t *testing.T) {
	w := newTestWorld(t, nil)
	spawn(t, w)

	var second Entity
	ran := false
	_, err := w.System(func(Entity) {
		if w.IsValid(second) {
			require.NoError(t, w.Delete(second))
		}
	}, nil)
	require.NoError(t, err)
	second, err = w.System(func(Entity) { ran = true }, nil)
	require.NoError(t, err)

	require.NoError(t, w.Step())
	require.False(t, ran)
	require.Equal(t, 1, w.Info().Systems)
}

func TestSystemWithDeletedComponent(t *testing.T) {
	w := newTestWorld(t, nil)

	pos, _ := w.Component(8)
	e := spawn(t, w)
	_, err := w.Give(e, pos)
	require.NoError(t, err)

	ran := false
	_, err = w.System(func(Entity) { ran = true }, nil, pos)
	require.NoError(t, err)
	require.NoError(t, w.Delete(pos))

	require.NoError(t, w.Step())
	require.False(t, ran)
}

func TestFindAndQuery(t *testing.T) {
	w := newTestWorld(t, nil)

	a, _ := w.Tag()
	b, _ := w.Tag()
	var both []Entity
	for i := 0; i < 100; i++ {
		e := spawn(t, w)
		if i%2 == 0 {
			_, _ = w.Give(e, a)
		}
		if i%5 == 0 {
			_, _ = w.Give(e, b)
		}
		if i%10 == 0 {
			both = append(both, e)
		}
	}

	found, err := w.Find(nil, a, b)
	require.NoError(t, err)
	require.Equal(t, both, found)

	found, err = w.Find(func(e Entity) bool { return e.ID() > 50 }, b, a)
	require.NoError(t, err)
	require.Len(t, found, 5)

	all, err := w.Find(nil)
	require.NoError(t, err)
	require.Len(t, all, 100)

	var queried []Entity
	require.NoError(t, w.Query(func(e Entity) { queried = append(queried, e) }, nil, a, b))
	require.Equal(t, both, queried)
}
