package index

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIteratorEmpty(t *testing.T) {
	m := newTestMap(t, nil)
	it := m.Iterator()
	_, _, ok := it.Next()
	require.False(t, ok)

	// exhaustion is sticky
	_, _, ok = it.Next()
	require.False(t, ok)
}

func TestIteratorAscendingAndRestart(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	m := newTestMap(t, nil)

	want := make([]uint64, 0, 2000)
	for len(want) < cap(want) {
		k := r.Uint64() >> uint(r.Intn(64))
		if m.Has(k) {
			continue
		}
		require.NoError(t, m.Set(k, ^k))
		want = append(want, k)
	}
	slices.Sort(want)

	it := m.Iterator()
	for i := 0; i < 3; i++ {
		k, _, ok := it.Next()
		require.True(t, ok)
		require.Equal(t, want[i], k)
	}

	it.Start()
	var got []uint64
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		require.Equal(t, ^k, v)
		got = append(got, k)
	}
	require.Equal(t, want, got)
}

func TestIteratorSurvivesOverwrite(t *testing.T) {
	m := newTestMap(t, nil)
	for k := uint64(0); k < 100; k++ {
		require.NoError(t, m.Set(k<<8, k))
	}

	it := m.Iterator()
	seen := 0
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		require.Equal(t, k>>8, v)
		// boxing allocates value cells while the cursor is live
		require.NoError(t, m.Set(k, 1<<62|v))
		seen++
	}
	require.Equal(t, 100, seen)
}

func TestIteratorPanicsAfterStructuralChange(t *testing.T) {
	m := newTestMap(t, nil)
	require.NoError(t, m.Set(1, 1))
	require.NoError(t, m.Set(2, 2))

	it := m.Iterator()
	_, _, ok := it.Next()
	require.True(t, ok)

	require.NoError(t, m.Set(3, 3))
	require.Panics(t, func() { it.Next() })

	it.Start()
	_, ok2 := m.Delete(1)
	require.True(t, ok2)
	require.Panics(t, func() { it.Next() })
}

func TestAllStopsEarly(t *testing.T) {
	m := newTestMap(t, nil)
	for k := uint64(1); k <= 10; k++ {
		require.NoError(t, m.Set(k*0x100, k))
	}

	var got []uint64
	for k := range m.All() {
		got = append(got, k)
		if len(got) == 4 {
			break
		}
	}
	require.Equal(t, []uint64{0x100, 0x200, 0x300, 0x400}, got)
}
