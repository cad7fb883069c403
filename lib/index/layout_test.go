package index

import (
	"math"
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestNodeRecordLayout(t *testing.T) {
	require.Equal(t, 64, nodeSize)
	require.Equal(t, uintptr(nodeSize), unsafe.Sizeof([nodeWords]uint32{}))
	require.Equal(t, 8, cellsPerNode)
	require.Equal(t, uint64(1<<26), inlineLimit)

	// arena bookkeeping must stay pointer free apart from the region itself
	typ := reflect.TypeOf(Allocator{})
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Name == "arena" {
			continue
		}
		require.NotEqual(t, reflect.Pointer, f.Type.Kind(), "field %s", f.Name)
	}
}

func TestHighestNibble(t *testing.T) {
	cases := map[uint64]uint32{
		0:              0,
		1:              0,
		0xf:            0,
		0x10:           1,
		0x11:           1,
		0x101:          2,
		1 << 63:        15,
		math.MaxUint64: 15,
	}
	for in, want := range cases {
		require.Equal(t, want, highestNibble(in), "highestNibble(%#x)", in)
	}
}

func TestPrefixAbove(t *testing.T) {
	require.Equal(t, uint64(0x1230), prefixAbove(0x1234, 0))
	require.Equal(t, uint64(0x1200), prefixAbove(0x1234, 1))
	require.Equal(t, uint64(0), prefixAbove(0x1234, 3))
	require.Equal(t, uint64(0), prefixAbove(math.MaxUint64, 15))
	require.Equal(t, uint64(0xf000000000000000), prefixAbove(math.MaxUint64, 14))
}

func TestDigit(t *testing.T) {
	require.Equal(t, uint32(0x4), digit(0x1234, 0))
	require.Equal(t, uint32(0x1), digit(0x1234, 3))
	require.Equal(t, uint32(0xf), digit(math.MaxUint64, 15))
}

func TestCeilPow2(t *testing.T) {
	require.Equal(t, uint64(1), ceilPow2(0))
	require.Equal(t, uint64(1), ceilPow2(1))
	require.Equal(t, uint64(4), ceilPow2(3))
	require.Equal(t, uint64(2048), ceilPow2(1152))
	require.Equal(t, uint64(2048), ceilPow2(2048))
}

func TestSlotPredicates(t *testing.T) {
	require.False(t, occupied(0))
	require.False(t, occupied(0xf))
	require.True(t, occupied(slotScalar))
	require.True(t, occupied(slotNode|64))

	require.True(t, isBoxed(1<<slotShift))
	require.True(t, isBoxed(1<<slotShift|0x3))
	require.False(t, isBoxed(slotScalar|5<<slotShift))
	require.False(t, isBoxed(slotNode|64))
	require.False(t, isBoxed(0x7))

	require.Equal(t, uint32(128), childOffset(slotNode|128|0x5))
	require.Equal(t, uint32(9), cellIndex(9<<slotShift|0x2))
}
