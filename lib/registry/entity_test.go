package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntityPacking(t *testing.T) {
	e := pack(0xdeadbeef, 0x1234, true, KindSystem)
	require.Equal(t, uint32(0xdeadbeef), e.ID())
	require.Equal(t, uint16(0x1234), e.Generation())
	require.True(t, e.Alive())
	require.Equal(t, KindSystem, e.Kind())
	require.Equal(t, Entity(0x0201_1234_deadbeef), e)

	dead := pack(7, 1, false, KindEntity)
	require.False(t, dead.Alive())
	require.Equal(t, KindEntity, dead.Kind())
}

func TestNil(t *testing.T) {
	require.True(t, Nil.IsNil())
	require.False(t, Nil.Alive())
	require.Equal(t, "Entity{nil}", Nil.String())
	require.False(t, pack(0, 0, true, KindEntity).IsNil())
}

func TestKindString(t *testing.T) {
	require.Equal(t, "Entity", KindEntity.String())
	require.Equal(t, "Component", KindComponent.String())
	require.Equal(t, "System", KindSystem.String())
	require.Equal(t, "Unknown", Kind(9).String())
	require.Equal(t, "Component{id: 3, gen: 2, alive: true}", pack(3, 2, true, KindComponent).String())
}
