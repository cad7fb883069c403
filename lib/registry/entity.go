package registry

import "fmt"

// Kind tells what an entity stands for.
type Kind uint8

const (
	KindEntity Kind = iota
	KindComponent
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "Entity"
	case KindComponent:
		return "Component"
	case KindSystem:
		return "System"
	default:
		return "Unknown"
	}
}

// Entity is a handle packed into 64 bits:
//
//	bits  0-31  id
//	bits 32-47  generation, incremented every time the id is deleted
//	bits 48-55  liveness flag
//	bits 56-63  kind
//
// The same word is stored in the identity map, so a handle is valid exactly
// when it equals the record stored under its id.
type Entity uint64

// Nil never refers to a live entity.
const Nil Entity = 0xFFFFFFFF

const (
	generationShift = 32
	aliveShift      = 48
	kindShift       = 56
)

func pack(id uint32, generation uint16, alive bool, kind Kind) Entity {
	e := Entity(id) | Entity(generation)<<generationShift | Entity(kind)<<kindShift
	if alive {
		e |= 1 << aliveShift
	}
	return e
}

func (e Entity) ID() uint32         { return uint32(e) }
func (e Entity) Generation() uint16 { return uint16(e >> generationShift) }
func (e Entity) Alive() bool        { return uint8(e>>aliveShift) != 0 }
func (e Entity) Kind() Kind         { return Kind(e >> kindShift) }
func (e Entity) IsNil() bool        { return e == Nil }

func (e Entity) String() string {
	if e.IsNil() {
		return "Entity{nil}"
	}
	return fmt.Sprintf("%s{id: %d, gen: %d, alive: %v}", e.Kind(), e.ID(), e.Generation(), e.Alive())
}
