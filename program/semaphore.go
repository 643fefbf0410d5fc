package program

import (
	"encoding/binary"

	"github.com/tilescale/tilescale/grid"
)

// A Semaphore is a fixed-size synchronization counter at a reserved
// scratch address, seeded with an initial value before dispatch. It is
// not owned by any kernel.
type Semaphore struct {
	cores        grid.CoreRangeSet
	address      uint64
	initialValue uint32
}

// Cores returns the cores the semaphore is initialized on.
func (s Semaphore) Cores() grid.CoreRangeSet { return s.cores }

// Address returns the semaphore's scratch address.
func (s Semaphore) Address() uint64 { return s.address }

// InitialValue returns the value written at program initialization.
func (s Semaphore) InitialValue() uint32 { return s.initialValue }

// InitializedOnCore reports whether the semaphore covers the core.
func (s Semaphore) InitializedOnCore(c grid.CoreCoord) bool {
	return s.cores.Contains(c)
}

func (s Semaphore) valueBytes() []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], s.initialValue)
	return b[:]
}
