package program

import (
	"fmt"
	"sort"

	"github.com/tilescale/tilescale/grid"
)

// CircularBufferID identifies a circular buffer within one program.
type CircularBufferID int

// CircularBufferConfig describes a ring buffer before placement: which
// slot indices it claims, the data format behind each slot, the total
// byte size, and an optional caller-fixed address.
type CircularBufferConfig struct {
	size                uint64
	formats             map[int]grid.DataFormat
	requestedAddress    uint64
	hasRequestedAddress bool
}

// NewCircularBufferConfig creates a config for a buffer of the given
// total size.
func NewCircularBufferConfig(size uint64) CircularBufferConfig {
	return CircularBufferConfig{
		size:    size,
		formats: make(map[int]grid.DataFormat),
	}
}

// WithSlot claims a slot index with the given data format.
func (c CircularBufferConfig) WithSlot(slot int, f grid.DataFormat) CircularBufferConfig {
	if slot < 0 || slot >= grid.NumCircularBufferSlots {
		panic(fmt.Sprintf(
			"invalid circular buffer index: %d should be between 0 and %d",
			slot, grid.NumCircularBufferSlots))
	}
	c.formats[slot] = f
	return c
}

// WithRequestedAddress pins the buffer to an explicit scratch address.
func (c CircularBufferConfig) WithRequestedAddress(addr uint64) CircularBufferConfig {
	c.requestedAddress = addr
	c.hasRequestedAddress = true
	return c
}

// Size returns the buffer's total byte size.
func (c CircularBufferConfig) Size() uint64 { return c.size }

// RequestedAddress returns the pinned address, if any.
func (c CircularBufferConfig) RequestedAddress() (uint64, bool) {
	return c.requestedAddress, c.hasRequestedAddress
}

// A CircularBuffer is a ring-buffer region shared by the cores of its
// range set. All participating cores see the buffer at the same
// address, resolved by AllocateCircularBuffers.
type CircularBuffer struct {
	id     CircularBufferID
	cores  grid.CoreRangeSet
	config CircularBufferConfig

	address   uint64
	allocated bool
}

// ID returns the buffer's program-scoped id.
func (b *CircularBuffer) ID() CircularBufferID { return b.id }

// Cores returns the core-range set the buffer spans.
func (b *CircularBuffer) Cores() grid.CoreRangeSet { return b.cores }

// Size returns the buffer's total byte size.
func (b *CircularBuffer) Size() uint64 { return b.config.size }

// SlotIndices returns the claimed slot indices in ascending order.
func (b *CircularBuffer) SlotIndices() []int {
	slots := make([]int, 0, len(b.config.formats))
	for slot := range b.config.formats {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// Format returns the data format of one claimed slot.
func (b *CircularBuffer) Format(slot int) grid.DataFormat {
	f, ok := b.config.formats[slot]
	if !ok {
		panic(fmt.Sprintf("circular buffer %d does not claim slot %d", b.id, slot))
	}
	return f
}

// Address returns the resolved scratch address.
func (b *CircularBuffer) Address() uint64 {
	if !b.allocated {
		panic(fmt.Sprintf("circular buffer %d has not been allocated", b.id))
	}
	return b.address
}

// IsOnCore reports whether the buffer covers the core.
func (b *CircularBuffer) IsOnCore(c grid.CoreCoord) bool {
	return b.cores.Contains(c)
}

// IsOnCoreRange reports whether the buffer overlaps the rectangle.
func (b *CircularBuffer) IsOnCoreRange(r grid.CoreRange) bool {
	return b.cores.Intersects(r)
}

type region struct {
	start, end uint64
}

// circularBufferAllocator tracks one core's claimed slot indices and
// its occupied scratch regions. Regions are sorted, disjoint, and
// always begin at the reserved base; the end of the last region is the
// next free candidate address.
type circularBufferAllocator struct {
	indices uint32
	regions []region
}

func newCircularBufferAllocator() *circularBufferAllocator {
	return &circularBufferAllocator{
		regions: []region{{grid.ScratchUnreservedBase, grid.ScratchUnreservedBase}},
	}
}

func (a *circularBufferAllocator) addIndex(slot int) {
	if slot < 0 || slot >= grid.NumCircularBufferSlots {
		panic(fmt.Sprintf(
			"invalid circular buffer index: %d should be between 0 and %d",
			slot, grid.NumCircularBufferSlots))
	}
	if a.indices&(1<<slot) != 0 {
		panic(fmt.Sprintf(
			"invalid circular buffer index: cannot add circular buffer at index %d, "+
				"another circular buffer already exists", slot))
	}
	a.indices |= 1 << slot
}

// addressCandidate returns the next free address: buffers on a core
// are sequential, so it is the end of the last region.
func (a *circularBufferAllocator) addressCandidate() uint64 {
	return a.regions[len(a.regions)-1].end
}

func (a *circularBufferAllocator) markAddress(addr, size uint64) {
	last := &a.regions[len(a.regions)-1]
	if addr < last.end {
		panic(fmt.Sprintf(
			"local buffer address %d has to append to last scratch region [%d, %d) "+
				"or be at a higher address", addr, last.start, last.end))
	}
	if addr == last.end {
		last.end += size
	} else {
		a.regions = append(a.regions, region{addr, addr + size})
	}
}

// resetRegions forgets all placements but keeps the claimed slots.
func (a *circularBufferAllocator) resetRegions() {
	a.regions = a.regions[:1]
	a.regions[0] = region{grid.ScratchUnreservedBase, grid.ScratchUnreservedBase}
}
