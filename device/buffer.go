package device

import (
	"fmt"

	"github.com/tilescale/tilescale/dispatch"
)

// pageAlign is the transfer alignment of one page on the interconnect.
const pageAlign = 32

func paddedPageSize(pageSize uint32) uint32 {
	return (pageSize + pageAlign - 1) / pageAlign * pageAlign
}

// A Buffer is a paged allocation in device memory, interleaved page by
// page across the banks of its class.
type Buffer struct {
	class          dispatch.BufferClass
	size           uint32
	pageSize       uint32
	paddedPageSize uint32
	numPages       uint32
	address        uint32
}

// Class returns the memory class of the buffer.
func (b *Buffer) Class() dispatch.BufferClass { return b.class }

// Size returns the logical byte size of the buffer.
func (b *Buffer) Size() uint32 { return b.size }

// PageSize returns the logical page size of the buffer.
func (b *Buffer) PageSize() uint32 { return b.pageSize }

// PaddedPageSize returns the aligned on-device page stride.
func (b *Buffer) PaddedPageSize() uint32 { return b.paddedPageSize }

// NumPages returns the page count of the buffer.
func (b *Buffer) NumPages() uint32 { return b.numPages }

// Address returns the per-bank base address of the buffer.
func (b *Buffer) Address() uint32 { return b.address }

// PaddedSize returns the total on-device footprint of the buffer.
func (b *Buffer) PaddedSize() uint32 {
	return b.numPages * b.paddedPageSize
}

func pageGeometry(size, pageSize uint32) (numPages, padded uint32) {
	if pageSize == 0 || size%pageSize != 0 {
		panic(fmt.Sprintf(
			"buffer size %d is not a multiple of page size %d",
			size, pageSize))
	}
	return size / pageSize, paddedPageSize(pageSize)
}

// NewDRAMBuffer allocates a buffer interleaved across the DRAM banks.
func (d *Device) NewDRAMBuffer(size, pageSize uint32) *Buffer {
	numPages, padded := pageGeometry(size, pageSize)

	numBanks := uint32(len(d.dramMem))
	pagesPerBank := (numPages + numBanks - 1) / numBanks
	footprint := uint64(pagesPerBank * padded)

	if d.dramBump+footprint > uint64(len(d.dramMem[0])) {
		panic("DRAM exhausted")
	}

	b := &Buffer{
		class:          dispatch.BufferDRAM,
		size:           size,
		pageSize:       pageSize,
		paddedPageSize: padded,
		numPages:       numPages,
		address:        uint32(d.dramBump),
	}
	d.dramBump += footprint

	return b
}

// NewScratchBuffer allocates a buffer interleaved across worker
// scratch, growing downward from the top so circular buffers keep
// their region above the reserved base.
func (d *Device) NewScratchBuffer(size, pageSize uint32) *Buffer {
	numPages, padded := pageGeometry(size, pageSize)

	numBanks := uint32(d.width * d.height)
	pagesPerBank := (numPages + numBanks - 1) / numBanks
	footprint := uint64(pagesPerBank * padded)

	if footprint > d.lowestOccupied {
		panic("worker scratch exhausted")
	}
	d.lowestOccupied -= footprint

	return &Buffer{
		class:          dispatch.BufferScratch,
		size:           size,
		pageSize:       pageSize,
		paddedPageSize: padded,
		numPages:       numPages,
		address:        uint32(d.lowestOccupied),
	}
}
