// Package device provides an event-driven simulated backend: a grid of
// worker tiles, interleaved DRAM banks, and a resident dispatch core,
// reachable from the host through a command queue.
package device

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/noc"
)

// Interconnect node layout. Row 0 and column 0 are reserved for the
// host and the DRAM banks; worker (x, y) sits at node (x+1, y+1).
const (
	hostNodeX     = 0
	hostNodeY     = 0
	dispatchNodeX = 63
	dispatchNodeY = 0
)

type pendingCopy struct {
	remote    uint64
	localAddr uint32
	size      uint32
	multicast bool
}

// A Device is a simulated accelerator. It implements both the
// host-facing device queries and the transfer engine the dispatch
// interpreter drives; transfers move data between the flat backing
// stores while the engine advances the worker tiles.
type Device struct {
	name          string
	engine        sim.Engine
	width, height int
	scratchSize   uint64

	hostMem         []byte
	dramMem         [][]byte
	dispatchScratch []byte

	tiles map[grid.CoreCoord]*Tile
	mems  map[noc.NodeID][]byte

	pendingReads  []pendingCopy
	pendingWrites []pendingCopy

	lowestOccupied uint64
	dramBump       uint64
}

// Size returns the worker grid dimensions.
func (d *Device) Size() (width, height int) {
	return d.width, d.height
}

// ScratchSize returns the per-core scratch capacity in bytes.
func (d *Device) ScratchSize() uint64 {
	return d.scratchSize
}

// LowestOccupiedScratchAddress reports the bottom of the buffer region
// allocated from the top of scratch, uniform across worker cores.
func (d *Device) LowestOccupiedScratchAddress(
	core grid.CoreCoord,
) (uint64, bool) {
	if d.lowestOccupied == d.scratchSize {
		return 0, false
	}
	return d.lowestOccupied, true
}

// WorkerNode maps a logical core coordinate to its interconnect node.
func (d *Device) WorkerNode(core grid.CoreCoord) noc.NodeID {
	if core.X < 0 || core.X >= d.width || core.Y < 0 || core.Y >= d.height {
		panic(fmt.Sprintf("core %s outside the %dx%d grid",
			core.String(), d.width, d.height))
	}
	return noc.Node(core.X+1, core.Y+1)
}

// DRAMBanks returns the interleaving banks of bulk device memory.
func (d *Device) DRAMBanks() []noc.Bank {
	banks := make([]noc.Bank, len(d.dramMem))
	for i := range d.dramMem {
		banks[i] = noc.Bank{Node: noc.Node(0, i+1)}
	}
	return banks
}

// ScratchBanks returns one bank per worker core, row-major.
func (d *Device) ScratchBanks() []noc.Bank {
	banks := make([]noc.Bank, 0, d.width*d.height)
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			banks = append(banks, noc.Bank{
				Node: d.WorkerNode(grid.CoreCoord{X: x, Y: y}),
			})
		}
	}
	return banks
}

// HostNode is the interconnect node through which the host is reached.
func (d *Device) HostNode() noc.NodeID {
	return noc.Node(hostNodeX, hostNodeY)
}

// DispatchNode is the interconnect node of the resident dispatch core.
func (d *Device) DispatchNode() noc.NodeID {
	return noc.Node(dispatchNodeX, dispatchNodeY)
}

// WriteCoreScratch seeds a worker core's scratch before dispatch.
func (d *Device) WriteCoreScratch(
	core grid.CoreCoord,
	addr uint64,
	data []byte,
) {
	tile, ok := d.tiles[core]
	if !ok {
		panic(fmt.Sprintf("core %s outside the %dx%d grid",
			core.String(), d.width, d.height))
	}
	copy(tile.scratch[addr:], data)
}

// ReadCoreScratch copies out of a worker core's scratch.
func (d *Device) ReadCoreScratch(
	core grid.CoreCoord,
	addr uint64,
	data []byte,
) {
	tile, ok := d.tiles[core]
	if !ok {
		panic(fmt.Sprintf("core %s outside the %dx%d grid",
			core.String(), d.width, d.height))
	}
	copy(data, tile.scratch[addr:])
}

func (d *Device) memOf(n noc.NodeID) []byte {
	mem, ok := d.mems[n]
	if !ok {
		panic(fmt.Sprintf("no memory behind node %s", n.String()))
	}
	return mem
}

// Local exposes the dispatch core's scratch memory.
func (d *Device) Local() []byte {
	return d.dispatchScratch
}

// AsyncRead pulls size bytes from a remote node into dispatch scratch.
// The copy lands when ReadBarrier runs.
func (d *Device) AsyncRead(src uint64, localAddr uint32, size uint32) {
	d.pendingReads = append(d.pendingReads, pendingCopy{
		remote:    src,
		localAddr: localAddr,
		size:      size,
	})
}

// AsyncWrite pushes size bytes from dispatch scratch to a remote node.
// The copy lands when WriteBarrier runs.
func (d *Device) AsyncWrite(localAddr uint32, dst uint64, size uint32) {
	d.pendingWrites = append(d.pendingWrites, pendingCopy{
		remote:    dst,
		localAddr: localAddr,
		size:      size,
	})
}

// AsyncWriteMulticast replicates the payload to every node in the
// rectangle encoded in dst.
func (d *Device) AsyncWriteMulticast(
	localAddr uint32,
	dst uint64,
	size uint32,
	numReceivers uint32,
) {
	d.pendingWrites = append(d.pendingWrites, pendingCopy{
		remote:    dst,
		localAddr: localAddr,
		size:      size,
		multicast: true,
	})
}

// ReadBarrier applies all pending reads in issue order.
func (d *Device) ReadBarrier() {
	for _, c := range d.pendingReads {
		src := d.memOf(noc.AddrNode(c.remote))
		off := noc.AddrOffset(c.remote)
		copy(d.dispatchScratch[c.localAddr:], src[off:off+uint64(c.size)])
	}
	d.pendingReads = d.pendingReads[:0]
}

// WriteBarrier applies all pending writes in issue order. Writes that
// land in a worker's launch mailbox wake the tile up.
func (d *Device) WriteBarrier() {
	for _, c := range d.pendingWrites {
		if c.multicast {
			d.applyMulticast(c)
			continue
		}

		dst := d.memOf(noc.AddrNode(c.remote))
		off := noc.AddrOffset(c.remote)
		copy(dst[off:], d.dispatchScratch[c.localAddr:c.localAddr+c.size])
	}
	d.pendingWrites = d.pendingWrites[:0]
}

func (d *Device) applyMulticast(c pendingCopy) {
	start, end := noc.MulticastRect(noc.AddrNode(c.remote))
	off := noc.AddrOffset(c.remote)
	payload := d.dispatchScratch[c.localAddr : c.localAddr+c.size]

	for y := start.Y(); y <= end.Y(); y++ {
		for x := start.X(); x <= end.X(); x++ {
			node := noc.Node(x, y)
			copy(d.memOf(node)[off:], payload)

			if off == grid.LaunchMailboxAddr {
				d.wakeTile(node)
			}
		}
	}
}

func (d *Device) wakeTile(node noc.NodeID) {
	tile, ok := d.tiles[grid.CoreCoord{X: node.X() - 1, Y: node.Y() - 1}]
	if !ok {
		panic(fmt.Sprintf("launch trigger aimed at non-worker node %s",
			node.String()))
	}
	tile.TickNow()
}

// PollTick drains the event engine so tiles make progress while the
// interpreter busy-waits.
func (d *Device) PollTick() {
	err := d.engine.Run()
	if err != nil {
		panic(err)
	}
}
