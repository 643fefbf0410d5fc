package dispatch

import (
	"encoding/binary"

	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/noc"
)

// launchTrigger is the fixed payload multicast to worker mailboxes:
// all engines enabled, go. Per-group engine masks travel with the
// kernel-group configuration relayed beforehand.
var launchTrigger = [2]uint32{
	1<<grid.EngineMovement0 | 1<<grid.EngineMovement1 | 1<<grid.EngineCompute,
	grid.RunMsgGo,
}

// A Dispatcher is the resident core's interpreter loop. It decodes the
// command stream in its local scratch in strict order and drives the
// transfer engine; it performs no validation of the stream.
type Dispatcher struct {
	fabric   noc.TransferEngine
	hostNode noc.NodeID

	dramGen    noc.InterleavedAddrGen
	scratchGen noc.InterleavedAddrGen
}

// NewDispatcher creates the interpreter for one device.
func NewDispatcher(
	fabric noc.TransferEngine,
	hostNode noc.NodeID,
	dramBanks, scratchBanks []noc.Bank,
) *Dispatcher {
	return &Dispatcher{
		fabric:     fabric,
		hostNode:   hostNode,
		dramGen:    noc.InterleavedAddrGen{Banks: dramBanks},
		scratchGen: noc.InterleavedAddrGen{Banks: scratchBanks},
	}
}

// Run consumes one command stream starting at streamAddr in local
// scratch. Records execute in stream order; within a record,
// sub-transfers are pipelined but barrier-confirmed before the next
// record starts.
func (d *Dispatcher) Run(streamAddr uint32) {
	ptr := streamAddr

	numWrites := d.word(ptr)
	numReads := d.word(ptr + 4)
	numRelays := d.word(ptr + 8)
	numWorkers := d.word(ptr + 12)
	numGroups := d.word(ptr + 16)
	finish := d.word(ptr + 20)
	ptr += 4 * NumHeaderWords

	ptr = d.writeBuffers(numWrites, ptr)
	ptr = d.readBuffers(numReads, ptr)
	ptr = d.writeProgram(numRelays, ptr)
	d.launchProgram(numWorkers, numGroups, ptr)
	d.finishProgram(finish)
}

func (d *Dispatcher) word(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(d.fabric.Local()[addr:])
}

func (d *Dispatcher) putWord(addr, v uint32) {
	binary.LittleEndian.PutUint32(d.fabric.Local()[addr:], v)
}

func (d *Dispatcher) addrGen(class uint32) *noc.InterleavedAddrGen {
	if BufferClass(class) == BufferScratch {
		return &d.scratchGen
	}
	return &d.dramGen
}

func (d *Dispatcher) writeBuffers(n, ptr uint32) uint32 {
	for i := uint32(0); i < n; i++ {
		d.writeBuffer(
			d.addrGen(d.word(ptr+28)),
			d.word(ptr), noc.NodeID(d.word(ptr+4)), d.word(ptr+8),
			d.word(ptr+12), d.word(ptr+16), d.word(ptr+20), d.word(ptr+24))
		ptr += 4 * NumBufferEntryWords
	}
	return ptr
}

// writeBuffer streams one entry through the staging region: pull up to
// a burst per chunk, then fan the chunk out page by page to the
// interleaved banks, with one write barrier per chunk rather than one
// per page.
func (d *Dispatcher) writeBuffer(
	gen *noc.InterleavedAddrGen,
	srcAddr uint32, srcNode noc.NodeID, dstAddr uint32,
	paddedSize, burstSize, pageSize, paddedPageSize uint32,
) {
	gen.BankBaseAddress = uint64(dstAddr)
	gen.PageSize = uint64(paddedPageSize)

	Trace("BufferWrite", "Src", srcNode, "Bytes", paddedSize, "Page", pageSize)

	bankID := uint32(0)
	for paddedSize > 0 {
		readSize := min(burstSize, paddedSize)
		d.fabric.AsyncRead(noc.Addr(srcNode, uint64(srcAddr)), grid.CommandDataAddr, readSize)
		paddedSize -= readSize
		srcAddr += readSize
		localAddr := uint32(grid.CommandDataAddr)
		d.fabric.ReadBarrier()

		for off := uint32(0); off < readSize; off += paddedPageSize {
			d.fabric.AsyncWrite(localAddr, gen.NocAddr(bankID), pageSize)
			bankID++
			localAddr += paddedPageSize
		}
		d.fabric.WriteBarrier()
	}
}

func (d *Dispatcher) readBuffers(n, ptr uint32) uint32 {
	for i := uint32(0); i < n; i++ {
		d.readBuffer(
			d.addrGen(d.word(ptr+28)),
			d.word(ptr), noc.NodeID(d.word(ptr+4)), d.word(ptr+8),
			d.word(ptr+12), d.word(ptr+16), d.word(ptr+20), d.word(ptr+24))
		ptr += 4 * NumBufferEntryWords
	}
	return ptr
}

// readBuffer is the symmetric path: gather pages from the interleaved
// banks into staging with one read barrier per chunk, then push the
// whole chunk out in a single write plus barrier.
func (d *Dispatcher) readBuffer(
	gen *noc.InterleavedAddrGen,
	dstAddr uint32, dstNode noc.NodeID, srcAddr uint32,
	paddedSize, burstSize, pageSize, paddedPageSize uint32,
) {
	gen.BankBaseAddress = uint64(srcAddr)
	gen.PageSize = uint64(paddedPageSize)

	Trace("BufferRead", "Dst", dstNode, "Bytes", paddedSize, "Page", pageSize)

	bankID := uint32(0)
	for paddedSize > 0 {
		writeSize := min(burstSize, paddedSize)
		localAddr := uint32(grid.CommandDataAddr)
		dstNocAddr := noc.Addr(dstNode, uint64(dstAddr))
		dstAddr += writeSize
		paddedSize -= writeSize

		for off := uint32(0); off < writeSize; off += paddedPageSize {
			d.fabric.AsyncRead(gen.NocAddr(bankID), localAddr, pageSize)
			bankID++
			localAddr += paddedPageSize
		}
		d.fabric.ReadBarrier()

		d.fabric.AsyncWrite(grid.CommandDataAddr, dstNocAddr, writeSize)
		d.fabric.WriteBarrier()
	}
}

func (d *Dispatcher) writeProgram(n, ptr uint32) uint32 {
	for i := uint32(0); i < n; i++ {
		src := d.word(ptr)
		srcNode := noc.NodeID(d.word(ptr + 4))
		transferSize := d.word(ptr + 8)
		numChunks := d.word(ptr + 12)
		ptr += 4 * NumRelayHeaderWords

		ptr = d.writeProgramSection(src, srcNode, transferSize, numChunks, ptr)
	}
	return ptr
}

// writeProgramSection stages one contiguous program section, then
// multicasts each sub-chunk to its worker range. A single barrier
// covers all the sub-chunk multicasts.
func (d *Dispatcher) writeProgramSection(
	src uint32, srcNode noc.NodeID, transferSize, numChunks, ptr uint32,
) uint32 {
	d.fabric.AsyncRead(noc.Addr(srcNode, uint64(src)), grid.CommandDataAddr, transferSize)
	d.fabric.ReadBarrier()

	Trace("ProgramRelay", "Bytes", transferSize, "Chunks", numChunks)

	for c := uint32(0); c < numChunks; c++ {
		chunkSrc := d.word(ptr)
		chunkDst := d.word(ptr + 4)
		dstNode := noc.NodeID(d.word(ptr + 8))
		size := d.word(ptr + 12)
		numReceivers := d.word(ptr + 16)
		ptr += 4 * NumRelayChunkWords

		d.fabric.AsyncWriteMulticast(
			chunkSrc, noc.Addr(dstNode, uint64(chunkDst)), size, numReceivers)
	}
	d.fabric.WriteBarrier()

	return ptr
}

// launchProgram resets the completion counter, multicasts the launch
// trigger to every worker group, and busy-waits until every worker has
// signaled back. A zero worker count is a no-op.
func (d *Dispatcher) launchProgram(numWorkers, numGroups, ptr uint32) {
	if numWorkers == 0 {
		return
	}

	d.putWord(grid.DispatchMessageAddr, 0)
	d.putWord(grid.LaunchTriggerAddr, launchTrigger[0])
	d.putWord(grid.LaunchTriggerAddr+4, launchTrigger[1])

	for g := uint32(0); g < numGroups; g++ {
		dst := noc.NodeID(d.word(ptr))
		numMessages := d.word(ptr + 4)
		ptr += 4 * NumLaunchGroupWords

		d.fabric.AsyncWriteMulticast(
			grid.LaunchTriggerAddr,
			noc.Addr(dst, grid.LaunchMailboxAddr),
			uint32(len(launchTrigger))*4,
			numMessages)
	}
	d.fabric.WriteBarrier()

	Trace("LaunchWait", "Workers", numWorkers)
	for d.word(grid.DispatchMessageAddr) != numWorkers {
		d.fabric.PollTick()
	}
	Trace("LaunchDone", "Workers", numWorkers)
}

// finishProgram pushes the completion flag to the host and clears the
// local copy. Signals that the whole stream has drained.
func (d *Dispatcher) finishProgram(finish uint32) {
	if finish == 0 {
		return
	}

	d.putWord(grid.LocalFinishAddr, 1)
	d.fabric.AsyncWrite(
		grid.LocalFinishAddr,
		noc.Addr(d.hostNode, grid.HostFinishAddr),
		4)
	d.fabric.WriteBarrier()
	d.putWord(grid.LocalFinishAddr, 0)
}
