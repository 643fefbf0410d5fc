package grid

import "github.com/tilescale/tilescale/noc"

// Scratch-memory map of a core. The region below ScratchUnreservedBase
// is reserved for firmware, mailboxes, and the dispatch staging buffer;
// circular buffers are placed from ScratchUnreservedBase upward.
const (
	// NumCircularBufferSlots is the number of circular-buffer slot
	// indices available per core.
	NumCircularBufferSlots = 32

	// DefaultScratchSize is the scratch capacity of one core.
	DefaultScratchSize = 1 << 20

	// ScratchUnreservedBase is where circular-buffer placement starts.
	ScratchUnreservedBase = 0x18000

	// CommandDataAddr is the staging region on the dispatch core
	// through which buffer and relay payloads stream.
	CommandDataAddr = 0x10000

	// CommandDataSize is the capacity of the staging region.
	CommandDataSize = 0x8000

	// DispatchMessageAddr holds the launch completion counter on the
	// dispatch core. Worker cores increment it when they finish.
	DispatchMessageAddr = 0x5000

	// LocalFinishAddr is the dispatch core's local copy of the
	// completion flag pushed to the host.
	LocalFinishAddr = 0x5008

	// LaunchTriggerAddr holds the fixed launch payload the dispatch
	// core multicasts to worker mailboxes.
	LaunchTriggerAddr = 0x5020

	// CommandStreamAddr is where the host places the instruction
	// stream in the dispatch core's scratch.
	CommandStreamAddr = 0x8000

	// LaunchMailboxAddr is where each worker core receives its launch
	// trigger payload.
	LaunchMailboxAddr = 0x5010

	// LaunchConfigAddr holds the per-core engine enable mask and run
	// word the host seeds before dispatch.
	LaunchConfigAddr = 0x5018

	// KernelTextBase and KernelTextStride lay out the per-engine kernel
	// binary regions in worker scratch.
	KernelTextBase   = 0x6000
	KernelTextStride = 0x4000

	// HostFinishAddr is the offset of the completion flag in
	// host-visible memory.
	HostFinishAddr = 0x0

	// RunMsgGo is the trigger value a worker core waits for in its
	// launch mailbox.
	RunMsgGo = 0x80
)

// A Device is the hardware (or simulated hardware) a program is
// compiled for and dispatched to.
type Device interface {
	// ScratchSize returns the per-core scratch capacity in bytes.
	ScratchSize() uint64

	// LowestOccupiedScratchAddress reports the bottom of the
	// statically allocated region on the core, if any. Circular
	// buffers must stay strictly below it.
	LowestOccupiedScratchAddress(core CoreCoord) (uint64, bool)

	// WorkerNode maps a logical core coordinate to its interconnect
	// node.
	WorkerNode(core CoreCoord) noc.NodeID

	// DRAMBanks returns the interleaving banks of bulk device memory.
	DRAMBanks() []noc.Bank

	// ScratchBanks returns one bank per worker core for buffers
	// interleaved across core-local scratch.
	ScratchBanks() []noc.Bank

	// HostNode is the interconnect node through which the host is
	// reached.
	HostNode() noc.NodeID

	// WriteCoreScratch lets the host seed a worker core's scratch
	// before dispatch (semaphore initial values).
	WriteCoreScratch(core CoreCoord, addr uint64, data []byte)
}
