// Package dispatch defines the host-authored command stream and the
// device-resident interpreter that consumes it.
package dispatch

import "github.com/tilescale/tilescale/noc"

// BufferClass tags which memory a buffer entry targets.
type BufferClass uint32

const (
	// BufferDRAM is persistent memory interleaved across DRAM banks.
	BufferDRAM BufferClass = 0
	// BufferScratch is core-local scratch interleaved across worker
	// cores.
	BufferScratch BufferClass = 1
)

// Stream geometry. Every record is a run of fixed-size u32 sub-records
// prefixed by a count in the header.
const (
	// NumHeaderWords is the fixed stream header: buffer-write count,
	// buffer-read count, relay count, worker count, multicast-group
	// count, finish flag.
	NumHeaderWords = 6

	// NumBufferEntryWords is the size of one buffer-write or
	// buffer-read sub-record.
	NumBufferEntryWords = 8

	// NumRelayHeaderWords and NumRelayChunkWords describe one program
	// relay: a header followed by per-chunk multicast directives.
	NumRelayHeaderWords = 4
	NumRelayChunkWords  = 5

	// NumLaunchGroupWords is one multicast launch destination pair.
	NumLaunchGroupWords = 2
)

// A RelayChunk is one multicast slice of a staged program section. Src
// is the local scratch address the slice was staged at; Dst is the
// destination scratch address replicated across the multicast
// rectangle.
type RelayChunk struct {
	Src          uint32
	Dst          uint32
	DstNode      noc.NodeID
	Size         uint32
	NumReceivers uint32
}

// A LaunchGroup is one multicast destination of the launch trigger.
type LaunchGroup struct {
	Dst         noc.NodeID
	NumMessages uint32
}

// A CommandBuilder assembles one dispatch command stream. Sections may
// be empty; the interpreter treats zero counts as no-ops.
type CommandBuilder struct {
	writes []uint32
	reads  []uint32
	relays []uint32
	launch []uint32

	numWrites  uint32
	numReads   uint32
	numRelays  uint32
	numWorkers uint32
	numGroups  uint32
	finish     uint32
}

// AddBufferWrite appends one host-to-device buffer transfer.
func (b *CommandBuilder) AddBufferWrite(
	srcAddr uint32, srcNode noc.NodeID, dstAddr uint32,
	paddedSize, burstSize, pageSize, paddedPageSize uint32,
	class BufferClass,
) {
	b.writes = append(b.writes,
		srcAddr, uint32(srcNode), dstAddr,
		paddedSize, burstSize, pageSize, paddedPageSize, uint32(class))
	b.numWrites++
}

// AddBufferRead appends one device-to-host buffer transfer.
func (b *CommandBuilder) AddBufferRead(
	dstAddr uint32, dstNode noc.NodeID, srcAddr uint32,
	paddedSize, burstSize, pageSize, paddedPageSize uint32,
	class BufferClass,
) {
	b.reads = append(b.reads,
		dstAddr, uint32(dstNode), srcAddr,
		paddedSize, burstSize, pageSize, paddedPageSize, uint32(class))
	b.numReads++
}

// AddProgramRelay appends one staged program section together with its
// multicast slices.
func (b *CommandBuilder) AddProgramRelay(
	srcAddr uint32, srcNode noc.NodeID, transferSize uint32,
	chunks []RelayChunk,
) {
	b.relays = append(b.relays,
		srcAddr, uint32(srcNode), transferSize, uint32(len(chunks)))
	for _, c := range chunks {
		b.relays = append(b.relays,
			c.Src, c.Dst, uint32(c.DstNode), c.Size, c.NumReceivers)
	}
	b.numRelays++
}

// SetLaunch records the worker count and the multicast groups the
// launch trigger goes to.
func (b *CommandBuilder) SetLaunch(numWorkers uint32, groups []LaunchGroup) {
	b.numWorkers = numWorkers
	b.numGroups = uint32(len(groups))
	b.launch = b.launch[:0]
	for _, g := range groups {
		b.launch = append(b.launch, uint32(g.Dst), g.NumMessages)
	}
}

// SetFinish arms the host completion signal at the end of the stream.
func (b *CommandBuilder) SetFinish() {
	b.finish = 1
}

// Words emits the finished stream.
func (b *CommandBuilder) Words() []uint32 {
	words := make([]uint32, 0,
		NumHeaderWords+len(b.writes)+len(b.reads)+len(b.relays)+len(b.launch))

	words = append(words,
		b.numWrites, b.numReads, b.numRelays,
		b.numWorkers, b.numGroups, b.finish)
	words = append(words, b.writes...)
	words = append(words, b.reads...)
	words = append(words, b.relays...)
	words = append(words, b.launch...)

	return words
}
