package device

import (
	"encoding/binary"
	"fmt"

	"github.com/tilescale/tilescale/build"
	"github.com/tilescale/tilescale/dispatch"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/noc"
	"github.com/tilescale/tilescale/program"
)

// hostStagingBase leaves room for the completion flag at the bottom of
// host-visible memory.
const hostStagingBase = 0x40

// A CommandQueue is the host-side entry point to one device. Each
// enqueue assembles a command stream, places it in the dispatch core's
// scratch, and runs the interpreter over it to completion.
type CommandQueue struct {
	device     *Device
	dispatcher *dispatch.Dispatcher
	hostBump   uint32
}

// NewCommandQueue creates a command queue bound to a device.
func NewCommandQueue(d *Device) *CommandQueue {
	return &CommandQueue{
		device: d,
		dispatcher: dispatch.NewDispatcher(
			d, d.HostNode(), d.DRAMBanks(), d.ScratchBanks()),
		hostBump: hostStagingBase,
	}
}

// stage copies data into host-visible memory and returns its address.
// Staging is valid for the duration of one enqueue.
func (q *CommandQueue) stage(data []byte) uint32 {
	addr := q.reserve(uint32(len(data)))
	copy(q.device.hostMem[addr:], data)
	return addr
}

func (q *CommandQueue) reserve(size uint32) uint32 {
	addr := q.hostBump
	q.hostBump += (size + pageAlign - 1) / pageAlign * pageAlign
	if uint64(q.hostBump) > uint64(len(q.device.hostMem)) {
		panic("host staging memory exhausted")
	}
	return addr
}

func (q *CommandQueue) run(b *dispatch.CommandBuilder) {
	words := b.Words()
	if 4*len(words) > grid.CommandDataAddr-grid.CommandStreamAddr {
		panic(fmt.Sprintf("command stream of %d words does not fit", len(words)))
	}

	scratch := q.device.dispatchScratch
	for i, w := range words {
		binary.LittleEndian.PutUint32(
			scratch[grid.CommandStreamAddr+4*i:], w)
	}

	q.dispatcher.Run(grid.CommandStreamAddr)
	q.hostBump = hostStagingBase
}

func burstSize(paddedPage uint32) uint32 {
	pagesPerBurst := uint32(grid.CommandDataSize) / paddedPage
	if pagesPerBurst == 0 {
		panic(fmt.Sprintf(
			"page of %d bytes exceeds the %d byte staging region",
			paddedPage, grid.CommandDataSize))
	}
	return pagesPerBurst * paddedPage
}

// EnqueueWriteBuffer copies host data into a device buffer.
func (q *CommandQueue) EnqueueWriteBuffer(buf *Buffer, data []byte) {
	if uint32(len(data)) != buf.Size() {
		panic(fmt.Sprintf("data of %d bytes does not match buffer size %d",
			len(data), buf.Size()))
	}

	padded := make([]byte, buf.PaddedSize())
	for p := uint32(0); p < buf.NumPages(); p++ {
		copy(padded[p*buf.PaddedPageSize():],
			data[p*buf.PageSize():(p+1)*buf.PageSize()])
	}

	b := &dispatch.CommandBuilder{}
	b.AddBufferWrite(
		q.stage(padded), q.device.HostNode(), buf.Address(),
		buf.PaddedSize(), burstSize(buf.PaddedPageSize()),
		buf.PageSize(), buf.PaddedPageSize(), buf.Class())

	q.run(b)
}

// EnqueueReadBuffer copies a device buffer back to the host.
func (q *CommandQueue) EnqueueReadBuffer(buf *Buffer) []byte {
	dst := q.reserve(buf.PaddedSize())

	b := &dispatch.CommandBuilder{}
	b.AddBufferRead(
		dst, q.device.HostNode(), buf.Address(),
		buf.PaddedSize(), burstSize(buf.PaddedPageSize()),
		buf.PageSize(), buf.PaddedPageSize(), buf.Class())

	q.run(b)

	data := make([]byte, buf.Size())
	for p := uint32(0); p < buf.NumPages(); p++ {
		copy(data[p*buf.PageSize():(p+1)*buf.PageSize()],
			q.device.hostMem[dst+p*buf.PaddedPageSize():])
	}
	return data
}

// EnqueueProgram compiles the program if needed, places its resources
// on the device, relays the kernel binaries to their cores, and
// launches every worker core the program covers.
func (q *CommandQueue) EnqueueProgram(
	p *program.Program,
	tc build.Toolchain,
) error {
	if err := p.Compile(q.device, tc); err != nil {
		return err
	}

	p.AllocateCircularBuffers()
	p.ValidateCircularBufferRegions(q.device)
	p.InitSemaphores(q.device)
	q.seedLaunchConfigs(p)

	b := &dispatch.CommandBuilder{}
	for _, id := range p.KernelIDs() {
		q.addKernelRelay(b, p.Kernel(id))
	}

	workers := p.WorkerCoreRangeSet()
	var groups []dispatch.LaunchGroup
	numWorkers := uint32(0)
	for _, r := range workers.Ranges() {
		groups = append(groups, dispatch.LaunchGroup{
			Dst: noc.MulticastNode(
				q.device.WorkerNode(r.Start), q.device.WorkerNode(r.End)),
			NumMessages: uint32(r.NumCores()),
		})
		numWorkers += uint32(r.NumCores())
	}
	b.SetLaunch(numWorkers, groups)

	q.run(b)

	return nil
}

// seedLaunchConfigs writes each covered core's engine enable mask and
// run word ahead of the launch trigger.
func (q *CommandQueue) seedLaunchConfigs(p *program.Program) {
	for _, c := range p.LogicalCores() {
		words := p.KernelsOnCore(c).Launch.Words()

		var payload [8]byte
		binary.LittleEndian.PutUint32(payload[0:], words[0])
		binary.LittleEndian.PutUint32(payload[4:], words[1])

		q.device.WriteCoreScratch(c, grid.LaunchConfigAddr, payload[:])
	}
}

func (q *CommandQueue) addKernelRelay(
	b *dispatch.CommandBuilder,
	k *program.Kernel,
) {
	bin := k.Binary()
	if len(bin) == 0 {
		panic(fmt.Sprintf("kernel %q has no binary", k.Name()))
	}
	if len(bin) > grid.CommandDataSize {
		panic(fmt.Sprintf(
			"kernel %q binary of %d bytes exceeds the staging region",
			k.Name(), len(bin)))
	}

	textAddr := uint32(grid.KernelTextBase) +
		uint32(k.Engine())*grid.KernelTextStride

	var chunks []dispatch.RelayChunk
	for _, r := range k.Cores().Ranges() {
		chunks = append(chunks, dispatch.RelayChunk{
			Src: grid.CommandDataAddr,
			Dst: textAddr,
			DstNode: noc.MulticastNode(
				q.device.WorkerNode(r.Start), q.device.WorkerNode(r.End)),
			Size:         uint32(len(bin)),
			NumReceivers: uint32(r.NumCores()),
		})
	}

	b.AddProgramRelay(
		q.stage(bin), q.device.HostNode(), uint32(len(bin)), chunks)
}

// Finish drains the device and blocks until the completion flag comes
// back from the dispatch core.
func (q *CommandQueue) Finish() {
	b := &dispatch.CommandBuilder{}
	b.SetFinish()
	q.run(b)

	flag := binary.LittleEndian.Uint32(q.device.hostMem[grid.HostFinishAddr:])
	if flag != 1 {
		panic("device never signaled completion")
	}
	binary.LittleEndian.PutUint32(q.device.hostMem[grid.HostFinishAddr:], 0)
}
