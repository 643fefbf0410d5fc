package device_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tilescale/tilescale/build"
	"github.com/tilescale/tilescale/device"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/program"
)

var _ = Describe("Device", func() {
	var (
		dev   *device.Device
		queue *device.CommandQueue
	)

	BeforeEach(func() {
		dev = device.MakeBuilder().
			WithEngine(sim.NewSerialEngine()).
			WithFreq(1 * sim.GHz).
			WithSize(2, 2).
			WithDRAMBanks(2).
			Build("TestDevice")
		queue = device.NewCommandQueue(dev)
	})

	It("should round-trip a DRAM buffer", func() {
		data := make([]byte, 256)
		for i := range data {
			data[i] = byte(i * 3)
		}

		buf := dev.NewDRAMBuffer(256, 64)
		queue.EnqueueWriteBuffer(buf, data)

		Expect(queue.EnqueueReadBuffer(buf)).To(Equal(data))
	})

	It("should round-trip a scratch-interleaved buffer", func() {
		data := make([]byte, 512)
		for i := range data {
			data[i] = byte(255 - i)
		}

		buf := dev.NewScratchBuffer(512, 64)
		queue.EnqueueWriteBuffer(buf, data)

		Expect(queue.EnqueueReadBuffer(buf)).To(Equal(data))
	})

	It("should keep scratch buffers above the unreserved base", func() {
		buf := dev.NewScratchBuffer(512, 64)

		lowest, ok := dev.LowestOccupiedScratchAddress(grid.CoreCoord{})
		Expect(ok).To(BeTrue())
		Expect(uint64(buf.Address())).To(Equal(lowest))
		Expect(lowest).To(BeNumerically(">", grid.ScratchUnreservedBase))
	})

	It("should pad odd page sizes to the transfer alignment", func() {
		buf := dev.NewDRAMBuffer(120, 40)

		Expect(buf.NumPages()).To(Equal(uint32(3)))
		Expect(buf.PaddedPageSize()).To(Equal(uint32(64)))
	})

	Context("running a program", func() {
		var (
			p     *program.Program
			cores grid.CoreRangeSet
		)

		BeforeEach(func() {
			cores = grid.NewCoreRangeSet(grid.CoreRange{
				Start: grid.CoreCoord{X: 0, Y: 0},
				End:   grid.CoreCoord{X: 1, Y: 1},
			})

			p = program.NewProgram()
			p.SetOutputRoot(suiteOutputRoot)
			p.AddKernel(program.NewDataMovementKernel(
				"reader", "kernels/test/reader", cores,
				grid.EngineMovement0, []uint32{64}))
			p.AddKernel(program.NewComputeKernel(
				"scale", "kernels/test/scale", cores, []uint32{2}))
			p.AddCircularBuffer(cores,
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))
		})

		It("should run the program end to end", func() {
			Expect(queue.EnqueueProgram(p, build.StubToolchain{})).To(Succeed())
			queue.Finish()
		})

		It("should place the shared buffer at the reserved base", func() {
			Expect(queue.EnqueueProgram(p, build.StubToolchain{})).To(Succeed())

			for _, c := range p.LogicalCores() {
				bufs := p.CircularBuffersOnCore(c)
				Expect(bufs).To(HaveLen(1))
				Expect(bufs[0].Address()).
					To(Equal(uint64(grid.ScratchUnreservedBase)))
			}
		})

		It("should fill the idle movement engine with one blank kernel", func() {
			Expect(queue.EnqueueProgram(p, build.StubToolchain{})).To(Succeed())

			var blanks []*program.Kernel
			for _, id := range p.KernelIDs() {
				if k := p.Kernel(id); k.Name() == "blank" {
					blanks = append(blanks, k)
				}
			}

			Expect(blanks).To(HaveLen(1))
			Expect(blanks[0].Engine()).To(Equal(grid.EngineMovement1))
			Expect(blanks[0].Cores().Ranges()).To(HaveLen(1))
			Expect(blanks[0].Cores().Ranges()[0].NumCores()).To(Equal(4))
		})

		It("should relay every kernel binary to its text region", func() {
			Expect(queue.EnqueueProgram(p, build.StubToolchain{})).To(Succeed())

			for _, id := range p.KernelIDs() {
				k := p.Kernel(id)
				textAddr := uint64(grid.KernelTextBase) +
					uint64(k.Engine())*grid.KernelTextStride

				k.Cores().ForEach(func(c grid.CoreCoord) {
					got := make([]byte, len(k.Binary()))
					dev.ReadCoreScratch(c, textAddr, got)
					Expect(got).To(Equal(k.Binary()))
				})
			}
		})

		It("should seed each core's launch configuration", func() {
			Expect(queue.EnqueueProgram(p, build.StubToolchain{})).To(Succeed())

			allEngines := uint32(1<<grid.EngineMovement0 |
				1<<grid.EngineMovement1 | 1<<grid.EngineCompute)

			for _, c := range p.LogicalCores() {
				var raw [8]byte
				dev.ReadCoreScratch(c, grid.LaunchConfigAddr, raw[:])

				Expect(binary.LittleEndian.Uint32(raw[0:])).To(Equal(allEngines))
				Expect(binary.LittleEndian.Uint32(raw[4:])).
					To(Equal(uint32(grid.RunMsgGo)))
			}
		})

		It("should initialize semaphores before launch", func() {
			p.AddSemaphore(cores, grid.ScratchUnreservedBase+4096, 5)

			Expect(queue.EnqueueProgram(p, build.StubToolchain{})).To(Succeed())

			for _, c := range p.LogicalCores() {
				var raw [4]byte
				dev.ReadCoreScratch(c, grid.ScratchUnreservedBase+4096, raw[:])
				Expect(binary.LittleEndian.Uint32(raw[:])).To(Equal(uint32(5)))
			}
		})
	})
})
