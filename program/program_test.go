package program_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tilescale/tilescale/build"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/noc"
	"github.com/tilescale/tilescale/program"
)

type scratchWrite struct {
	core grid.CoreCoord
	addr uint64
	data []byte
}

// fakeDevice satisfies the device queries the program model needs
// without a simulator behind it.
type fakeDevice struct {
	scratchSize    uint64
	lowestOccupied uint64
	writes         []scratchWrite
}

func (d *fakeDevice) ScratchSize() uint64 { return d.scratchSize }

func (d *fakeDevice) LowestOccupiedScratchAddress(
	core grid.CoreCoord,
) (uint64, bool) {
	if d.lowestOccupied == 0 {
		return 0, false
	}
	return d.lowestOccupied, true
}

func (d *fakeDevice) WorkerNode(core grid.CoreCoord) noc.NodeID {
	return noc.Node(core.X+1, core.Y+1)
}

func (d *fakeDevice) DRAMBanks() []noc.Bank    { return nil }
func (d *fakeDevice) ScratchBanks() []noc.Bank { return nil }
func (d *fakeDevice) HostNode() noc.NodeID     { return noc.Node(0, 0) }

func (d *fakeDevice) WriteCoreScratch(
	core grid.CoreCoord,
	addr uint64,
	data []byte,
) {
	d.writes = append(d.writes, scratchWrite{core, addr, data})
}

func rect(x0, y0, x1, y1 int) grid.CoreRangeSet {
	return grid.NewCoreRangeSet(grid.CoreRange{
		Start: grid.CoreCoord{X: x0, Y: y0},
		End:   grid.CoreCoord{X: x1, Y: y1},
	})
}

var _ = Describe("Program", func() {
	var (
		p   *program.Program
		dev *fakeDevice
	)

	BeforeEach(func() {
		p = program.NewProgram()
		dev = &fakeDevice{scratchSize: grid.DefaultScratchSize}
	})

	Context("circular buffer placement", func() {
		It("should place the first buffer at the reserved base", func() {
			id := p.AddCircularBuffer(rect(0, 0, 1, 1),
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))

			p.AllocateCircularBuffers()

			Expect(p.CircularBuffer(id).Address()).
				To(Equal(uint64(grid.ScratchUnreservedBase)))
		})

		It("should place overlapping buffers at the max frontier", func() {
			a := p.AddCircularBuffer(rect(0, 0, 1, 0),
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))
			b := p.AddCircularBuffer(rect(1, 0, 1, 1),
				program.NewCircularBufferConfig(1024).
					WithSlot(1, grid.FormatFloat16B))
			c := p.AddCircularBuffer(rect(1, 1, 1, 1),
				program.NewCircularBufferConfig(512).
					WithSlot(2, grid.FormatFloat16B))

			p.AllocateCircularBuffers()

			base := uint64(grid.ScratchUnreservedBase)
			Expect(p.CircularBuffer(a).Address()).To(Equal(base))

			// (1, 0) already sits at base+2048; (1, 1) is still at
			// base. The shared buffer lands at the higher frontier.
			Expect(p.CircularBuffer(b).Address()).To(Equal(base + 2048))

			// The commit advanced (1, 1) past the gap.
			Expect(p.CircularBuffer(c).Address()).To(Equal(base + 3072))
		})

		It("should not move buffers on repeated allocation", func() {
			a := p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(1024).
					WithSlot(0, grid.FormatFloat16B))

			p.AllocateCircularBuffers()
			addr := p.CircularBuffer(a).Address()

			p.AllocateCircularBuffers()

			Expect(p.CircularBuffer(a).Address()).To(Equal(addr))
		})

		It("should recompute every address after a mutation", func() {
			a := p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(1024).
					WithSlot(0, grid.FormatFloat16B))
			p.AllocateCircularBuffers()

			b := p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(512).
					WithSlot(1, grid.FormatFloat16B))
			p.AllocateCircularBuffers()

			base := uint64(grid.ScratchUnreservedBase)
			Expect(p.CircularBuffer(a).Address()).To(Equal(base))
			Expect(p.CircularBuffer(b).Address()).To(Equal(base + 1024))
		})

		It("should honor an explicit address at or above the frontier", func() {
			id := p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(1024).
					WithSlot(0, grid.FormatFloat16B).
					WithRequestedAddress(grid.ScratchUnreservedBase+4096))

			p.AllocateCircularBuffers()

			Expect(p.CircularBuffer(id).Address()).
				To(Equal(uint64(grid.ScratchUnreservedBase + 4096)))
		})

		It("should reject an explicit address below the frontier", func() {
			p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))
			p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(1024).
					WithSlot(1, grid.FormatFloat16B).
					WithRequestedAddress(grid.ScratchUnreservedBase))

			Expect(p.AllocateCircularBuffers).To(Panic())
		})

		It("should reject a duplicate slot index on a shared core", func() {
			p.AddCircularBuffer(rect(0, 0, 1, 1),
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))

			Expect(func() {
				p.AddCircularBuffer(rect(1, 1, 2, 2),
					program.NewCircularBufferConfig(1024).
						WithSlot(0, grid.FormatFloat32))
			}).To(Panic())
		})

		It("should reject buffers that overflow scratch", func() {
			small := &fakeDevice{scratchSize: grid.ScratchUnreservedBase + 1024}
			p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))
			p.AllocateCircularBuffers()

			Expect(func() {
				p.ValidateCircularBufferRegions(small)
			}).To(Panic())
		})

		It("should reject buffers that clash with persistent buffers", func() {
			clashing := &fakeDevice{
				scratchSize:    grid.DefaultScratchSize,
				lowestOccupied: grid.ScratchUnreservedBase + 512,
			}
			p.AddCircularBuffer(rect(0, 0, 0, 0),
				program.NewCircularBufferConfig(2048).
					WithSlot(0, grid.FormatFloat16B))
			p.AllocateCircularBuffers()

			Expect(func() {
				p.ValidateCircularBufferRegions(clashing)
			}).To(Panic())
		})
	})

	Context("kernel registration", func() {
		It("should reject two kernels on the same engine and core", func() {
			p.AddKernel(program.NewDataMovementKernel(
				"a", "kernels/a", rect(0, 0, 1, 1),
				grid.EngineMovement0, nil))
			p.AddKernel(program.NewDataMovementKernel(
				"b", "kernels/b", rect(1, 1, 2, 2),
				grid.EngineMovement0, nil))

			Expect(func() {
				p.KernelsOnCore(grid.CoreCoord{X: 1, Y: 1})
			}).To(Panic())
		})

		It("should reject a movement kernel on the compute engine", func() {
			Expect(func() {
				program.NewDataMovementKernel(
					"bad", "kernels/bad", rect(0, 0, 0, 0),
					grid.EngineCompute, nil)
			}).To(Panic())
		})

		It("should build the launch payload from the kernel set", func() {
			p.AddKernel(program.NewDataMovementKernel(
				"reader", "kernels/reader", rect(0, 0, 0, 0),
				grid.EngineMovement0, nil))
			p.AddKernel(program.NewComputeKernel(
				"scale", "kernels/scale", rect(0, 0, 0, 0), nil))

			words := p.KernelsOnCore(grid.CoreCoord{X: 0, Y: 0}).Launch.Words()

			wantMask := uint32(1<<grid.EngineMovement0 | 1<<grid.EngineCompute)
			Expect(words[0]).To(Equal(wantMask))
			Expect(words[1]).To(Equal(uint32(grid.RunMsgGo)))
		})
	})

	Context("semaphores", func() {
		It("should seed initial values on every covered core", func() {
			p.AddSemaphore(rect(0, 0, 1, 0), grid.ScratchUnreservedBase+8192, 7)

			p.InitSemaphores(dev)

			Expect(dev.writes).To(HaveLen(2))
			for _, w := range dev.writes {
				Expect(w.addr).To(Equal(uint64(grid.ScratchUnreservedBase + 8192)))
				Expect(w.data).To(Equal([]byte{7, 0, 0, 0}))
			}
		})
	})

	Context("compilation", func() {
		var tc build.StubToolchain

		BeforeEach(func() {
			p.SetOutputRoot(suiteOutputRoot)
			p.AddKernel(program.NewDataMovementKernel(
				"reader", "kernels/reader", rect(0, 0, 1, 1),
				grid.EngineMovement0, []uint32{64}))
			p.AddKernel(program.NewComputeKernel(
				"scale", "kernels/scale", rect(0, 0, 1, 1), []uint32{2}))
		})

		It("should fill the idle engine with one blank kernel", func() {
			Expect(p.Compile(dev, tc)).To(Succeed())

			Expect(p.KernelIDs()).To(HaveLen(3))

			blank := p.Kernel(p.KernelIDs()[2])
			Expect(blank.Name()).To(Equal("blank"))
			Expect(blank.Engine()).To(Equal(grid.EngineMovement1))
			Expect(blank.Cores().Ranges()).To(HaveLen(1))
			Expect(blank.Cores().Ranges()[0]).To(Equal(grid.CoreRange{
				Start: grid.CoreCoord{X: 0, Y: 0},
				End:   grid.CoreCoord{X: 1, Y: 1},
			}))

			for _, c := range p.LogicalCores() {
				g := p.KernelsOnCore(c)
				Expect(g.Has(grid.EngineMovement0)).To(BeTrue())
				Expect(g.Has(grid.EngineMovement1)).To(BeTrue())
				Expect(g.Has(grid.EngineCompute)).To(BeTrue())
			}
		})

		It("should attach a binary to every kernel", func() {
			Expect(p.Compile(dev, tc)).To(Succeed())

			for _, id := range p.KernelIDs() {
				k := p.Kernel(id)
				Expect(k.Binary()).NotTo(BeEmpty())
				Expect(k.BinaryPath()).NotTo(BeEmpty())
			}
		})

		It("should be idempotent between mutations", func() {
			Expect(p.Compile(dev, tc)).To(Succeed())
			numKernels := len(p.KernelIDs())

			Expect(p.Compile(dev, tc)).To(Succeed())

			Expect(p.KernelIDs()).To(HaveLen(numKernels))
		})

		It("should cover every kernel's cores in the worker set", func() {
			Expect(p.Compile(dev, tc)).To(Succeed())

			workers := p.WorkerCoreRangeSet()
			Expect(workers.Cores()).To(HaveLen(4))
		})

		It("should count each core once even when kernel ranges overlap", func() {
			Expect(p.Compile(dev, tc)).To(Succeed())

			total := 0
			for _, r := range p.WorkerCoreRangeSet().Ranges() {
				total += r.NumCores()
			}
			Expect(total).To(Equal(len(p.LogicalCores())))
		})
	})
})
