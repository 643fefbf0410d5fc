package program

import (
	"fmt"
	"sync/atomic"

	"github.com/tilescale/tilescale/build"
	"github.com/tilescale/tilescale/grid"
)

var programCounter atomic.Uint64

// A Program aggregates kernels, circular buffers, and semaphores, and
// derives the per-core views the dispatcher needs. Mutation methods
// are not safe for concurrent callers on the same Program.
type Program struct {
	id uint64

	kernelIDs    []KernelID
	kernelByID   map[KernelID]*Kernel
	nextKernelID KernelID

	circularBuffers      []*CircularBuffer
	circularBufferByID   map[CircularBufferID]*CircularBuffer
	nextCircularBufferID CircularBufferID

	semaphores []Semaphore

	perCoreCBAllocator map[grid.CoreCoord]*circularBufferAllocator
	coreToKernelGroup  map[grid.CoreCoord]*KernelGroup
	workerCores        grid.CoreRangeSet

	compileNeeded      bool
	cbAllocationNeeded bool

	outputRoot string
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		id:                 programCounter.Add(1) - 1,
		kernelByID:         make(map[KernelID]*Kernel),
		circularBufferByID: make(map[CircularBufferID]*CircularBuffer),
		perCoreCBAllocator: make(map[grid.CoreCoord]*circularBufferAllocator),
		coreToKernelGroup:  make(map[grid.CoreCoord]*KernelGroup),
		outputRoot:         build.DefaultOutputRoot(),
	}
}

// ID returns the process-wide program id.
func (p *Program) ID() uint64 { return p.id }

// SetOutputRoot overrides the artifact cache directory.
func (p *Program) SetOutputRoot(root string) {
	p.outputRoot = root
}

// AddKernel registers a kernel and returns its id. The per-core kernel
// grouping and the compiled state are invalidated.
func (p *Program) AddKernel(k *Kernel) KernelID {
	p.invalidateCompile()

	k.id = p.nextKernelID
	p.nextKernelID++
	p.kernelIDs = append(p.kernelIDs, k.id)
	p.kernelByID[k.id] = k
	p.coreToKernelGroup = make(map[grid.CoreCoord]*KernelGroup)

	return k.id
}

// Kernel returns the kernel with the given id.
func (p *Program) Kernel(id KernelID) *Kernel {
	k, ok := p.kernelByID[id]
	if !ok {
		panic(fmt.Sprintf("expected kernel with id %d to be in program %d", id, p.id))
	}
	return k
}

// KernelIDs returns the registered kernel ids in insertion order.
func (p *Program) KernelIDs() []KernelID {
	return p.kernelIDs
}

// AddCircularBuffer registers a ring buffer against a core-range set
// and returns its id. Claiming a slot index already taken on any
// covered core is a fatal configuration error.
func (p *Program) AddCircularBuffer(
	cores grid.CoreRangeSet,
	config CircularBufferConfig,
) CircularBufferID {
	p.invalidateCompile()
	p.invalidateCircularBufferAllocation()

	b := &CircularBuffer{
		id:     p.nextCircularBufferID,
		cores:  cores,
		config: config,
	}
	p.nextCircularBufferID++

	cores.ForEach(func(c grid.CoreCoord) {
		alloc, ok := p.perCoreCBAllocator[c]
		if !ok {
			alloc = newCircularBufferAllocator()
			p.perCoreCBAllocator[c] = alloc
		}
		for _, slot := range b.SlotIndices() {
			alloc.addIndex(slot)
		}
	})

	p.circularBuffers = append(p.circularBuffers, b)
	p.circularBufferByID[b.id] = b

	return b.id
}

// CircularBuffer returns the buffer with the given id.
func (p *Program) CircularBuffer(id CircularBufferID) *CircularBuffer {
	b, ok := p.circularBufferByID[id]
	if !ok {
		panic(fmt.Sprintf("no circular buffer with id %d exists in program %d", id, p.id))
	}
	return b
}

// CircularBuffersOnCore returns the buffers covering the core.
func (p *Program) CircularBuffersOnCore(c grid.CoreCoord) []*CircularBuffer {
	var bufs []*CircularBuffer
	for _, b := range p.circularBuffers {
		if b.IsOnCore(c) {
			bufs = append(bufs, b)
		}
	}
	return bufs
}

// CircularBuffersOnCoreRange returns the buffers overlapping the
// rectangle.
func (p *Program) CircularBuffersOnCoreRange(r grid.CoreRange) []*CircularBuffer {
	var bufs []*CircularBuffer
	for _, b := range p.circularBuffers {
		if b.IsOnCoreRange(r) {
			bufs = append(bufs, b)
		}
	}
	return bufs
}

// AddSemaphore registers a synchronization counter at the given
// scratch address with an initial value.
func (p *Program) AddSemaphore(cores grid.CoreRangeSet, address uint64, initial uint32) {
	p.invalidateCompile()
	p.semaphores = append(p.semaphores, Semaphore{
		cores:        cores,
		address:      address,
		initialValue: initial,
	})
}

// SemaphoresOnCore returns the semaphores initialized on the core.
func (p *Program) SemaphoresOnCore(c grid.CoreCoord) []Semaphore {
	var sems []Semaphore
	for _, s := range p.semaphores {
		if s.InitializedOnCore(c) {
			sems = append(sems, s)
		}
	}
	return sems
}

// NumSemaphores returns the number of registered semaphores.
func (p *Program) NumSemaphores() int {
	return len(p.semaphores)
}

// InitSemaphores writes every semaphore's initial value into the
// scratch of each covered core.
func (p *Program) InitSemaphores(device grid.Device) {
	for _, s := range p.semaphores {
		s.cores.ForEach(func(c grid.CoreCoord) {
			device.WriteCoreScratch(c, s.address, s.valueBytes())
		})
	}
}

// KernelsOnCore returns the kernel group of the core, or nil if no
// kernel runs there.
func (p *Program) KernelsOnCore(c grid.CoreCoord) *KernelGroup {
	return p.coreToKernelGroups()[c]
}

// coreToKernelGroups lazily rebuilds the core-to-group map from the
// kernel set.
func (p *Program) coreToKernelGroups() map[grid.CoreCoord]*KernelGroup {
	if len(p.coreToKernelGroup) == 0 {
		for _, id := range p.kernelIDs {
			k := p.kernelByID[id]
			k.cores.ForEach(func(c grid.CoreCoord) {
				g, ok := p.coreToKernelGroup[c]
				if !ok {
					g = newKernelGroup()
					p.coreToKernelGroup[c] = g
				}
				g.update(k)
			})
		}
	}
	return p.coreToKernelGroup
}

// LogicalCores returns the union of all kernels' core sets, each core
// reported once.
func (p *Program) LogicalCores() []grid.CoreCoord {
	var all grid.CoreRangeSet
	for _, id := range p.kernelIDs {
		all = all.Merge(p.kernelByID[id].cores)
	}
	return all.Cores()
}

// WorkerCoreRangeSet returns every core covered by a kernel as a set
// of disjoint rectangles, so launch accounting counts each core once.
// It is rebuilt during compile.
func (p *Program) WorkerCoreRangeSet() grid.CoreRangeSet {
	return p.workerCores
}

func (p *Program) invalidateCompile() {
	p.compileNeeded = true
}

func (p *Program) invalidateCircularBufferAllocation() {
	if p.cbAllocationNeeded {
		return
	}
	for _, alloc := range p.perCoreCBAllocator {
		alloc.resetRegions()
	}
	p.cbAllocationNeeded = true
}

// AllocateCircularBuffers resolves every buffer's address. It is a
// no-op unless a buffer was added or addresses were reset since the
// last allocation. Buffers are placed in insertion order: each
// buffer's address is the maximum of its cores' frontiers, or the
// explicitly requested address if one was given (which must not lie
// below that maximum), and the placement is committed on every
// participating core.
func (p *Program) AllocateCircularBuffers() {
	if !p.cbAllocationNeeded {
		return
	}

	for _, b := range p.circularBuffers {
		var computed uint64
		var allocators []*circularBufferAllocator

		b.cores.ForEach(func(c grid.CoreCoord) {
			alloc := p.perCoreCBAllocator[c]
			if candidate := alloc.addressCandidate(); candidate > computed {
				computed = candidate
			}
			allocators = append(allocators, alloc)
		})

		if requested, ok := b.config.RequestedAddress(); ok {
			if requested < computed {
				panic(fmt.Sprintf(
					"specified address %d should be at max local buffer region "+
						"for core range set, try %d instead", requested, computed))
			}
			computed = requested
		}

		for _, alloc := range allocators {
			alloc.markAddress(computed, b.Size())
		}

		b.address = computed
		b.allocated = true
	}

	p.cbAllocationNeeded = false
}

// ValidateCircularBufferRegions checks every core's occupied scratch
// span against the device: it must fit in scratch and stay below the
// lowest statically allocated address. Violations are fatal.
func (p *Program) ValidateCircularBufferRegions(device grid.Device) {
	for c, alloc := range p.perCoreCBAllocator {
		top := alloc.regions[len(alloc.regions)-1].end

		if top > device.ScratchSize() {
			panic(fmt.Sprintf(
				"local buffers on core %s grow to %d B which is beyond "+
					"max scratch size of %d B", c, top, device.ScratchSize()))
		}

		if lowest, ok := device.LowestOccupiedScratchAddress(c); ok && lowest < top {
			panic(fmt.Sprintf(
				"circular buffers in program %d clash with persistent buffers "+
					"on core %s: persistent buffer allocated at %d and local "+
					"buffers end at %d", p.id, c, lowest, top))
		}
	}
}

// addBlankKernels fills every (core, engine) gap left after explicit
// registration with a shared no-op kernel, one registration per engine
// covering all gap cores of that engine.
func (p *Program) addBlankKernels() {
	missing := map[grid.Engine][]grid.CoreCoord{}

	for _, c := range p.LogicalCores() {
		g := p.KernelsOnCore(c)
		for _, e := range []grid.Engine{
			grid.EngineMovement0, grid.EngineMovement1, grid.EngineCompute,
		} {
			if !g.Has(e) {
				missing[e] = append(missing[e], c)
			}
		}
	}

	for _, e := range []grid.Engine{grid.EngineMovement0, grid.EngineMovement1} {
		if cores := missing[e]; len(cores) > 0 {
			p.AddKernel(NewDataMovementKernel(
				"blank", build.BlankSourcePath, coalesceCores(cores), e, nil))
		}
	}
	if cores := missing[grid.EngineCompute]; len(cores) > 0 {
		p.AddKernel(NewComputeKernel(
			"blank", build.BlankSourcePath, coalesceCores(cores), nil))
	}
}

// coalesceCores merges a sorted core list into rectangles: maximal row
// runs first, then vertically adjacent runs of the same width.
func coalesceCores(cores []grid.CoreCoord) grid.CoreRangeSet {
	var ranges []grid.CoreRange

	run := grid.SingleCore(cores[0])
	for _, c := range cores[1:] {
		if c.Y == run.End.Y && c.X == run.End.X+1 {
			run.End = c
			continue
		}
		ranges = append(ranges, run)
		run = grid.SingleCore(c)
	}
	ranges = append(ranges, run)

	var merged []grid.CoreRange
	for _, r := range ranges {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if r.Start.X == prev.Start.X && r.End.X == prev.End.X &&
				r.Start.Y == prev.End.Y+1 {
				prev.End = r.End
				continue
			}
		}
		merged = append(merged, r)
	}

	return grid.NewCoreRangeSet(merged...)
}

// buildOptions derives one kernel's build parameters from its core
// assignment and the data formats of overlapping circular buffers.
func (p *Program) buildOptions(k *Kernel) *build.Options {
	o := &build.Options{
		Name:        k.name,
		SourcePath:  k.sourcePath,
		Engine:      k.engine,
		OutputRoot:  p.outputRoot,
		CompileArgs: k.compileArgs,
		Defines:     k.defines,
	}

	for _, r := range k.cores.Ranges() {
		for _, b := range p.CircularBuffersOnCoreRange(r) {
			for _, slot := range b.SlotIndices() {
				o.SetCircularBufferFormat(slot, b.Format(slot))
			}
		}
	}

	return o
}

// Compile builds every kernel of the program into a cached binary.
// Idempotent between mutations; any toolchain failure aborts the whole
// call. The shared blank kernel is prebuilt once per process before
// any other kernel compiles.
func (p *Program) Compile(device grid.Device, tc build.Toolchain) error {
	if !p.compileNeeded {
		return nil
	}
	if device == nil {
		panic(fmt.Sprintf("program %d needs a device to compile for", p.id))
	}

	if err := build.PrebuildBlank(tc, p.outputRoot); err != nil {
		return err
	}

	p.addBlankKernels()

	units := make([]*build.Unit, 0, len(p.kernelIDs))
	for _, id := range p.kernelIDs {
		k := p.kernelByID[id]
		units = append(units, &build.Unit{
			Options: p.buildOptions(k),
			Ident:   k.identHash(),
		})
	}

	if err := build.Compile(units, tc); err != nil {
		return err
	}

	for i, id := range p.kernelIDs {
		k := p.kernelByID[id]
		k.binaryPath = units[i].PathSuffix
		k.hash = units[i].Hash
		k.binary = units[i].Binary
	}

	p.constructWorkerCoreRangeSet()
	p.compileNeeded = false
	return nil
}

func (p *Program) constructWorkerCoreRangeSet() {
	cores := p.LogicalCores()
	if len(cores) == 0 {
		p.workerCores = grid.CoreRangeSet{}
		return
	}
	p.workerCores = coalesceCores(cores)
}
