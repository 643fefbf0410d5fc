// Package program models the unit of deployable work: kernels grouped
// per core, circular buffers placed in scratch memory, and semaphores,
// compiled together into dispatchable binaries.
package program

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/tilescale/tilescale/grid"
)

// KernelID identifies a kernel within one program.
type KernelID int

// A Kernel is a compiled unit bound to one processor engine and a set
// of cores. Binary path, content hash, and blob are filled in by
// Program.Compile.
type Kernel struct {
	id         KernelID
	name       string
	sourcePath string
	engine     grid.Engine
	cores      grid.CoreRangeSet

	compileArgs []uint32
	defines     map[string]string

	binaryPath string
	hash       uint64
	binary     []byte
}

// NewDataMovementKernel creates a kernel for one of the two movement
// engines.
func NewDataMovementKernel(
	name, sourcePath string,
	cores grid.CoreRangeSet,
	engine grid.Engine,
	compileArgs []uint32,
) *Kernel {
	if engine != grid.EngineMovement0 && engine != grid.EngineMovement1 {
		panic(fmt.Sprintf(
			"data movement kernel %s cannot run on engine %s",
			name, engine.Name()))
	}

	return &Kernel{
		name:        name,
		sourcePath:  sourcePath,
		engine:      engine,
		cores:       cores,
		compileArgs: compileArgs,
		defines:     make(map[string]string),
	}
}

// NewComputeKernel creates a kernel for the compute engine.
func NewComputeKernel(
	name, sourcePath string,
	cores grid.CoreRangeSet,
	compileArgs []uint32,
) *Kernel {
	return &Kernel{
		name:        name,
		sourcePath:  sourcePath,
		engine:      grid.EngineCompute,
		cores:       cores,
		compileArgs: compileArgs,
		defines:     make(map[string]string),
	}
}

// ID returns the kernel's program-scoped id.
func (k *Kernel) ID() KernelID { return k.id }

// Name returns the kernel name.
func (k *Kernel) Name() string { return k.name }

// Engine returns the processor engine the kernel runs on.
func (k *Kernel) Engine() grid.Engine { return k.engine }

// Cores returns the kernel's core assignment.
func (k *Kernel) Cores() grid.CoreRangeSet { return k.cores }

// Define adds a compile-time definition.
func (k *Kernel) Define(key, value string) {
	k.defines[key] = value
}

// BinaryPath returns the cache path suffix set by compile.
func (k *Kernel) BinaryPath() string { return k.binaryPath }

// Hash returns the content hash set by compile.
func (k *Kernel) Hash() uint64 { return k.hash }

// Binary returns the compiled blob.
func (k *Kernel) Binary() []byte { return k.binary }

// identHash fingerprints the kernel's own source and configuration,
// independent of the circular-buffer formats around it.
func (k *Kernel) identHash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s;%s;%d;", k.name, k.sourcePath, k.engine)
	for _, arg := range k.compileArgs {
		fmt.Fprintf(h, "%d,", arg)
	}
	keys := make([]string, 0, len(k.defines))
	for key := range k.defines {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(h, "%s=%s;", key, k.defines[key])
	}
	return h.Sum64()
}

// A LaunchPayload is the trigger a worker core receives in its launch
// mailbox: which engines to enable and the go value.
type LaunchPayload struct {
	EnableMovement0 bool
	EnableMovement1 bool
	EnableCompute   bool
	Run             uint32
}

// Words serializes the payload into the two-word mailbox format.
func (p LaunchPayload) Words() [2]uint32 {
	var mask uint32
	if p.EnableMovement0 {
		mask |= 1 << grid.EngineMovement0
	}
	if p.EnableMovement1 {
		mask |= 1 << grid.EngineMovement1
	}
	if p.EnableCompute {
		mask |= 1 << grid.EngineCompute
	}
	return [2]uint32{mask, p.Run}
}

// A KernelGroup is the per-core view of a program: the kernel occupying
// each engine, plus the prebuilt launch trigger. It is derived state,
// rebuilt whenever the kernel set changes.
type KernelGroup struct {
	Movement0 KernelID
	Movement1 KernelID
	Compute   KernelID

	Launch LaunchPayload
}

func newKernelGroup() *KernelGroup {
	return &KernelGroup{
		Movement0: -1,
		Movement1: -1,
		Compute:   -1,
		Launch:    LaunchPayload{Run: grid.RunMsgGo},
	}
}

// Has reports whether the group fills the given engine.
func (g *KernelGroup) Has(e grid.Engine) bool {
	switch e {
	case grid.EngineMovement0:
		return g.Movement0 >= 0
	case grid.EngineMovement1:
		return g.Movement1 >= 0
	case grid.EngineCompute:
		return g.Compute >= 0
	default:
		panic("unsupported kernel engine")
	}
}

func (g *KernelGroup) update(k *Kernel) {
	if g.Has(k.engine) {
		panic(fmt.Sprintf(
			"kernel %s: core already hosts a kernel on engine %s",
			k.name, k.engine.Name()))
	}

	switch k.engine {
	case grid.EngineMovement0:
		g.Movement0 = k.id
		g.Launch.EnableMovement0 = true
	case grid.EngineMovement1:
		g.Movement1 = k.id
		g.Launch.EnableMovement1 = true
	case grid.EngineCompute:
		g.Compute = k.id
		g.Launch.EnableCompute = true
	default:
		panic("unsupported kernel engine")
	}
}
