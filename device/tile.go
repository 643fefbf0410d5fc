package device

import (
	"encoding/binary"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tilescale/tilescale/dispatch"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/noc"
)

// A Tile models one worker core. It watches its launch mailbox, runs
// the assigned kernel group for a fixed number of cycles, and reports
// completion to the dispatch core. Kernel binaries are opaque; the
// countdown stands in for execution, so only the mailbox run word is
// consumed and the engine enable mask delivered with it is ignored.
type Tile struct {
	*sim.TickingComponent

	coord   grid.CoreCoord
	node    noc.NodeID
	scratch []byte

	toDispatch     sim.Port
	dispatchRemote sim.RemotePort

	runLatency int
	remaining  int
	running    bool
}

// TileBuilder can create worker tiles.
type TileBuilder struct {
	engine     sim.Engine
	freq       sim.Freq
	coord      grid.CoreCoord
	node       noc.NodeID
	scratch    []byte
	runLatency int
}

// MakeTileBuilder returns a builder with default run latency.
func MakeTileBuilder() TileBuilder {
	return TileBuilder{
		runLatency: 4,
	}
}

// WithEngine sets the engine that drives the tile.
func (b TileBuilder) WithEngine(engine sim.Engine) TileBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the tile.
func (b TileBuilder) WithFreq(freq sim.Freq) TileBuilder {
	b.freq = freq
	return b
}

// WithCoord sets the logical coordinate of the tile.
func (b TileBuilder) WithCoord(c grid.CoreCoord) TileBuilder {
	b.coord = c
	return b
}

// WithNode sets the interconnect node of the tile.
func (b TileBuilder) WithNode(n noc.NodeID) TileBuilder {
	b.node = n
	return b
}

// WithScratch sets the backing scratch memory of the tile.
func (b TileBuilder) WithScratch(scratch []byte) TileBuilder {
	b.scratch = scratch
	return b
}

// WithRunLatency sets how many cycles a launched kernel group runs.
func (b TileBuilder) WithRunLatency(cycles int) TileBuilder {
	if cycles < 1 {
		panic("run latency must be at least 1 cycle")
	}
	b.runLatency = cycles
	return b
}

// Build creates a tile.
func (b TileBuilder) Build(name string) *Tile {
	t := &Tile{
		coord:      b.coord,
		node:       b.node,
		scratch:    b.scratch,
		runLatency: b.runLatency,
	}

	t.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, t)
	t.toDispatch = sim.NewPort(t, 1, 1, name+".ToDispatch")
	t.AddPort("ToDispatch", t.toDispatch)

	return t
}

// Coord returns the logical coordinate of the tile.
func (t *Tile) Coord() grid.CoreCoord { return t.coord }

// Node returns the interconnect node of the tile.
func (t *Tile) Node() noc.NodeID { return t.node }

// Tick runs the tile for one cycle.
func (t *Tile) Tick() bool {
	if !t.running {
		return t.checkMailbox()
	}

	t.remaining--
	if t.remaining > 0 {
		return true
	}

	return t.reportCompletion()
}

func (t *Tile) checkMailbox() bool {
	run := binary.LittleEndian.Uint32(t.scratch[grid.LaunchMailboxAddr+4:])
	if run != grid.RunMsgGo {
		return false
	}

	binary.LittleEndian.PutUint32(t.scratch[grid.LaunchMailboxAddr+4:], 0)
	t.running = true
	t.remaining = t.runLatency

	dispatch.Trace("KernelStart", "Core", t.coord.String())

	return true
}

func (t *Tile) reportCompletion() bool {
	msg := noc.CompletionMsgBuilder{}.
		WithSrc(t.toDispatch.AsRemote()).
		WithDst(t.dispatchRemote).
		WithCore(t.node).
		Build()

	err := t.toDispatch.Send(msg)
	if err != nil {
		t.remaining = 1
		return true
	}

	t.running = false

	dispatch.Trace("KernelDone", "Core", t.coord.String())

	return true
}

// dispatchCore drains worker completion messages and bumps the
// counter the interpreter busy-waits on.
type dispatchCore struct {
	*sim.TickingComponent

	completion sim.Port
	scratch    []byte
}

func newDispatchCore(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	scratch []byte,
	numWorkers int,
) *dispatchCore {
	c := &dispatchCore{
		scratch: scratch,
	}

	c.TickingComponent = sim.NewTickingComponent(name, engine, freq, c)
	c.completion = sim.NewPort(c, numWorkers, 1, name+".Completion")
	c.AddPort("Completion", c.completion)

	return c
}

// Tick retires one completion message per cycle.
func (c *dispatchCore) Tick() bool {
	item := c.completion.PeekIncoming()
	if item == nil {
		return false
	}
	c.completion.RetrieveIncoming()

	msg := item.(*noc.CompletionMsg)
	count := binary.LittleEndian.Uint32(c.scratch[grid.DispatchMessageAddr:])
	binary.LittleEndian.PutUint32(c.scratch[grid.DispatchMessageAddr:], count+1)

	dispatch.Trace("WorkerDone", "Node", msg.Core.String(), "Count", count+1)

	return true
}
