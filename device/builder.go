package device

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/noc"
)

// Builder can build simulated devices.
type Builder struct {
	engine       sim.Engine
	freq         sim.Freq
	width        int
	height       int
	numDRAMBanks int
	dramBankSize uint64
	hostMemSize  uint64
	scratchSize  uint64
	runLatency   int
}

// MakeBuilder returns a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		freq:         1 * sim.GHz,
		width:        8,
		height:       8,
		numDRAMBanks: 8,
		dramBankSize: 1 << 24,
		hostMemSize:  1 << 24,
		scratchSize:  grid.DefaultScratchSize,
		runLatency:   4,
	}
}

// WithEngine sets the engine that drives the device simulation.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the device.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithSize sets the worker grid dimensions. The interconnect encoding
// reserves row 0 and column 0, which bounds each dimension at 62.
func (b Builder) WithSize(width, height int) Builder {
	if width < 1 || height < 1 || width > 62 || height > 62 {
		panic(fmt.Sprintf("unsupported grid size %dx%d", width, height))
	}
	b.width = width
	b.height = height
	return b
}

// WithDRAMBanks sets the number of DRAM banks.
func (b Builder) WithDRAMBanks(n int) Builder {
	if n < 1 || n > 62 {
		panic(fmt.Sprintf("unsupported DRAM bank count %d", n))
	}
	b.numDRAMBanks = n
	return b
}

// WithScratchSize sets the per-core scratch capacity.
func (b Builder) WithScratchSize(size uint64) Builder {
	b.scratchSize = size
	return b
}

// WithRunLatency sets how many cycles a launched kernel group runs on
// a worker tile.
func (b Builder) WithRunLatency(cycles int) Builder {
	b.runLatency = cycles
	return b
}

// Build creates a simulated device.
func (b Builder) Build(name string) *Device {
	if b.engine == nil {
		b.engine = sim.NewSerialEngine()
	}

	d := &Device{
		name:            name,
		engine:          b.engine,
		width:           b.width,
		height:          b.height,
		scratchSize:     b.scratchSize,
		hostMem:         make([]byte, b.hostMemSize),
		dispatchScratch: make([]byte, b.scratchSize),
		tiles:           make(map[grid.CoreCoord]*Tile),
		mems:            make(map[noc.NodeID][]byte),
		lowestOccupied:  b.scratchSize,
	}

	d.mems[d.HostNode()] = d.hostMem
	d.mems[d.DispatchNode()] = d.dispatchScratch

	for i := 0; i < b.numDRAMBanks; i++ {
		mem := make([]byte, b.dramBankSize)
		d.dramMem = append(d.dramMem, mem)
		d.mems[noc.Node(0, i+1)] = mem
	}

	dc := newDispatchCore(
		name+".DispatchCore", b.engine, b.freq,
		d.dispatchScratch, b.width*b.height)

	conn := directconnection.MakeBuilder().
		WithEngine(b.engine).
		WithFreq(b.freq).
		Build(name + ".Completion")
	conn.PlugIn(dc.completion)

	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			coord := grid.CoreCoord{X: x, Y: y}
			b.buildTile(d, name, coord, dc, conn)
		}
	}

	return d
}

func (b Builder) buildTile(
	d *Device,
	name string,
	coord grid.CoreCoord,
	dc *dispatchCore,
	conn sim.Connection,
) {
	scratch := make([]byte, b.scratchSize)
	node := noc.Node(coord.X+1, coord.Y+1)

	tile := MakeTileBuilder().
		WithEngine(b.engine).
		WithFreq(b.freq).
		WithCoord(coord).
		WithNode(node).
		WithScratch(scratch).
		WithRunLatency(b.runLatency).
		Build(fmt.Sprintf("%s.Tile[%d][%d]", name, coord.X, coord.Y))
	tile.dispatchRemote = dc.completion.AsRemote()

	conn.PlugIn(tile.toDispatch)

	d.tiles[coord] = tile
	d.mems[node] = scratch
}
