// vecrelay pushes a vector through a DRAM buffer, runs a two-kernel
// program on a 2x2 worker grid, and reads the vector back.
package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"
	"github.com/tilescale/tilescale/build"
	"github.com/tilescale/tilescale/device"
	"github.com/tilescale/tilescale/grid"
	"github.com/tilescale/tilescale/program"
)

const (
	width  = 2
	height = 2

	vectorLen = 256
	pageSize  = 64
)

func buildProgram() *program.Program {
	cores := grid.NewCoreRangeSet(grid.CoreRange{
		Start: grid.CoreCoord{X: 0, Y: 0},
		End:   grid.CoreCoord{X: width - 1, Y: height - 1},
	})

	p := program.NewProgram()
	p.AddKernel(program.NewDataMovementKernel(
		"reader", "kernels/vecrelay/reader", cores,
		grid.EngineMovement0, []uint32{vectorLen}))
	p.AddKernel(program.NewComputeKernel(
		"scale", "kernels/vecrelay/scale", cores, []uint32{2}))

	p.AddCircularBuffer(cores, program.
		NewCircularBufferConfig(2048).
		WithSlot(0, grid.FormatFloat16B))
	p.AddSemaphore(cores, grid.ScratchUnreservedBase+2048, 0)

	return p
}

func run() error {
	engine := sim.NewSerialEngine()

	dev := device.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithSize(width, height).
		Build("Device")
	queue := device.NewCommandQueue(dev)

	input := make([]byte, 4*vectorLen)
	for i := 0; i < vectorLen; i++ {
		binary.LittleEndian.PutUint32(input[4*i:], uint32(i))
	}

	buf := dev.NewDRAMBuffer(uint32(len(input)), pageSize)
	queue.EnqueueWriteBuffer(buf, input)

	p := buildProgram()
	if err := queue.EnqueueProgram(p, build.StubToolchain{}); err != nil {
		return err
	}

	output := queue.EnqueueReadBuffer(buf)
	queue.Finish()

	for i := 0; i < vectorLen; i++ {
		got := binary.LittleEndian.Uint32(output[4*i:])
		if got != uint32(i) {
			return fmt.Errorf("word %d came back as %d", i, got)
		}
	}

	p.WriteAllocationReport(os.Stdout)
	fmt.Printf("relayed %d words through %d cores\n",
		vectorLen, width*height)

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("vecrelay failed", "err", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
