package program

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tilescale/tilescale/grid"
)

// WriteAllocationReport renders the per-core scratch occupancy of the
// program as a table. Call after AllocateCircularBuffers.
func (p *Program) WriteAllocationReport(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Program %d circular buffer regions", p.id))
	t.AppendHeader(table.Row{"Core", "Slots", "Regions", "Top"})

	for _, c := range sortedAllocatorCores(p) {
		alloc := p.perCoreCBAllocator[c]

		slots := ""
		for slot := 0; slot < grid.NumCircularBufferSlots; slot++ {
			if alloc.indices&(1<<slot) != 0 {
				if slots != "" {
					slots += " "
				}
				slots += fmt.Sprintf("%d", slot)
			}
		}

		regions := ""
		for i, r := range alloc.regions {
			if i > 0 {
				regions += " "
			}
			regions += fmt.Sprintf("[%#x, %#x)", r.start, r.end)
		}

		t.AppendRow(table.Row{
			c.String(), slots, regions,
			fmt.Sprintf("%#x", alloc.addressCandidate()),
		})
	}

	t.Render()
}

func sortedAllocatorCores(p *Program) []grid.CoreCoord {
	var ranges []grid.CoreRange
	for c := range p.perCoreCBAllocator {
		ranges = append(ranges, grid.SingleCore(c))
	}
	return grid.NewCoreRangeSet(ranges...).Cores()
}
