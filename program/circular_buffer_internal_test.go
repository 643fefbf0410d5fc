package program

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tilescale/tilescale/grid"
)

var _ = Describe("circularBufferAllocator", func() {
	var alloc *circularBufferAllocator

	BeforeEach(func() {
		alloc = newCircularBufferAllocator()
	})

	It("should start its candidate at the reserved base", func() {
		Expect(alloc.addressCandidate()).
			To(Equal(uint64(grid.ScratchUnreservedBase)))
	})

	It("should extend the last region on a contiguous mark", func() {
		alloc.markAddress(grid.ScratchUnreservedBase, 1024)
		alloc.markAddress(grid.ScratchUnreservedBase+1024, 512)

		Expect(alloc.regions).To(HaveLen(1))
		Expect(alloc.addressCandidate()).
			To(Equal(uint64(grid.ScratchUnreservedBase + 1536)))
	})

	It("should append a region after a gap", func() {
		alloc.markAddress(grid.ScratchUnreservedBase, 1024)
		alloc.markAddress(grid.ScratchUnreservedBase+4096, 512)

		Expect(alloc.regions).To(HaveLen(2))
		Expect(alloc.addressCandidate()).
			To(Equal(uint64(grid.ScratchUnreservedBase + 4608)))
	})

	It("should reject marks below the frontier", func() {
		alloc.markAddress(grid.ScratchUnreservedBase, 1024)

		Expect(func() {
			alloc.markAddress(grid.ScratchUnreservedBase+512, 64)
		}).To(Panic())
	})

	It("should keep claimed slots across a region reset", func() {
		alloc.addIndex(3)
		alloc.markAddress(grid.ScratchUnreservedBase, 1024)

		alloc.resetRegions()

		Expect(alloc.indices & (1 << 3)).NotTo(BeZero())
		Expect(alloc.addressCandidate()).
			To(Equal(uint64(grid.ScratchUnreservedBase)))
	})

	It("should reject claiming a slot twice", func() {
		alloc.addIndex(5)
		Expect(func() { alloc.addIndex(5) }).To(Panic())
	})
})
