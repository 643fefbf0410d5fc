package noc

// An InterleavedAddrGen produces the interconnect address of each page
// of a buffer that is interleaved across a set of banks. Page i lives
// on bank i%N at slot i/N, so consecutive pages walk the banks
// round-robin starting from bank 0.
type InterleavedAddrGen struct {
	Banks           []Bank
	BankBaseAddress uint64
	PageSize        uint64
}

// NocAddr returns the packed interconnect address of the given page.
func (g *InterleavedAddrGen) NocAddr(pageID uint32) uint64 {
	if len(g.Banks) == 0 {
		panic("address generator has no banks")
	}

	bank := g.Banks[int(pageID)%len(g.Banks)]
	slot := uint64(pageID) / uint64(len(g.Banks))
	offset := bank.Offset + g.BankBaseAddress + slot*g.PageSize

	return Addr(bank.Node, offset)
}
