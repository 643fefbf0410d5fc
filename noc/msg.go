package noc

import "github.com/sarchlab/akita/v4/sim"

// CompletionMsg tells the dispatch core that one worker core has
// finished running its kernel group.
type CompletionMsg struct {
	sim.MsgMeta

	Core NodeID
}

// Meta returns the meta data of the msg.
func (m *CompletionMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone returns a shallow copy of the msg with a new ID.
func (m *CompletionMsg) Clone() sim.Msg {
	c := *m
	c.ID = sim.GetIDGenerator().Generate()
	return &c
}

// CompletionMsgBuilder is a factory for CompletionMsg.
type CompletionMsgBuilder struct {
	src, dst sim.RemotePort
	core     NodeID
}

// WithSrc sets the source port of the msg.
func (b CompletionMsgBuilder) WithSrc(src sim.RemotePort) CompletionMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the msg.
func (b CompletionMsgBuilder) WithDst(dst sim.RemotePort) CompletionMsgBuilder {
	b.dst = dst
	return b
}

// WithCore sets the reporting worker core.
func (b CompletionMsgBuilder) WithCore(core NodeID) CompletionMsgBuilder {
	b.core = core
	return b
}

// Build creates a CompletionMsg.
func (b CompletionMsgBuilder) Build() *CompletionMsg {
	return &CompletionMsg{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		Core: b.core,
	}
}
