package noc

// A TransferEngine is the asynchronous copy interface exposed to the
// resident dispatch core. Async calls only issue the transfer; data is
// not guaranteed to have moved until the matching barrier returns.
// Barriers confirm every transfer issued since the previous barrier of
// the same direction, in issue order.
type TransferEngine interface {
	// AsyncRead pulls size bytes from the packed interconnect address
	// src into the resident core's scratch at localAddr.
	AsyncRead(src uint64, localAddr uint32, size uint32)

	// AsyncWrite pushes size bytes from the resident core's scratch at
	// localAddr to the packed interconnect address dst.
	AsyncWrite(localAddr uint32, dst uint64, size uint32)

	// AsyncWriteMulticast pushes one copy of the payload to every node
	// in the multicast rectangle encoded in dst. numReceivers is the
	// number of destination nodes the fabric will acknowledge.
	AsyncWriteMulticast(localAddr uint32, dst uint64, size uint32, numReceivers uint32)

	// ReadBarrier blocks until all issued reads have landed.
	ReadBarrier()

	// WriteBarrier blocks until all issued writes have drained.
	WriteBarrier()

	// Local exposes the resident core's scratch memory. The command
	// stream, the staging region, and the completion counter live here.
	Local() []byte

	// PollTick lets the backend make progress while the dispatch core
	// busy-waits on the launch completion counter.
	PollTick()
}
