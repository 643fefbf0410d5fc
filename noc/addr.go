// Package noc defines the network-on-chip addressing scheme and the
// asynchronous transfer API that the dispatch core drives.
package noc

import "fmt"

// nodeIDBits is the width of one coordinate inside a NodeID.
const nodeIDBits = 6

// A NodeID is the packed XY coordinate of an interconnect endpoint.
type NodeID uint32

// Node packs a physical XY coordinate into a NodeID.
func Node(x, y int) NodeID {
	return NodeID(uint32(y)<<nodeIDBits | uint32(x))
}

// X returns the X coordinate of the node.
func (n NodeID) X() int {
	return int(n & (1<<nodeIDBits - 1))
}

// Y returns the Y coordinate of the node.
func (n NodeID) Y() int {
	return int(n >> nodeIDBits & (1<<nodeIDBits - 1))
}

func (n NodeID) String() string {
	return fmt.Sprintf("noc(%d, %d)", n.X(), n.Y())
}

// Addr packs a node and a byte offset within that node into the 64-bit
// interconnect address the transfer engine consumes.
func Addr(n NodeID, offset uint64) uint64 {
	return uint64(n)<<32 | offset
}

// AddrNode extracts the node half of a packed interconnect address.
func AddrNode(addr uint64) NodeID {
	return NodeID(addr >> 32)
}

// AddrOffset extracts the byte-offset half of a packed address.
func AddrOffset(addr uint64) uint64 {
	return addr & (1<<32 - 1)
}

// MulticastNode packs an inclusive rectangle of destination nodes into
// a single multicast node encoding. The rectangle is replicated to
// every node it covers by one multicast write.
func MulticastNode(start, end NodeID) NodeID {
	return NodeID(uint32(end)<<(2*nodeIDBits) | uint32(start))
}

// MulticastRect unpacks a multicast node encoding.
func MulticastRect(n NodeID) (start, end NodeID) {
	start = n & (1<<(2*nodeIDBits) - 1)
	end = n >> (2 * nodeIDBits)
	return start, end
}

// A Bank is one interleaving target of a buffer: a node plus the byte
// offset at which that node's bank storage begins.
type Bank struct {
	Node   NodeID
	Offset uint64
}
