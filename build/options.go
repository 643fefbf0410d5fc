// Package build turns kernels into cached binaries. Builds are keyed
// by a content hash over the kernel's structural build parameters and
// its source identity; a process-wide registry guarantees each hash is
// built at most once.
package build

import "github.com/tilescale/tilescale/grid"

// Options carries the per-kernel build parameters handed to the
// toolchain and folded into the content hash.
type Options struct {
	Name       string
	SourcePath string
	Engine     grid.Engine

	// OutputRoot is the artifact cache directory. One subdirectory per
	// (name, hash) pair.
	OutputRoot string

	// CompileArgs are the kernel's compile-time arguments.
	CompileArgs []uint32

	// Defines are extra preprocessor-style definitions.
	Defines map[string]string

	// Formats holds the data format of every circular-buffer slot
	// visible to the kernel's cores.
	Formats [grid.NumCircularBufferSlots]grid.DataFormat
}

// SetCircularBufferFormat records the data format of one slot.
func (o *Options) SetCircularBufferFormat(slot int, f grid.DataFormat) {
	o.Formats[slot] = f
}
