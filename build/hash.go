package build

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// StructuralHash fingerprints the build parameters that affect the
// produced binary, independent of the kernel's source identity.
func StructuralHash(o *Options) uint64 {
	h := fnv.New64a()

	fmt.Fprintf(h, "engine=%d;", o.Engine)
	for slot, f := range o.Formats {
		if f != 0 {
			fmt.Fprintf(h, "cb%d=%d;", slot, f)
		}
	}
	for _, arg := range o.CompileArgs {
		fmt.Fprintf(h, "arg=%d;", arg)
	}

	keys := make([]string, 0, len(o.Defines))
	for k := range o.Defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "def=%s=%s;", k, o.Defines[k])
	}

	return h.Sum64()
}

// CompileHash combines the structural hash with the kernel's own
// identity hash into the content hash that keys the artifact cache.
func CompileHash(o *Options, ident uint64) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d::%d", StructuralHash(o), ident)
	return h.Sum64()
}
