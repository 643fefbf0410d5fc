package build

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BlankSourcePath is the source identity of the shared no-op kernel.
const BlankSourcePath = "kernels/blank"

// A Unit is one kernel's trip through the pipeline. Compile fills in
// the result fields.
type Unit struct {
	Options *Options

	// Ident is the kernel's source-identity hash.
	Ident uint64

	Hash       uint64
	PathSuffix string
	Binary     []byte
	CacheHit   bool
}

// DefaultOutputRoot returns the artifact cache directory used when a
// program does not override it.
func DefaultOutputRoot() string {
	return filepath.Join(os.TempDir(), "tilescale-kernel-cache")
}

// Compile builds every unit, one concurrent task per unit. The shared
// registry dedups identical builds: losing the insert race is a cache
// hit. All build tasks are joined before any binary is read back, and
// readbacks also run concurrently. Any toolchain failure fails the
// whole call.
func Compile(units []*Unit, tc Toolchain) error {
	var g errgroup.Group

	for _, u := range units {
		g.Go(func() error {
			return compileOne(u, tc)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, u := range units {
		g.Go(func() error {
			bin, err := tc.ReadBinary(u.Options.OutputRoot, u.PathSuffix)
			if err != nil {
				return fmt.Errorf("reading binary for %s: %w", u.Options.Name, err)
			}
			u.Binary = bin
			return nil
		})
	}
	return g.Wait()
}

func compileOne(u *Unit, tc Toolchain) error {
	hash := CompileHash(u.Options, u.Ident)
	suffix := filepath.Join(u.Options.Name, strconv.FormatUint(hash, 10))

	cacheHit := true
	pathExists := artifactExists(u.Options.OutputRoot, suffix)
	if PersistentCacheEnabled() && pathExists {
		if !defaultRegistry.Contains(hash) {
			defaultRegistry.Add(hash)
		}
	} else if defaultRegistry.Add(hash) {
		cacheHit = false
		if err := tc.GenerateBinaries(u.Options, suffix); err != nil {
			return fmt.Errorf("generating binaries for %s: %w", u.Options.Name, err)
		}
	}

	slog.Debug("KernelCompile",
		"Kernel", u.Options.Name,
		"Hash", hash,
		"CacheHit", cacheHit,
	)

	u.Hash = hash
	u.PathSuffix = suffix
	u.CacheHit = cacheHit
	return nil
}

func artifactExists(root, suffix string) bool {
	_, err := os.Stat(filepath.Join(root, suffix))
	return err == nil
}

var blankLatch struct {
	mu    sync.Mutex
	built bool
}

// PrebuildBlank builds the shared no-op kernel binary. It runs at most
// once per process, regardless of how many programs compile, and must
// finish before any other kernel build starts.
func PrebuildBlank(tc Toolchain, outputRoot string) error {
	blankLatch.mu.Lock()
	defer blankLatch.mu.Unlock()

	if blankLatch.built {
		return nil
	}

	o := &Options{
		Name:       "blank",
		SourcePath: BlankSourcePath,
		OutputRoot: outputRoot,
	}
	suffix := filepath.Join(o.Name, strconv.FormatUint(CompileHash(o, 0), 10))
	if err := tc.GenerateBinaries(o, suffix); err != nil {
		return fmt.Errorf("prebuilding blank kernel: %w", err)
	}

	blankLatch.built = true
	return nil
}
