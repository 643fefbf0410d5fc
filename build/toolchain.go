package build

import (
	"fmt"
	"hash/fnv"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BinaryFileName is the blob a toolchain leaves in the artifact
// directory.
const BinaryFileName = "kernel.bin"

// A Toolchain produces a kernel binary from build options. The
// compiler itself is opaque to this package; any generation failure is
// fatal to the whole compile call.
type Toolchain interface {
	// GenerateBinaries builds the kernel and leaves the blob under
	// <OutputRoot>/<pathSuffix>/.
	GenerateBinaries(o *Options, pathSuffix string) error

	// ReadBinary loads a previously generated blob.
	ReadBinary(root, pathSuffix string) ([]byte, error)
}

// CommandToolchain shells out to an external compiler. Occurrences of
// {source}, {name}, and {out} in the argv are substituted before the
// command runs; the command is expected to write BinaryFileName into
// the output directory.
type CommandToolchain struct {
	Argv []string
}

// GenerateBinaries runs the compiler command for one kernel.
func (t CommandToolchain) GenerateBinaries(o *Options, pathSuffix string) error {
	if len(t.Argv) == 0 {
		return fmt.Errorf("toolchain command is empty")
	}

	outDir := filepath.Join(o.OutputRoot, pathSuffix)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating artifact dir for %s: %w", o.Name, err)
	}

	argv := make([]string, len(t.Argv))
	for i, a := range t.Argv {
		a = strings.ReplaceAll(a, "{source}", o.SourcePath)
		a = strings.ReplaceAll(a, "{name}", o.Name)
		a = strings.ReplaceAll(a, "{out}", outDir)
		argv[i] = a
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("building %s: %w: %s", o.Name, err, out)
	}
	return nil
}

// ReadBinary loads the blob the compiler produced.
func (t CommandToolchain) ReadBinary(root, pathSuffix string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, pathSuffix, BinaryFileName))
}

// StubToolchain generates deterministic placeholder binaries without
// invoking a compiler. Used by tests and by the simulated device,
// where binaries are opaque payloads.
type StubToolchain struct {
	// BlobSize is the size of generated binaries. Zero means 64 bytes.
	BlobSize int
}

// GenerateBinaries writes a deterministic blob derived from the kernel
// name and arguments.
func (t StubToolchain) GenerateBinaries(o *Options, pathSuffix string) error {
	outDir := filepath.Join(o.OutputRoot, pathSuffix)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	size := t.BlobSize
	if size == 0 {
		size = 64
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", o.Name, StructuralHash(o))
	seed := h.Sum64()

	blob := make([]byte, size)
	for i := range blob {
		blob[i] = byte(seed >> (8 * (i % 8)))
	}

	return os.WriteFile(filepath.Join(outDir, BinaryFileName), blob, 0o644)
}

// ReadBinary loads a previously generated blob.
func (t StubToolchain) ReadBinary(root, pathSuffix string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, pathSuffix, BinaryFileName))
}
