//go:build !unix

package retained

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FileRegion keeps the region in memory and writes it to path on Flush.
type FileRegion struct {
	path string
	mem  []byte
}

func OpenFile(path string) (*FileRegion, error) {
	mem := make([]byte, Size)
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("retained: read %s: %w", path, err)
	default:
		copy(mem, b)
	}
	return &FileRegion{path: path, mem: mem}, nil
}

func (r *FileRegion) Bytes() []byte { return r.mem }

func (r *FileRegion) Flush() error {
	return os.WriteFile(r.path, r.mem, 0o600)
}

func (r *FileRegion) Close() error { return nil }
