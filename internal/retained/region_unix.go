//go:build unix

package retained

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileRegion maps a fixed-size file into memory. A missing file is created
// zero-filled, which reads as a cold boot.
type FileRegion struct {
	f   *os.File
	mem []byte
}

// OpenFile maps path read-write with MAP_SHARED.
func OpenFile(path string) (*FileRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("retained: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("retained: stat %s: %w", path, err)
	}
	if fi.Size() < Size {
		if err := f.Truncate(Size); err != nil {
			f.Close()
			return nil, fmt.Errorf("retained: truncate %s: %w", path, err)
		}
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("retained: mmap %s: %w", path, err)
	}
	return &FileRegion{f: f, mem: mem}, nil
}

func (r *FileRegion) Bytes() []byte { return r.mem }

func (r *FileRegion) Flush() error {
	return unix.Msync(r.mem, unix.MS_SYNC)
}

func (r *FileRegion) Close() error {
	if err := unix.Munmap(r.mem); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
