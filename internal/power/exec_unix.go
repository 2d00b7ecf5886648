//go:build unix

package power

import (
	"os"

	"golang.org/x/sys/unix"
)

func execSelf(path string) error {
	return unix.Exec(path, os.Args, os.Environ())
}
