//go:build !unix

package power

import "errors"

func execSelf(string) error {
	return errors.New("re-exec is not supported on this platform")
}
