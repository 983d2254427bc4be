//go:build !linux || !(386 || amd64 || arm || arm64 || riscv64 || loong64 || s390x)

package mtd

import "github.com/pkg/errors"

// ErrUnsupported is returned when opening an MTD device on a platform without
// MTD support.
var ErrUnsupported = errors.New("mtd devices are not supported on this platform")

func openChip(path string) (chip, error) {
	return nil, ErrUnsupported
}
