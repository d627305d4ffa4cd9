//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sysmem

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// guaranteedAlign is the alignment of every mapping: one page.
const guaranteedAlign = 4096

// mapMemory creates an anonymous private read-write mapping.
func mapMemory(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapMemory(data []byte) error {
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}
