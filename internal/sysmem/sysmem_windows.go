//go:build windows

package sysmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// guaranteedAlign is the alignment of every mapping: the allocation granularity.
const guaranteedAlign = 64 * 1024

// mapMemory reserves and commits size bytes of read-write memory.
func mapMemory(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func unmapMemory(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(data))), 0, windows.MEM_RELEASE)
}
