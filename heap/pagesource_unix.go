//go:build unix

package heap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapSource maps anonymous private memory.
type mmapSource struct{}

func (mmapSource) Map(size int) ([]byte, error) {
	if size <= 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("heap: map of %d bytes is not page sized", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %v: %w", size, err, ErrOutOfMemory)
	}
	return mem, nil
}

func (mmapSource) Unmap(mem []byte) error {
	return unix.Munmap(mem)
}

// OSPageSource returns the default page source for this platform.
func OSPageSource() PageSource { return mmapSource{} }
