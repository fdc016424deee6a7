//go:build linux

package hal

import "golang.org/x/sys/unix"

// mapRAM backs the memory pool with an anonymous private mapping so the
// simulated RAM is page aligned and lives outside the Go heap.
func mapRAM(size int) ([]byte, func() error, error) {
	ram, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	return ram, func() error { return unix.Munmap(ram) }, nil
}
