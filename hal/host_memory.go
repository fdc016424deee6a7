package hal

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"
)

// PageSize is the allocation granule of the memory pool.
const PageSize = 4096

type span struct {
	off   int // in pages
	pages int
}

// hostMemory is a first-fit page allocator over one mapped region. The free
// list is kept sorted by offset with neighbours coalesced.
type hostMemory struct {
	mu     sync.Mutex
	ram    []byte
	unmap  func() error
	base   uintptr
	pages  int
	free   []span
	allocs map[uintptr]int
	used   int
}

func newHostMemory(size int) (*hostMemory, error) {
	size = (size + PageSize - 1) &^ (PageSize - 1)
	ram, unmap, err := mapRAM(size)
	if err != nil {
		return nil, err
	}
	pages := len(ram) / PageSize
	return &hostMemory{
		ram:    ram,
		unmap:  unmap,
		base:   uintptr(unsafe.Pointer(unsafe.SliceData(ram))),
		pages:  pages,
		free:   []span{{off: 0, pages: pages}},
		allocs: make(map[uintptr]int),
	}, nil
}

func (m *hostMemory) Alloc(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, fmt.Errorf("hal: zero-sized allocation")
	}
	n := int((size + PageSize - 1) / PageSize)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.free {
		if s.pages < n {
			continue
		}
		if s.pages == n {
			m.free = append(m.free[:i], m.free[i+1:]...)
		} else {
			m.free[i] = span{off: s.off + n, pages: s.pages - n}
		}
		start := s.off * PageSize
		clear(m.ram[start : start+n*PageSize])

		addr := m.base + uintptr(start)
		m.allocs[addr] = n
		m.used += n
		return addr, nil
	}
	return 0, fmt.Errorf("%w: %d bytes requested, %d pages free", ErrOutOfMemory, size, m.pages-m.used)
}

func (m *hostMemory) Free(addr uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.allocs[addr]
	if !ok {
		return fmt.Errorf("%w: %#x", ErrBadFree, addr)
	}
	delete(m.allocs, addr)
	m.used -= n

	off := int(addr-m.base) / PageSize
	i := sort.Search(len(m.free), func(i int) bool { return m.free[i].off > off })
	m.free = append(m.free, span{})
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = span{off: off, pages: n}

	// Merge with the right neighbour, then the left one.
	if i+1 < len(m.free) && m.free[i].off+m.free[i].pages == m.free[i+1].off {
		m.free[i].pages += m.free[i+1].pages
		m.free = append(m.free[:i+1], m.free[i+2:]...)
	}
	if i > 0 && m.free[i-1].off+m.free[i-1].pages == m.free[i].off {
		m.free[i-1].pages += m.free[i].pages
		m.free = append(m.free[:i], m.free[i+1:]...)
	}
	return nil
}

func (m *hostMemory) Stats() MemStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemStats{
		TotalBytes: uintptr(m.pages * PageSize),
		UsedBytes:  uintptr(m.used * PageSize),
		Allocs:     len(m.allocs),
	}
}

func (m *hostMemory) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmap == nil {
		return nil
	}
	err := m.unmap()
	m.unmap = nil
	m.ram = nil
	m.free = nil
	return err
}
