package heap

import "fmt"

// PageSource supplies page-aligned memory from the operating system.
// Fresh mappings must be zero-filled.
type PageSource interface {
	Map(size int) ([]byte, error)
	Unmap(mem []byte) error
}

// goSource backs pages with ordinary Go allocations. Used where mmap is not
// available and when configured with page-source = "go".
type goSource struct{}

func (goSource) Map(size int) ([]byte, error) {
	if size <= 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("heap: map of %d bytes is not page sized", size)
	}
	return make([]byte, size), nil
}

func (goSource) Unmap([]byte) error { return nil }

// GoPageSource returns a PageSource backed by the Go allocator.
func GoPageSource() PageSource { return goSource{} }

// FailingSource wraps a PageSource and fails every Map after the first
// Limit successful ones. It simulates the operating system running out of
// memory.
type FailingSource struct {
	Inner PageSource
	Limit int64

	maps int64
}

// Map delegates until the limit is reached, then returns ErrOutOfMemory.
func (s *FailingSource) Map(size int) ([]byte, error) {
	if s.maps >= s.Limit {
		return nil, fmt.Errorf("simulated map of %d bytes: %w", size, ErrOutOfMemory)
	}
	mem, err := s.Inner.Map(size)
	if err != nil {
		return nil, err
	}
	s.maps++
	return mem, nil
}

// Unmap delegates.
func (s *FailingSource) Unmap(mem []byte) error {
	return s.Inner.Unmap(mem)
}

// Maps returns the number of successful maps.
func (s *FailingSource) Maps() int64 {
	return s.maps
}
