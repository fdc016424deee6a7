//go:build !cgo

package hal

import "fmt"

// RunWindow needs Ebiten, which needs cgo. Use RunHeadless instead.
func RunWindow(_ *Host, _ func() error) error {
	return fmt.Errorf("hal: window mode: %w (rebuild with CGO_ENABLED=1 or pass -headless)", ErrNotImplemented)
}
