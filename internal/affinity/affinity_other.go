//go:build !linux

package affinity

// Pin is unsupported outside Linux.
func Pin(int) error { return ErrUnsupported }

// Allowed is unsupported outside Linux.
func Allowed() ([]int, error) { return nil, ErrUnsupported }
