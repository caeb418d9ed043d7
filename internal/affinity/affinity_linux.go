//go:build linux

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pin restricts the current thread to cpu.
func Pin(cpu int) error {
	if cpu < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCPU, cpu)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: pin to cpu %d: %w", cpu, err)
	}
	return nil
}

// Allowed returns the CPUs the current thread may run on, in ascending order.
func Allowed() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("affinity: query: %w", err)
	}
	cpus := make([]int, 0, set.Count())
	for cpu := 0; len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}
