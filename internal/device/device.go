package device

import (
	"errors"
	"fmt"
)

var ErrNoCUDABuild = errors.New("binary built without the cuda tag")

type Kind int

const (
	KindCPU Kind = iota
	KindAccelerator
)

func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Device is the execution target of a benchmark. Synchronize blocks until all
// outstanding work queued on the device has completed.
type Device interface {
	Kind() Kind
	Name() string
	Synchronize() error
	// Memory reports used and total device memory in bytes; ok is false
	// when the device cannot report it.
	Memory() (used, total int64, ok bool)
	Close() error
}

// Info describes one enumerated accelerator.
type Info struct {
	Index            int
	Name             string
	MemoryTotalBytes int64
	Driver           string
}

// Open returns the device of the given kind. index selects the accelerator.
func Open(kind Kind, index int) (Device, error) {
	switch kind {
	case KindCPU:
		return NewCPU(), nil
	case KindAccelerator:
		if index < 0 {
			return nil, fmt.Errorf("invalid accelerator index: %d", index)
		}
		return openAccelerator(index)
	default:
		return nil, fmt.Errorf("unknown device kind: %v", kind)
	}
}

// CUDABuild reports whether CUDA runtime support was compiled in.
func CUDABuild() bool {
	return cudaBuild
}
