//go:build !(linux && cuda)

package device

import "fmt"

const cudaBuild = false

// hostSyncedAccelerator stands in for an accelerator when CUDA is not
// compiled in. The runtime copies outputs back to host memory before Run
// returns, so the barrier has nothing left to wait for.
type hostSyncedAccelerator struct {
	index int
}

func openAccelerator(index int) (Device, error) {
	return &hostSyncedAccelerator{index: index}, nil
}

func (a *hostSyncedAccelerator) Kind() Kind {
	return KindAccelerator
}

func (a *hostSyncedAccelerator) Name() string {
	return fmt.Sprintf("accelerator:%d (host-synchronized)", a.index)
}

func (a *hostSyncedAccelerator) Synchronize() error {
	return nil
}

func (a *hostSyncedAccelerator) Memory() (int64, int64, bool) {
	return 0, 0, false
}

func (a *hostSyncedAccelerator) Close() error {
	return nil
}

// Enumerate lists CUDA devices. Without the cuda tag the driver tool is the
// only source, so this always fails.
func Enumerate() ([]Info, error) {
	return nil, ErrNoCUDABuild
}
