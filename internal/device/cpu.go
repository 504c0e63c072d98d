package device

import (
	"fmt"
	"runtime"
)

type cpuDevice struct {
	numThreads int
}

func NewCPU() Device {
	return &cpuDevice{numThreads: runtime.NumCPU()}
}

func (c *cpuDevice) Kind() Kind {
	return KindCPU
}

func (c *cpuDevice) Name() string {
	return fmt.Sprintf("%s/%s (%d threads)", runtime.GOOS, runtime.GOARCH, c.numThreads)
}

// Synchronize is a no-op: host execution has completed when Run returns.
func (c *cpuDevice) Synchronize() error {
	return nil
}

func (c *cpuDevice) Memory() (int64, int64, bool) {
	return 0, 0, false
}

func (c *cpuDevice) Close() error {
	return nil
}
