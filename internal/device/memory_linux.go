//go:build linux

package device

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// ProcessRSS returns the resident set size of the current process in bytes.
func ProcessRSS() (int64, error) {
	p, err := procfs.Self()
	if err != nil {
		return 0, fmt.Errorf("failed to open /proc/self: %w", err)
	}
	stat, err := p.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to read process stat: %w", err)
	}
	return int64(stat.ResidentMemory()), nil
}
