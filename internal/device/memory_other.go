//go:build !linux

package device

import (
	"errors"
	"runtime"
)

func ProcessRSS() (int64, error) {
	return 0, errors.New("process RSS is not available on " + runtime.GOOS)
}
