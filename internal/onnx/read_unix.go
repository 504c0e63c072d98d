//go:build unix

package onnx

import (
	"fmt"
	"os"
	"syscall"
)

// ReadFile maps the model into memory and parses its metadata. Decoded
// strings are copied out, so the mapping is released before returning.
func ReadFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotONNX, path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	defer func() {
		_ = syscall.Munmap(data)
	}()

	return Parse(data)
}
