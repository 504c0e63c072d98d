//go:build !unix

package onnx

import (
	"fmt"
	"os"
)

func ReadFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotONNX, path)
	}
	return Parse(data)
}
