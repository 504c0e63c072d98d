package loader

import (
	"fmt"

	"github.com/23skdu/longbow-ortbench/internal/config"
	"github.com/23skdu/longbow-ortbench/internal/engine"
)

// Fallback records a switch from the requested device to another one. It is
// never returned as an error; it is logged and kept on the Handle.
type Fallback struct {
	From   config.Device
	To     config.Device
	Reason string
}

func (f Fallback) Error() string {
	return fmt.Sprintf("device fallback %s -> %s: %s", f.From, f.To, f.Reason)
}

// MetadataReadError means the model's descriptive metadata could not be read.
// The benchmark continues without it.
type MetadataReadError struct {
	Path string
	Err  error
}

func (e *MetadataReadError) Error() string {
	return fmt.Sprintf("failed to read metadata of %s: %v", e.Path, e.Err)
}

func (e *MetadataReadError) Unwrap() error {
	return e.Err
}

// LoadError means no runnable handle could be constructed.
type LoadError struct {
	Path    string
	Backend engine.Backend
	Err     error
}

func (e *LoadError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("failed to load model %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to load model %s on %s: %v", e.Path, e.Backend, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
