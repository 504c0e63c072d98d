//go:build linux && cuda

package device

/*
#cgo LDFLAGS: -L/usr/local/cuda/lib64 -lcudart
#cgo CFLAGS: -I/usr/local/cuda/include
#include <cuda_runtime.h>

// The current device is per OS thread and a goroutine may move between
// threads across cgo calls, so each helper selects the device itself.
static cudaError_t ortbench_sync(int dev) {
	cudaError_t err = cudaSetDevice(dev);
	if (err != cudaSuccess) {
		return err;
	}
	return cudaDeviceSynchronize();
}

static cudaError_t ortbench_mem_info(int dev, size_t *free_bytes, size_t *total_bytes) {
	cudaError_t err = cudaSetDevice(dev);
	if (err != cudaSuccess) {
		return err;
	}
	return cudaMemGetInfo(free_bytes, total_bytes);
}
*/
import "C"
import (
	"fmt"
	"sync"
)

const cudaBuild = true

type cudaDevice struct {
	mu    sync.Mutex
	index int
	name  string
}

func cudaError(op string, res C.cudaError_t) error {
	return fmt.Errorf("%s failed: %s", op, C.GoString(C.cudaGetErrorString(res)))
}

func openAccelerator(index int) (Device, error) {
	var count C.int
	if res := C.cudaGetDeviceCount(&count); res != C.cudaSuccess {
		return nil, cudaError("cudaGetDeviceCount", res)
	}
	if index >= int(count) {
		return nil, fmt.Errorf("accelerator %d not present (%d devices)", index, int(count))
	}
	if res := C.cudaSetDevice(C.int(index)); res != C.cudaSuccess {
		return nil, cudaError("cudaSetDevice", res)
	}

	var prop C.struct_cudaDeviceProp
	if res := C.cudaGetDeviceProperties(&prop, C.int(index)); res != C.cudaSuccess {
		return nil, cudaError("cudaGetDeviceProperties", res)
	}

	return &cudaDevice{
		index: index,
		name:  C.GoString(&prop.name[0]),
	}, nil
}

func (d *cudaDevice) Kind() Kind {
	return KindAccelerator
}

func (d *cudaDevice) Name() string {
	return d.name
}

// Synchronize waits for every stream on the device, including the ones the
// inference runtime created internally.
func (d *cudaDevice) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res := C.ortbench_sync(C.int(d.index)); res != C.cudaSuccess {
		return cudaError("cudaDeviceSynchronize", res)
	}
	return nil
}

func (d *cudaDevice) Memory() (int64, int64, bool) {
	var free, total C.size_t
	if res := C.ortbench_mem_info(C.int(d.index), &free, &total); res != C.cudaSuccess {
		return 0, 0, false
	}
	return int64(total - free), int64(total), true
}

func (d *cudaDevice) Close() error {
	return nil
}

func Enumerate() ([]Info, error) {
	var count C.int
	if res := C.cudaGetDeviceCount(&count); res != C.cudaSuccess {
		return nil, cudaError("cudaGetDeviceCount", res)
	}

	var driver C.int
	C.cudaDriverGetVersion(&driver)
	driverVersion := fmt.Sprintf("%d.%d", int(driver)/1000, (int(driver)%100)/10)

	infos := make([]Info, 0, int(count))
	for i := 0; i < int(count); i++ {
		var prop C.struct_cudaDeviceProp
		if res := C.cudaGetDeviceProperties(&prop, C.int(i)); res != C.cudaSuccess {
			return nil, cudaError("cudaGetDeviceProperties", res)
		}
		infos = append(infos, Info{
			Index:            i,
			Name:             C.GoString(&prop.name[0]),
			MemoryTotalBytes: int64(prop.totalGlobalMem),
			Driver:           driverVersion,
		})
	}
	return infos, nil
}
