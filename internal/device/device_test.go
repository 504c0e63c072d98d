package device

import (
	"runtime"
	"strings"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindCPU, "cpu"},
		{KindAccelerator, "accelerator"},
		{Kind(7), "Kind(7)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestOpenCPU(t *testing.T) {
	d, err := Open(KindCPU, 0)
	if err != nil {
		t.Fatalf("Open(cpu) failed: %v", err)
	}
	defer d.Close()

	if d.Kind() != KindCPU {
		t.Errorf("expected cpu kind, got %v", d.Kind())
	}
	if !strings.Contains(d.Name(), runtime.GOARCH) {
		t.Errorf("expected arch in name, got %q", d.Name())
	}
	if err := d.Synchronize(); err != nil {
		t.Errorf("cpu barrier should never fail: %v", err)
	}
	if _, _, ok := d.Memory(); ok {
		t.Error("cpu device should not report device memory")
	}
}

func TestOpenRejectsBadInput(t *testing.T) {
	if _, err := Open(KindAccelerator, -1); err == nil {
		t.Error("expected error for negative accelerator index")
	}
	if _, err := Open(Kind(5), 0); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestOpenAcceleratorWithoutCUDA(t *testing.T) {
	if CUDABuild() {
		t.Skip("built with cuda tag")
	}
	d, err := Open(KindAccelerator, 0)
	if err != nil {
		t.Fatalf("Open(accelerator) failed: %v", err)
	}
	if d.Kind() != KindAccelerator {
		t.Errorf("expected accelerator kind, got %v", d.Kind())
	}
	if err := d.Synchronize(); err != nil {
		t.Errorf("unexpected barrier error: %v", err)
	}
	if _, err := Enumerate(); err != ErrNoCUDABuild {
		t.Errorf("expected ErrNoCUDABuild, got %v", err)
	}
}

func TestProcessRSS(t *testing.T) {
	rss, err := ProcessRSS()
	if runtime.GOOS != "linux" {
		if err == nil {
			t.Error("expected error off linux")
		}
		return
	}
	if err != nil {
		t.Fatalf("ProcessRSS failed: %v", err)
	}
	if rss <= 0 {
		t.Errorf("expected positive RSS, got %d", rss)
	}
}
