package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	run := RunStatus{State: "measuring", Completed: 40, Iterations: 100}
	hm := NewHealthMonitor(func() RunStatus { return run })
	srv := httptest.NewServer(hm.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	run.Failed = true
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after abort, got %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	hm := NewHealthMonitor(func() RunStatus {
		return RunStatus{Model: "resnet50.onnx", State: "measuring", Completed: 7, Iterations: 10}
	})
	hm.AddAlert("warning", "loader", "device fallback accelerator -> cpu")

	srv := httptest.NewServer(hm.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("expected degraded status with a warning alert, got %q", status.Status)
	}
	if status.Run.Completed != 7 || status.Run.Model != "resnet50.onnx" {
		t.Errorf("unexpected run status %+v", status.Run)
	}
	if len(status.Alerts) != 1 || status.Alerts[0].Component != "loader" {
		t.Errorf("unexpected alerts %+v", status.Alerts)
	}
	if status.System.NumCPU <= 0 {
		t.Error("expected system info")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewHealthMonitor(nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected default Go collectors in /metrics")
	}
}

func TestAlertsAreBounded(t *testing.T) {
	hm := NewHealthMonitor(nil)
	for i := 0; i < maxAlerts+20; i++ {
		hm.AddAlert("info", "probe", "x")
	}
	if got := len(hm.Alerts()); got != maxAlerts {
		t.Errorf("expected %d alerts, got %d", maxAlerts, got)
	}
}

func TestStartStop(t *testing.T) {
	hm := NewHealthMonitor(nil)
	addr, err := hm.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if err := hm.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
