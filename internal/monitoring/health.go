package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-ortbench/internal/logger"
)

// RunStatus is the live view of a benchmark run.
type RunStatus struct {
	Model      string `json:"model"`
	Device     string `json:"device"`
	Backend    string `json:"backend"`
	State      string `json:"state"`
	Completed  int64  `json:"completed"`
	Iterations int    `json:"iterations"`
	// Failed marks an aborted run.
	Failed bool `json:"failed"`
}

// HealthStatus represents the health status of the process
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	System    SystemInfo    `json:"system"`
	Run       RunStatus     `json:"run"`
	Alerts    []Alert       `json:"alerts"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	HeapMB       int    `json:"heap_mb"`
	NumGoroutine int    `json:"num_goroutine"`
}

// Alert is a non-fatal condition raised during the run, such as a device fallback.
type Alert struct {
	Level     string    `json:"level"`     // info, warning, error
	Component string    `json:"component"` // probe, loader, runner, report
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const maxAlerts = 100

// HealthMonitor serves /metrics, /healthz and /status while a run is in progress.
type HealthMonitor struct {
	startTime time.Time
	status    func() RunStatus
	server    *http.Server

	mu     sync.RWMutex
	alerts []Alert
}

func NewHealthMonitor(status func() RunStatus) *HealthMonitor {
	if status == nil {
		status = func() RunStatus { return RunStatus{State: "idle"} }
	}
	return &HealthMonitor{
		startTime: time.Now(),
		status:    status,
	}
}

func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", hm.handleDetailedStatus)
	mux.HandleFunc("/alerts", hm.handleAlerts)
	return mux
}

// Start binds addr and serves in the background. It returns the bound address.
func (hm *HealthMonitor) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	hm.server = &http.Server{
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Log.Info("status server listening", "addr", ln.Addr().String())
	go func() {
		if err := hm.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("status server stopped", "error", err)
		}
	}()
	return ln.Addr().String(), nil
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}
}

func (hm *HealthMonitor) Alerts() []Alert {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]Alert, len(hm.alerts))
	copy(out, hm.alerts)
	return out
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.getHealthStatus()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == "failed" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hm.getHealthStatus())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hm.Alerts())
}

func (hm *HealthMonitor) getHealthStatus() HealthStatus {
	run := hm.status()
	alerts := hm.Alerts()

	status := "healthy"
	for _, a := range alerts {
		if a.Level == "warning" || a.Level == "error" {
			status = "degraded"
		}
	}
	if run.Failed {
		status = "failed"
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		System:    getSystemInfo(),
		Run:       run,
		Alerts:    alerts,
	}
}

func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		HeapMB:       int(m.HeapAlloc / 1024 / 1024),
		NumGoroutine: runtime.NumGoroutine(),
	}
}
