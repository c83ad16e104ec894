package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/cloudfleet/fleetctl/pkg/discovery"
	"github.com/cloudfleet/fleetctl/pkg/selection"
	"github.com/cloudfleet/fleetctl/pkg/telemetry"
)

var validModes = []string{"round_robin", "latency", "least_connections", "weighted"}

const cpuToggleTimeout = 5 * time.Second
const metricsScrapeTimeout = 2 * time.Second

// SnapshotSource supplies the current routable set, for /status and
// /metrics.
type SnapshotSource interface {
	Snapshot() discovery.Snapshot
}

// Server wires every HTTP surface endpoint spec.md §6 names.
type Server struct {
	mux *http.ServeMux

	selector  *selection.Selector
	discovery SnapshotSource
	registry  *telemetry.Registry
	loadProxy http.Handler
	log       *zap.SugaredLogger
	start     time.Time
	client    *http.Client
}

// NewServer builds a Server and registers every route on its mux.
func NewServer(selector *selection.Selector, disc SnapshotSource, registry *telemetry.Registry, loadHandler http.Handler, log *zap.SugaredLogger) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		selector:  selector,
		discovery: disc,
		registry:  registry,
		loadProxy: loadHandler,
		log:       log,
		start:     time.Now(),
		client:    &http.Client{Timeout: cpuToggleTimeout},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/load", s.loadProxy)
	s.mux.HandleFunc("/cpu/toggle", s.handleCPUToggle)
	s.mux.HandleFunc("/set_mode/", s.handleSetMode)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/favicon.ico", s.handleFavicon)
	s.mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}
	snap := s.discovery.Snapshot()
	total, healthy := countWorkers(snap)

	resp := IndexResponse{
		Message:  "fleetctl load balancer",
		Backends: BackendCounts{Total: total, Healthy: healthy},
		Paths: map[string]string{
			"load":       "/load",
			"status":     "/status",
			"health":     "/health",
			"metrics":    "/metrics",
			"set_mode":   "/set_mode/<mode>",
			"cpu_toggle": "/cpu/toggle",
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.discovery.Snapshot()
	total, _ := countWorkers(snap)

	workers := make([]WorkerStatus, 0, len(snap.Workers))
	for _, wk := range snap.Workers {
		workers = append(workers, WorkerStatus{
			Host:          wk.EndpointURL,
			ContainerName: wk.ContainerName,
			Status:        string(wk.Status),
			LatencySec:    wk.LastLatency.Seconds(),
		})
	}

	resp := StatusResponse{
		Policy:     string(s.selector.CurrentPolicy()),
		UptimeSec:  time.Since(s.start).Seconds(),
		FleetCount: total,
		Workers:    workers,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Path[len("/set_mode/"):]
	if !isValidMode(mode) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:          fmt.Sprintf("unknown selection mode: %s", mode),
			AvailableModes: validModes,
		})
		return
	}
	if err := s.selector.SetPolicy(selection.Policy(mode)); err != nil {
		// Should not happen: isValidMode and selection.Policy.valid agree
		// on the same set, but guard against drift between them.
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), AvailableModes: validModes})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         fmt.Sprintf("Selection mode set to %s", mode),
		"available_modes": validModes,
	})
}

func isValidMode(mode string) bool {
	for _, m := range validModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *Server) handleCPUToggle(w http.ResponseWriter, r *http.Request) {
	wk, ok, err := s.selector.Choose()
	if err != nil {
		s.log.Errorw("control: selection failed for /cpu/toggle", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "No healthy servers", http.StatusServiceUnavailable)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, wk.EndpointURL+"/cpu/toggle", nil)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warnw("control: /cpu/toggle forward failed", "worker", wk.ContainerName, "error", err)
		http.Error(w, "Backend error", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	snap := s.discovery.Snapshot()
	total, healthy := countWorkers(snap)
	s.registry.SetBackendCounts(total, healthy)

	mfs, err := s.registry.Gatherer().Gather()
	if err != nil {
		s.log.Errorw("control: failed to gather own metrics", "error", err)
	} else {
		enc := expfmt.NewEncoder(w, expfmt.FmtText)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				s.log.Warnw("control: failed to encode metric family", "error", err)
			}
		}
	}

	for _, wk := range snap.Workers {
		if !wk.Status.Routable() {
			continue
		}
		body, err := s.fetchUpstreamMetrics(r.Context(), wk)
		if err != nil {
			s.log.Debugw("control: upstream /metrics fetch failed, skipping", "worker", wk.ContainerName, "error", err)
			continue
		}
		_, _ = w.Write(body)
	}
}

func (s *Server) fetchUpstreamMetrics(ctx context.Context, wk discovery.Worker) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, metricsScrapeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wk.EndpointURL+"/metrics", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func countWorkers(snap discovery.Snapshot) (total, healthy int) {
	total = len(snap.Workers)
	for _, w := range snap.Workers {
		if w.Status.Routable() {
			healthy++
		}
	}
	return total, healthy
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

