// Package health serves the liveness and readiness probes for the alert
// service.
//
//   - /healthz reports liveness; a process that can answer HTTP is alive.
//   - /readyz reports readiness; it passes only while every registered
//     dependency probe (object store, history database, providers) passes.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// per-probe "checks" map that includes the observed probe latency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Probe is a named readiness check. Check returns nil while the dependency
// is usable and must respect context cancellation.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler evaluates readiness probes and serves the probe endpoints. The
// probe set is fixed at construction time and safe for concurrent requests.
type Handler struct {
	probes []Probe
}

// New creates a [Handler] over the given probes.
func New(probes ...Probe) *Handler {
	p := make([]Probe, len(probes))
	copy(p, probes)
	return &Handler{probes: p}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs all probes concurrently and answers 200 only when every probe
// passes. Each probe gets a [probeTimeout] deadline derived from the request
// context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		res  checkResult
		ok   bool
	}
	results := make(chan outcome, len(h.probes))

	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Check(ctx)
			res := checkResult{Status: "ok", Latency: time.Since(start).Round(time.Microsecond).String()}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}
			results <- outcome{name: p.Name, res: res, ok: err == nil}
		}(p)
	}
	wg.Wait()
	close(results)

	resp := response{Status: "ok", Checks: make(map[string]checkResult, len(h.probes))}
	status := http.StatusOK
	for o := range results {
		resp.Checks[o.name] = o.res
		if !o.ok {
			resp.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
