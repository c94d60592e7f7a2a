package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/config"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
)

func (d *Daemon) newHTTPServer(cfg config.HTTPConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, metrics.HTTPHandler(d.registry))
	mux.HandleFunc(cfg.HealthPath, d.handleHealth)
	mux.HandleFunc("GET /api/state", d.handleState)
	mux.HandleFunc("GET /api/state/modules/{id}", d.handleModuleState)
	mux.HandleFunc("GET /api/history", d.handleHistory)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (d *Daemon) serveHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		return err
	}
	slog.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown incomplete", logfields.Error(err))
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", logfields.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := d.PerformHealthChecks(r.Context())
	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (d *Daemon) handleState(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("branch"); raw != "" {
		branchID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		states, err := d.states.ForBranch(r.Context(), branchID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, states)
		return
	}
	states, err := d.states.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (d *Daemon) handleModuleState(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	state, err := d.states.ModuleState(r.Context(), id)
	switch {
	case build.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, struct {
			State any    `json:"state"`
			Hash  string `json:"hash"`
		}{state, strconv.FormatUint(state.Hash(), 16)})
	}
}

func (d *Daemon) handleHistory(w http.ResponseWriter, r *http.Request) {
	if d.projection == nil {
		writeError(w, http.StatusNotFound, errors.New("transition history is disabled"))
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		since = time.Now().Add(-dur)
	}
	if err := d.projection.Rebuild(r.Context(), since); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   d.projection.GetActiveBuilds(),
		"finished": d.projection.GetHistory(),
	})
}
