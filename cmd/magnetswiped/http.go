package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"magnetswipe"
)

// ============================================================================
// HTTP surface
// ============================================================================
//   GET  /healthz             liveness
//   GET  /status              detector snapshot
//   GET  /events?limit=N      recent journal entries (404 when the journal is off)
//   POST /commands/{action}   bridge command (start|stop)
//   GET  /ws                  event stream
// ============================================================================

const httpReplyTimeout = 2 * time.Second

type httpAPI struct {
	daemon  commander
	journal *Journal
	logger  *slog.Logger
}

// newRouter builds the daemon's HTTP routes. journal and ws may be nil.
func newRouter(d commander, journal *Journal, ws *wsServer, logger *slog.Logger) *mux.Router {
	api := &httpAPI{daemon: d, journal: journal, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/status", api.handleStatus).Methods("GET")
	r.HandleFunc("/events", api.handleEvents).Methods("GET")
	r.HandleFunc("/commands/{action}", api.handleCommand).Methods("POST")
	if ws != nil {
		ws.Register(r, "/ws")
	}
	return r
}

func (a *httpAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), httpReplyTimeout)
	defer cancel()

	snap, err := a.daemon.Status(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, magnetswipe.IPCResponse{Status: "error", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *httpAPI) handleCommand(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	ctx, cancel := context.WithTimeout(r.Context(), httpReplyTimeout)
	defer cancel()

	err := a.daemon.Command(ctx, action)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, magnetswipe.IPCResponse{Status: "ok"})
	case errors.Is(err, magnetswipe.ErrUnsupportedAction):
		writeJSON(w, http.StatusBadRequest, magnetswipe.IPCResponse{Status: "error", Error: err.Error()})
	default:
		writeJSON(w, http.StatusServiceUnavailable, magnetswipe.IPCResponse{Status: "error", Error: err.Error()})
	}
}

func (a *httpAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error("journal query failed", "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	body, err := marshalEntries(entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
