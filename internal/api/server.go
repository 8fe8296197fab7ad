package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bryanchriswhite/cvmmap/internal/config"
	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/metrics"
	"github.com/bryanchriswhite/cvmmap/internal/output"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

// Version is reported by the health endpoint
var Version = "dev"

// StatsFunc adapts a function to metrics.StatsSource. The serve loop swaps
// streams on restart, so the source is resolved on every call.
type StatsFunc func() stream.Stats

func (f StatsFunc) Stats() stream.Stats { return f() }

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	configMgr *config.Manager
	stats     metrics.StatsSource
	mjpeg     *output.MJPEGOutput
	headers   *output.HeaderFeed
	registry  *prometheus.Registry
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(configMgr *config.Manager, stats metrics.StatsSource, mjpeg *output.MJPEGOutput, headers *output.HeaderFeed) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewCollector(stats),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		router:    mux.NewRouter(),
		configMgr: configMgr,
		stats:     stats,
		mjpeg:     mjpeg,
		headers:   headers,
		registry:  registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Viewer
	s.router.HandleFunc("/stream", s.mjpeg.GetHTTPHandler()).Methods("GET")
	s.router.HandleFunc("/snapshot", s.mjpeg.GetSnapshotHandler()).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/frames/latest", s.handleLatestHeader).Methods("GET")
	api.HandleFunc("/frames/ws", s.handleFrameFeed)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on port until ctx is cancelled
func (s *Server) Run(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msgf("Starting server on http://localhost%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Streaming handlers only return once their client or output goes away.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Forcing server close")
		return srv.Close()
	}
	log.Info().Msg("Server stopped")
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"stream": s.stats.Stats(),
		"viewer": s.mjpeg.Stats(),
	})
}

func (s *Server) handleLatestHeader(w http.ResponseWriter, r *http.Request) {
	h, ok := s.mjpeg.LastHeader()
	if !ok {
		http.Error(w, "no frame received yet", http.StatusNotFound)
		return
	}
	writeJSON(w, h)
}

func (s *Server) handleFrameFeed(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.headers.Subscribe()
	defer s.headers.Unsubscribe(updates)

	// Reader goroutine notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if h, ok := s.mjpeg.LastHeader(); ok {
		if err := conn.WriteJSON(h); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case h, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream stopped"))
				return
			}
			if err := conn.WriteJSON(h); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.stats.Stats()
	status := "healthy"
	code := http.StatusOK
	if st.State == stream.StateClosed {
		status = "closed"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"state":   st.State.String(),
		"attach":  st.Attach.String(),
		"version": Version,
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>cvmmap viewer</title>
    <style>
        body { font-family: sans-serif; margin: 20px; background: #111; color: #ddd; }
        img { max-width: 100%; border: 1px solid #333; }
        a { color: #6cf; }
        pre { background: #222; padding: 8px; }
    </style>
</head>
<body>
    <h1>cvmmap</h1>
    <img src="/stream" alt="stream">
    <pre id="header">waiting for frames...</pre>
    <p>
        <a href="/snapshot">/snapshot</a> |
        <a href="/api/stats">/api/stats</a> |
        <a href="/api/config">/api/config</a> |
        <a href="/metrics">/metrics</a>
    </p>
    <script>
        const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/frames/ws");
        ws.onmessage = (ev) => { document.getElementById("header").textContent = JSON.stringify(JSON.parse(ev.data), null, 2); };
    </script>
</body>
</html>`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(indexHTML))
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api") {
		http.NotFound(w, r)
		return
	}
	http.Error(w, "unknown endpoint", http.StatusNotFound)
}
