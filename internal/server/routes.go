package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/DannyRuijters/webrtc-friends/internal/signaling"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// We need to check the origin, but for development, we can allow all.
	// In production, you'd check r.Header.Get("Origin") against your frontend's domain
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all connections for now
	},
}

// Handler wires the relay's HTTP surface onto a fresh mux: the websocket
// endpoint, the health check, the room inspection report and static assets.
func Handler(registry *signaling.Registry, router *signaling.Router, joinWait time.Duration, staticDir string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/api/rooms", roomsHandler(registry, logger))
	mux.HandleFunc("/ws", ServeWs(registry, router, joinWait, logger))
	mux.HandleFunc("/", staticHandler(staticDir, logger))
	return mux
}

// ServeWs returns an http.HandlerFunc that upgrades requests to websockets
// and hands each connection to its own session goroutine.
func ServeWs(registry *signaling.Registry, router *signaling.Router, joinWait time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}

		// Correlates log lines for this connection before a client id
		// exists (the id is only assigned at join).
		connLogger := logger.With("conn", uuid.NewString())

		client := signaling.NewClient(conn, remoteHost(r), connLogger)
		session := signaling.NewSession(client, registry, router, joinWait, connLogger)

		go client.WritePump()
		go session.Run()
	}
}

// remoteHost extracts the peer's origin address without the port.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Health Check endpoint
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// roomsHandler serves the read-only report over the registry's current
// state: per-room peer lists and global totals.
func roomsHandler(registry *signaling.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
			logger.Error("encode rooms report", "error", err)
		}
	}
}

// staticHandler serves files from staticDir. "/" falls back to webrtc.html
// when present, otherwise a plain-text banner. Paths escaping the directory
// are rejected.
func staticHandler(staticDir string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if staticDir == "" {
			banner(w)
			return
		}
		root, err := filepath.Abs(staticDir)
		if err != nil {
			logger.Error("resolve static dir", "dir", staticDir, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			name = "webrtc.html"
		}
		path := filepath.Join(root, filepath.FromSlash(name))
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			if r.URL.Path == "/" {
				banner(w)
				return
			}
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, path)
	}
}

func banner(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("WebRTC Signaling Server is running\n"))
}
