package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeDeadline bounds a single WebSocket write. If the WebView freezes
// longer than this the connection is considered dead.
const writeDeadline = 5 * time.Second

// readDeadline is extended on every pong; it allows ~3 missed pings before
// the connection is declared dead.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize bounds incoming control messages, which are under 1 KiB
// in practice.
const maxReadMessageSize = 4 * 1024

var wsUpgrader = websocket.Upgrader{
	// The server binds to 127.0.0.1 only; the origin check is redundant for
	// a desktop app but kept permissive for WebView compatibility.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// HubOptions configures the preview server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for an OS-assigned port.
	Addr string
}

// Hub manages a single WebSocket connection streaming preview frames.
// A desktop app has one WebView client; new connections replace old ones so
// page reloads recover cleanly.
//
// mu protects connection and streaming state. writeMu serializes
// WriteMessage calls; never hold mu while acquiring writeMu.
type Hub struct {
	opts   HubOptions
	source FrameSource

	mu         sync.RWMutex
	conn       *websocket.Conn
	cameraID   int
	streaming  bool
	streamStop chan struct{}

	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

// NewHub creates a Hub serving frames from source. The hub is not started
// until Start is called.
func NewHub(opts HubOptions, source FrameSource) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts, source: source}
}

// Start begins listening and serving WebSocket connections. Must be called
// once during startup, before concurrent access.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("preview: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("preview: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/preview", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/preview", h.handleWS)

	h.server = &http.Server{
		Handler: mux,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[preview] server error", "error", serveErr)
		}
	}()

	slog.Info("[preview] server started", "url", h.url)
	return nil
}

// Stop shuts down the server and any active stream. Idempotent.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.stopStreamLocked()
		h.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Debug("[preview] connection close during stop", "error", err)
			}
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("preview: shutdown: %w", err)
			}
		}
		slog.Info("[preview] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL for the frontend, or empty before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a client is currently connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[preview] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[preview] SetReadDeadline failed on new connection", "error", err)
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// Replace any existing connection (page reload scenario).
	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.stopStreamLocked()
	h.mu.Unlock()

	if oldConn != nil {
		oldConn.Close()
	}

	slog.Info("[preview] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[preview] handler panic recovered",
				"panic", rec, "stack", string(debug.Stack()))
		}
		close(pingDone)

		h.mu.Lock()
		if h.conn == conn {
			h.conn = nil
			h.stopStreamLocked()
		}
		h.mu.Unlock()

		conn.Close()
		slog.Info("[preview] client disconnected")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[preview] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var ctl controlMsg
		if jsonErr := json.Unmarshal(msg, &ctl); jsonErr != nil {
			h.sendError(conn, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		h.handleControl(conn, ctl)
	}
}

// handleControl starts or stops the frame loop for the current connection.
func (h *Hub) handleControl(conn *websocket.Conn, msg controlMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Discard control messages from a replaced connection.
	if h.conn != conn {
		slog.Debug("[preview] control message from stale connection, skipping")
		return
	}

	switch msg.Action {
	case startAction:
		h.stopStreamLocked()
		h.cameraID = msg.CameraID
		h.streaming = true
		h.streamStop = make(chan struct{})
		go h.frameLoop(conn, msg.CameraID, h.streamStop)
		slog.Info("[preview] stream started", "camera", msg.CameraID)
	case stopAction:
		h.stopStreamLocked()
		slog.Info("[preview] stream stopped")
	default:
		slog.Debug("[preview] unknown action", "action", msg.Action)
	}
}

// stopStreamLocked terminates the frame loop if one is running. Caller must
// hold h.mu.
func (h *Hub) stopStreamLocked() {
	if h.streamStop != nil {
		close(h.streamStop)
		h.streamStop = nil
	}
	h.streaming = false
}

// frameLoop fetches and sends frames until stopped or a write fails.
func (h *Hub) frameLoop(conn *websocket.Conn, cameraID int, stop <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[preview] frame loop panic recovered",
				"panic", rec, "stack", string(debug.Stack()))
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, err := h.source.PreviewFrame(context.Background(), cameraID)
		if err != nil {
			slog.Warn("[preview] frame fetch failed, stopping stream", "camera", cameraID, "error", err)
			h.sendError(conn, fmt.Sprintf("preview unavailable: %s", err))
			h.mu.Lock()
			if h.conn == conn {
				h.stopStreamLocked()
			}
			h.mu.Unlock()
			return
		}
		if !h.writeBinary(conn, frame) {
			return
		}
	}
}

// writeBinary sends one frame; returns false when the connection is dead.
func (h *Hub) writeBinary(conn *websocket.Conn, frame []byte) bool {
	h.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.writeMu.Unlock()
		h.dropConn(conn, "SetWriteDeadline failure")
		return false
	}
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	conn.SetWriteDeadline(time.Time{})
	h.writeMu.Unlock()

	if err != nil {
		slog.Warn("[preview] frame write failed, closing connection", "error", err)
		h.dropConn(conn, "write error")
		return false
	}
	return true
}

// dropConn clears and closes conn if it is still the current connection.
func (h *Hub) dropConn(conn *websocket.Conn, reason string) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
		h.stopStreamLocked()
	}
	h.mu.Unlock()
	if err := conn.Close(); err != nil {
		slog.Debug("[preview] connection close", "reason", reason, "error", err)
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				h.writeMu.Unlock()
				h.dropConn(conn, "SetWriteDeadline failure in ping")
				return
			}
			pingErr := conn.WriteMessage(websocket.PingMessage, nil)
			conn.SetWriteDeadline(time.Time{})
			h.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[preview] ping failed, connection likely dead", "error", pingErr)
				h.dropConn(conn, "ping failure")
				return
			}
		}
	}
}

func (h *Hub) sendError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		return
	}

	h.writeMu.Lock()
	if deadlineErr := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); deadlineErr != nil {
		h.writeMu.Unlock()
		h.dropConn(conn, "SetWriteDeadline failure in sendError")
		return
	}
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	conn.SetWriteDeadline(time.Time{})
	h.writeMu.Unlock()

	if writeErr != nil {
		h.dropConn(conn, "write error in sendError")
	}
}
