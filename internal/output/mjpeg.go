package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/overlay"
	"github.com/bryanchriswhite/cvmmap/internal/protocol"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

// MJPEGOutput streams frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// Latest encoded frame
	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastHeader protocol.FrameHeader
	lastUpdate time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount uint64
	skipped    uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 85
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output
// Note: The HTTP handlers are registered separately by the API server
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0
	m.skipped = 0

	logger.WithComponent("mjpeg").Info().
		Int("fps", m.config.FPS).
		Int("quality", m.config.Quality).
		Bool("overlay", m.config.Overlay).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.frameCount).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes the view and sends it to all connected clients. Frames
// arriving faster than the configured FPS are skipped.
func (m *MJPEGOutput) WriteFrame(f stream.Frame) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	m.frameMu.RLock()
	last := m.lastUpdate
	m.frameMu.RUnlock()

	if m.config.FPS > 0 && !last.IsZero() && time.Since(last) < time.Second/time.Duration(m.config.FPS) {
		m.mu.Lock()
		m.skipped++
		m.mu.Unlock()
		return nil
	}

	img, err := f.View.Image()
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	if m.config.Overlay {
		rgba := overlay.RGBA(img)
		overlay.DefaultLabel().Render(rgba, overlay.HeaderText(f.Header))
		img = rgba
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = jpegData
	m.lastHeader = f.Header
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	// Broadcast to all clients
	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// LastHeader returns the header of the most recently encoded frame
func (m *MJPEGOutput) LastHeader() (protocol.FrameHeader, bool) {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.lastHeader, !m.lastUpdate.IsZero()
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Msg("Stream client connected")

		defer func() {
			m.clientsMu.Lock()
			// Stop() may already have closed and removed it
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		// Send the latest frame immediately so the image is not blank
		m.frameMu.RLock()
		initial := m.lastJPEG
		m.frameMu.RUnlock()
		if initial != nil {
			if err := writePart(w, initial); err != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// GetSnapshotHandler serves the latest frame as a single JPEG
func (m *MJPEGOutput) GetSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.frameMu.RLock()
		data := m.lastJPEG
		m.frameMu.RUnlock()

		if data == nil {
			http.Error(w, "no frame received yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

// MJPEGStats summarizes the output for the stats endpoint
type MJPEGStats struct {
	Running    bool                  `json:"running"`
	Frames     uint64                `json:"frames"`
	Skipped    uint64                `json:"skipped"`
	FPS        float64               `json:"fps"`
	Clients    int                   `json:"clients"`
	LastHeader *protocol.FrameHeader `json:"last_header,omitempty"`
	Uptime     string                `json:"uptime"`
}

// Stats returns current output statistics
func (m *MJPEGOutput) Stats() MJPEGStats {
	m.mu.RLock()
	st := MJPEGStats{
		Running: m.running,
		Frames:  m.frameCount,
		Skipped: m.skipped,
	}
	startTime := m.startTime
	m.mu.RUnlock()

	if st.Running && !startTime.IsZero() {
		elapsed := time.Since(startTime)
		if secs := elapsed.Seconds(); secs > 0 {
			st.FPS = float64(st.Frames) / secs
		}
		st.Uptime = elapsed.Round(time.Second).String()
	}
	if h, ok := m.LastHeader(); ok {
		st.LastHeader = &h
	}
	st.Clients = m.ClientCount()
	return st
}

// GetStatsHandler returns an HTTP handler that reports stream statistics as JSON
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
