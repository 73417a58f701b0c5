// Package api exposes the overlay over HTTP: JSON queries for poses, scenes
// and tracks, rendered frames and charts, playback control, and a websocket
// that answers a browser's video time with the poses to draw.
package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/httputil"
	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/playback"
	"github.com/banshee-data/pose.overlay/internal/pose"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultFrameWidth  = 640
	defaultFrameHeight = 360
	maxFrameDimension  = 4096
)

// Config wires a Server. Only Resolver is required.
type Config struct {
	Resolver *pose.Resolver
	// Player backs /api/playback; nil disables playback control.
	Player playback.Controller
	// Position supplies t when a request omits it. Defaults to Player.
	Position playback.Clock
	// Reported receives the video time websocket clients send, so a host
	// loop driven by it follows the browser.
	Reported *playback.ManualClock

	Style   overlay.Style
	Options overlay.BuildOptions

	// Store backs /api/datasets when set.
	Store *db.DB
	// Loop backs TickHandler when set.
	Loop *overlay.Loop

	ChartStep time.Duration
}

type Server struct {
	cfg Config
}

func NewServer(cfg Config) *Server {
	if cfg.Position == nil && cfg.Player != nil {
		cfg.Position = cfg.Player
	}
	if cfg.ChartStep <= 0 {
		cfg.ChartStep = 100 * time.Millisecond
	}
	return &Server{cfg: cfg}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through so /ws can upgrade behind the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/poses", s.getPoses)
	mux.HandleFunc("/api/scene", s.getScene)
	mux.HandleFunc("/api/tracks", s.getTracks)
	mux.HandleFunc("/api/dataset", s.getDataset)
	mux.HandleFunc("/api/datasets", s.listDatasets)
	mux.HandleFunc("/api/playback", s.playback)
	mux.HandleFunc("/frame.png", s.framePNG)
	mux.HandleFunc("/chart", s.chart)
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

// writeError maps package sentinel errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pose.ErrNotReady):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, db.ErrDatasetNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, playback.ErrNegativeSeek), errors.Is(err, playback.ErrInvalidRate):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// at returns the instant a request asks about: ?t= in seconds, else the
// server's playback position.
func (s *Server) at(r *http.Request) (pose.TimeOffset, error) {
	secs, ok, err := httputil.QueryFloat(r, "t")
	if err != nil {
		return 0, err
	}
	if ok {
		return pose.FromSeconds(secs), nil
	}
	if s.cfg.Position == nil {
		return 0, errors.New("missing t")
	}
	return s.cfg.Position.Position(), nil
}
