package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/pose"
)

const (
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = 4096
	wsBufferSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
}

// wsRequest is one message from the browser: the video element's
// currentTime in seconds, and optionally the canvas size for pixel scenes.
type wsRequest struct {
	T      float64 `json:"t"`
	Width  int     `json:"w,omitempty"`
	Height int     `json:"h,omitempty"`
}

type wsResponse struct {
	overlay.Frame
	Seconds float64 `json:"t_s"`
	Error   string  `json:"error,omitempty"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		monitoring.Logf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	monitoring.Logf("[ws] client connected from %s", r.RemoteAddr)

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Logf("[ws] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		resp := s.answer(data)
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			monitoring.Logf("[ws] write error: %v", err)
			return
		}
	}
}

// answer resolves one browser request. Errors are reported in the response
// so the connection survives a bad message or a dataset still loading.
func (s *Server) answer(data []byte) wsResponse {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wsResponse{Error: "invalid message: " + err.Error()}
	}
	if math.IsNaN(req.T) || math.IsInf(req.T, 0) {
		return wsResponse{Error: "invalid t"}
	}
	if req.Width < 0 || req.Height < 0 || req.Width > maxFrameDimension || req.Height > maxFrameDimension {
		return wsResponse{Error: "invalid canvas size"}
	}

	t := pose.FromSeconds(req.T)
	if s.cfg.Reported != nil {
		s.cfg.Reported.Set(t)
	}
	f, err := overlay.FrameAt(s.cfg.Resolver, t, s.cfg.Style, s.cfg.Options)
	if err != nil {
		resp := wsResponse{Seconds: req.T, Error: err.Error()}
		resp.T = t
		if !errors.Is(err, pose.ErrNotReady) {
			monitoring.Logf("[ws] resolve at %s failed: %v", t, err)
		}
		return resp
	}
	if req.Width > 0 && req.Height > 0 {
		f.Scene = f.Scene.ToPixels(req.Width, req.Height)
	}
	return wsResponse{Frame: f, Seconds: t.Seconds()}
}
