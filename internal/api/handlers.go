package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"

	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/httputil"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/report"
)

type posesResponse struct {
	T       pose.TimeOffset   `json:"t_ns"`
	Seconds float64           `json:"t_s"`
	Poses   []pose.PoseObject `json:"poses"`
}

func (s *Server) getPoses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	t, err := s.at(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	poses, err := s.cfg.Resolver.Resolve(t)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, posesResponse{T: t, Seconds: t.Seconds(), Poses: poses})
}

// frameSize reads ?w= and ?h=, falling back to the defaults.
func frameSize(r *http.Request, defW, defH int) (int, int, error) {
	w, err := httputil.QueryInt(r, "w", defW, 1, maxFrameDimension)
	if err != nil {
		return 0, 0, err
	}
	h, err := httputil.QueryInt(r, "h", defH, 1, maxFrameDimension)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func (s *Server) getScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	t, err := s.at(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	pixels := q.Has("w") || q.Has("h")
	width, height, err := frameSize(r, defaultFrameWidth, defaultFrameHeight)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	f, err := overlay.FrameAt(s.cfg.Resolver, t, s.cfg.Style, s.cfg.Options)
	if err != nil {
		writeError(w, err)
		return
	}
	scene := f.Scene
	if pixels {
		scene = scene.ToPixels(width, height)
	}
	httputil.WriteJSONOK(w, scene)
}

type activeTrack struct {
	Index     int              `json:"index"`
	Segment   pose.Segment     `json:"segment"`
	Keyframes int              `json:"keyframes"`
	Prev      *pose.TimeOffset `json:"prev_ns"`
	Curr      *pose.TimeOffset `json:"curr_ns"`
}

type tracksResponse struct {
	T      pose.TimeOffset `json:"t_ns"`
	Tracks []activeTrack   `json:"tracks"`
}

func (s *Server) getTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	t, err := s.at(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ix := s.cfg.Resolver.Index()
	ds, err := ix.Dataset()
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := ix.TracksActiveAt(t)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := tracksResponse{T: t, Tracks: make([]activeTrack, 0, len(active))}
	for _, tr := range active {
		at := activeTrack{Index: trackIndex(ds, tr), Segment: tr.Segment, Keyframes: len(tr.Keyframes)}
		prev, curr := ix.BracketingKeyframes(tr, t)
		if prev != nil {
			at.Prev = &prev.Time
		}
		if curr != nil {
			at.Curr = &curr.Time
		}
		resp.Tracks = append(resp.Tracks, at)
	}
	httputil.WriteJSONOK(w, resp)
}

// trackIndex finds tr's position in ds. Active tracks point into ds.Tracks.
func trackIndex(ds *pose.Dataset, tr *pose.Track) int {
	for i := range ds.Tracks {
		if &ds.Tracks[i] == tr {
			return i
		}
	}
	return -1
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ds, err := s.cfg.Resolver.Index().Dataset()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, report.Summarize(ds))
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Store == nil {
		httputil.NotFound(w, "no dataset store configured")
		return
	}
	list, err := s.cfg.Store.ListDatasets()
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []db.DatasetSummary{}
	}
	httputil.WriteJSONOK(w, list)
}

type playbackRequest struct {
	Action  string   `json:"action"`
	Seconds *float64 `json:"t,omitempty"`
	Rate    *float64 `json:"rate,omitempty"`
}

func (s *Server) playback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Player == nil {
		httputil.NotFound(w, "playback control not available")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.cfg.Player.Status())
		return
	case http.MethodPost:
	default:
		httputil.MethodNotAllowed(w)
		return
	}

	var req playbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return
	}

	switch req.Action {
	case "play":
		httputil.WriteJSONOK(w, s.cfg.Player.Play())
	case "pause":
		httputil.WriteJSONOK(w, s.cfg.Player.Pause())
	case "seek":
		if req.Seconds == nil {
			httputil.BadRequest(w, "seek requires t")
			return
		}
		st, err := s.cfg.Player.Seek(pose.FromSeconds(*req.Seconds))
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, st)
	case "rate":
		if req.Rate == nil {
			httputil.BadRequest(w, "rate requires rate")
			return
		}
		st, err := s.cfg.Player.SetRate(*req.Rate)
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, st)
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) framePNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	t, err := s.at(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	width, height, err := frameSize(r, defaultFrameWidth, defaultFrameHeight)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	f, err := overlay.FrameAt(s.cfg.Resolver, t, s.cfg.Style, s.cfg.Options)
	if err != nil {
		writeError(w, err)
		return
	}

	// Transparent so the image can sit on top of the video element.
	var buf bytes.Buffer
	if err := overlay.WritePNG(&buf, f.Scene, width, height, color.Transparent); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) chart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	landmark := r.URL.Query().Get("landmark")
	if landmark == "" {
		httputil.BadRequest(w, "missing landmark")
		return
	}
	step, err := httputil.QueryDuration(r, "step", s.cfg.ChartStep)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ds, err := s.cfg.Resolver.Index().Dataset()
	if err != nil {
		writeError(w, err)
		return
	}

	cover := report.Summarize(ds).Coverage
	from, to := cover.Start, cover.End
	if v, ok, err := httputil.QueryFloat(r, "from"); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	} else if ok {
		from = pose.FromSeconds(v)
	}
	if v, ok, err := httputil.QueryFloat(r, "to"); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	} else if ok {
		to = pose.FromSeconds(v)
	}

	tc := overlay.TrajectoryChart{Resolver: s.cfg.Resolver, Landmark: landmark, From: from, To: to, Step: step}
	var buf bytes.Buffer
	if err := tc.Render(&buf); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// TickHandler serves the most recent overlay loop tick as JSON. It is meant
// for the /debug/ admin pages.
func (s *Server) TickHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Loop == nil {
			httputil.NotFound(w, "no overlay loop running")
			return
		}
		httputil.WriteJSONOK(w, s.cfg.Loop.LastTick())
	})
}
