package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/httputil"
	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/playback"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/testutil"
	"github.com/banshee-data/pose.overlay/internal/timeutil"
)

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewTestRequest(method, target)
	if body != "" {
		req = testutil.NewJSONRequest(method, target, body)
	}
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func TestGetPoses(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t)})

	rec := serve(t, s, http.MethodGet, "/api/poses?t=0.5", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp posesResponse
	testutil.DecodeJSON(t, rec.Body, &resp)
	assert.Equal(t, pose.FromSeconds(0.5), resp.T)
	assert.Equal(t, 0.5, resp.Seconds)
	require.Len(t, resp.Poses, 1)
	hip, ok := resp.Poses[0].Landmark("left_hip")
	require.True(t, ok)
	assert.InDelta(t, 0.5, hip.Point.X, 1e-9)

	rec = serve(t, s, http.MethodGet, "/api/poses?t=1.5", "")
	testutil.DecodeJSON(t, rec.Body, &resp)
	assert.Len(t, resp.Poses, 2)
}

func TestGetPosesErrors(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{Resolver: testutil.ReadyResolver(t)})
	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/api/poses", "").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/api/poses?t=abc", "").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, serve(t, s, http.MethodPost, "/api/poses?t=1", "").Code, http.StatusMethodNotAllowed)

	// Far past the end saturates instead of wrapping to a negative offset.
	var far posesResponse
	rec := serve(t, s, http.MethodGet, "/api/poses?t=1e11", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec.Body, &far)
	assert.Empty(t, far.Poses)
	assert.Equal(t, pose.MaxTimeOffset, far.T)

	loading := NewServer(Config{Resolver: pose.NewResolver(pose.NewIndex(), pose.DefaultResolverConfig())})
	for _, target := range []string{"/api/poses?t=1", "/api/scene?t=1", "/api/tracks?t=1", "/api/dataset", "/frame.png?t=1", "/chart?landmark=nose"} {
		rec := serve(t, loading, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		var body httputil.ErrorBody
		testutil.DecodeJSON(t, rec.Body, &body)
		assert.Equal(t, "not_ready", body.Code, target)
	}
}

func TestGetPosesUsesPlaybackPosition(t *testing.T) {
	t.Parallel()

	pos := &playback.ManualClock{}
	pos.Set(pose.FromSeconds(1.5))
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t), Position: pos})

	var resp posesResponse
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/poses", "").Body, &resp)
	assert.Equal(t, pose.FromSeconds(1.5), resp.T)
}

func TestGetScene(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t), Style: overlay.DefaultStyle()})

	var scene overlay.Scene
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/scene?t=0.5", "").Body, &scene)
	require.Len(t, scene.Lines, 1)
	assert.InDelta(t, 0.5, scene.Lines[0].From.X, 1e-9)
	assert.Zero(t, scene.Width, "normalized by default")

	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/scene?t=0.5&w=200&h=100", "").Body, &scene)
	assert.Equal(t, 200, scene.Width)
	assert.Equal(t, 100, scene.Height)
	assert.InDelta(t, 100, scene.Lines[0].From.X, 1e-9)

	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/api/scene?t=0.5&w=0", "").Code, http.StatusBadRequest)
}

func TestGetTracks(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t)})

	var resp tracksResponse
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/tracks?t=1.5", "").Body, &resp)
	require.Len(t, resp.Tracks, 2)

	first := resp.Tracks[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 3, first.Keyframes)
	require.NotNil(t, first.Prev)
	require.NotNil(t, first.Curr)
	assert.Equal(t, pose.FromSeconds(1), *first.Prev)
	assert.Equal(t, pose.FromSeconds(2), *first.Curr)

	second := resp.Tracks[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, pose.FromSeconds(1.5), *second.Prev)

	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/tracks?t=3", "").Body, &resp)
	require.Len(t, resp.Tracks, 1)
	assert.Nil(t, resp.Tracks[0].Curr, "past the last keyframe")

	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/tracks?t=10", "").Body, &resp)
	assert.NotNil(t, resp.Tracks)
	assert.Empty(t, resp.Tracks)
}

func TestGetDataset(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t)})

	var summary map[string]any
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/dataset", "").Body, &summary)
	assert.Equal(t, 2.0, summary["tracks"])
	assert.Equal(t, 5.0, summary["keyframes"])
	assert.Equal(t, []any{"left_hip", "left_knee"}, summary["landmark_names"])
}

func TestListDatasets(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{Resolver: testutil.ReadyResolver(t)})
	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/api/datasets", "").Code, http.StatusNotFound)

	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	defer store.Close()

	s = NewServer(Config{Resolver: testutil.ReadyResolver(t), Store: store})
	rec := serve(t, s, http.MethodGet, "/api/datasets", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, "[]", rec.Body.String())

	id, err := store.ImportDataset(testutil.TwoTrackDataset(), "legs")
	require.NoError(t, err)
	var list []db.DatasetSummary
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/datasets", "").Body, &list)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "legs", list[0].Name)
}

func TestPlayback(t *testing.T) {
	t.Parallel()

	mock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	wall := playback.NewWallClock(mock)
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t), Player: wall})

	var st playback.Status
	testutil.DecodeJSON(t, serve(t, s, http.MethodPost, "/api/playback", `{"action":"seek","t":1}`).Body, &st)
	assert.Equal(t, pose.FromSeconds(1), st.Position)

	testutil.DecodeJSON(t, serve(t, s, http.MethodPost, "/api/playback", `{"action":"rate","rate":0.5}`).Body, &st)
	assert.Equal(t, 0.5, st.Rate)

	testutil.DecodeJSON(t, serve(t, s, http.MethodPost, "/api/playback", `{"action":"play"}`).Body, &st)
	assert.True(t, st.Playing)

	mock.Advance(time.Second)
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/playback", "").Body, &st)
	assert.Equal(t, pose.FromSeconds(1.5), st.Position)

	var resp posesResponse
	testutil.DecodeJSON(t, serve(t, s, http.MethodGet, "/api/poses", "").Body, &resp)
	assert.Equal(t, pose.FromSeconds(1.5), resp.T, "position defaults to the player")

	testutil.DecodeJSON(t, serve(t, s, http.MethodPost, "/api/playback", `{"action":"pause"}`).Body, &st)
	assert.False(t, st.Playing)

	tests := map[string]struct {
		body string
		want int
	}{
		"negative seek": {`{"action":"seek","t":-1}`, http.StatusBadRequest},
		"seek no t":     {`{"action":"seek"}`, http.StatusBadRequest},
		"zero rate":     {`{"action":"rate","rate":0}`, http.StatusBadRequest},
		"rate missing":  {`{"action":"rate"}`, http.StatusBadRequest},
		"unknown":       {`{"action":"rewind"}`, http.StatusBadRequest},
		"bad json":      {`{`, http.StatusBadRequest},
	}
	for name, tt := range tests {
		rec := serve(t, s, http.MethodPost, "/api/playback", tt.body)
		assert.Equal(t, tt.want, rec.Code, name)
	}
	testutil.AssertStatusCode(t, serve(t, s, http.MethodDelete, "/api/playback", "").Code, http.StatusMethodNotAllowed)

	noPlayer := NewServer(Config{Resolver: testutil.ReadyResolver(t)})
	testutil.AssertStatusCode(t, serve(t, noPlayer, http.MethodGet, "/api/playback", "").Code, http.StatusNotFound)
}

func TestFramePNG(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t), Style: overlay.DefaultStyle()})

	rec := serve(t, s, http.MethodGet, "/frame.png?t=0.5&w=160&h=90", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 90, cfg.Height)

	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/frame.png?t=0.5&w=99999", "").Code, http.StatusBadRequest)
}

func TestChart(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Resolver: testutil.ReadyResolver(t), ChartStep: 250 * time.Millisecond})

	rec := serve(t, s, http.MethodGet, "/chart?landmark=left_hip", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Trajectory: left_hip")
	assert.Contains(t, rec.Body.String(), "track 1 x")

	rec = serve(t, s, http.MethodGet, "/chart?landmark=left_hip&from=0&to=0.75&step=100ms", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.NotContains(t, rec.Body.String(), "track 1 x", "track 1 starts at 1s")

	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/chart", "").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/chart?landmark=left_hip&step=-1s", "").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/chart?landmark=left_hip&from=2&to=1", "").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, "/chart?landmark=left_hip&from=-9000000000&to=9000000000&step=1h", "").Code, http.StatusBadRequest)
}

func TestTickHandler(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{Resolver: testutil.ReadyResolver(t)})
	rec := testutil.NewTestRecorder()
	s.TickHandler().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/tick"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	pos := &playback.ManualClock{}
	pos.Set(pose.FromSeconds(0.5))
	loop := overlay.NewLoop(overlay.LoopConfig{Resolver: testutil.ReadyResolver(t), Position: pos})
	require.NoError(t, loop.Tick(t.Context(), time.Unix(100, 0)))

	s = NewServer(Config{Resolver: testutil.ReadyResolver(t), Loop: loop})
	rec = testutil.NewTestRecorder()
	s.TickHandler().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/tick"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var dbg overlay.TickDebug
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dbg))
	assert.Equal(t, pose.FromSeconds(0.5), dbg.T)
	assert.Equal(t, 1, dbg.ActiveTracks)
	assert.Equal(t, uint64(1), dbg.Ticks)
}

func TestLoggingMiddleware(t *testing.T) {
	logs, restore := monitoring.Record()
	defer restore()

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/x"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)
	require.Len(t, logs.Lines(), 1)
	assert.Contains(t, logs.Lines()[0], "GET")
	assert.Contains(t, logs.Lines()[0], "/x")

	assert.Contains(t, statusCodeColor(200), "200")
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(503), colorBoldRed)
	assert.Equal(t, "101", statusCodeColor(101))
}
