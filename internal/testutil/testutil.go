// Package testutil holds HTTP assertions and pose fixtures shared by the
// api, stream and command tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/pose.overlay/internal/pose"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest creates a test HTTP request carrying body as JSON.
func NewJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// DecodeJSON decodes r into v, failing the test on error.
func DecodeJSON(t *testing.T, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// LegKeyframe is a keyframe at sec holding a vertical left thigh at x:
// left_hip at (x, 0) and left_knee at (x, 1).
func LegKeyframe(sec, x float64) pose.Keyframe {
	return pose.Keyframe{Time: pose.FromSeconds(sec), Landmarks: []pose.Landmark{
		{Name: "left_hip", Point: pose.Point{X: x, Y: 0}, Confidence: 0.9},
		{Name: "left_knee", Point: pose.Point{X: x, Y: 1}, Confidence: 0.8},
	}}
}

// TwoTrackDataset returns two overlapping tracks of leg keyframes.
//
//	track 0: segment [0s, 2s], keyframes at 0s (x=0), 1s (x=1), 2s (x=0.5)
//	track 1: segment [1s, 3s], keyframes at 1.5s (x=0.2), 3s (x=0.4)
//
// Each call returns a fresh copy.
func TwoTrackDataset() *pose.Dataset {
	return &pose.Dataset{
		InputURI: "file:///clips/squat.mp4",
		Tracks: []pose.Track{
			{
				Segment:   pose.Segment{Start: 0, End: pose.FromSeconds(2)},
				Keyframes: []pose.Keyframe{LegKeyframe(0, 0), LegKeyframe(1, 1), LegKeyframe(2, 0.5)},
			},
			{
				Segment:   pose.Segment{Start: pose.FromSeconds(1), End: pose.FromSeconds(3)},
				Keyframes: []pose.Keyframe{LegKeyframe(1.5, 0.2), LegKeyframe(3, 0.4)},
			},
		},
	}
}

// ReadyResolver indexes TwoTrackDataset and returns a resolver over it with
// the default configuration.
func ReadyResolver(t *testing.T) *pose.Resolver {
	t.Helper()
	ix, err := pose.IndexOf(TwoTrackDataset())
	AssertNoError(t, err)
	return pose.NewResolver(ix, pose.DefaultResolverConfig())
}
