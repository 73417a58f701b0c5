package overlay

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.overlay/internal/pose"
)

func chartDataset() *pose.Dataset {
	return &pose.Dataset{Tracks: []pose.Track{
		{
			Segment: pose.Segment{Start: 0, End: pose.FromSeconds(1)},
			Keyframes: []pose.Keyframe{
				{Time: 0, Landmarks: []pose.Landmark{lm("left_wrist", 0, 0)}},
				{Time: pose.FromSeconds(1), Landmarks: []pose.Landmark{lm("left_wrist", 1, 0.5)}},
			},
		},
		{
			Segment:   pose.Segment{Start: 0, End: pose.FromSeconds(1)},
			Keyframes: []pose.Keyframe{{Time: pose.FromSeconds(1), Landmarks: []pose.Landmark{lm("nose", 0.5, 0.1)}}},
		},
	}}
}

func newChartResolver(t *testing.T) *pose.Resolver {
	t.Helper()
	ix, err := pose.IndexOf(chartDataset())
	require.NoError(t, err)
	return pose.NewResolver(ix, pose.DefaultResolverConfig())
}

func TestTrajectorySample(t *testing.T) {
	t.Parallel()

	tc := TrajectoryChart{
		Resolver: newChartResolver(t),
		Landmark: "left_wrist",
		From:     0,
		To:       pose.FromSeconds(1),
		Step:     250 * time.Millisecond,
	}
	times, series, err := tc.Sample()
	require.NoError(t, err)
	require.Len(t, times, 5)
	assert.Equal(t, pose.FromSeconds(0.75), times[3])

	require.Len(t, series, 1, "track without the landmark is omitted")
	s := series[0]
	assert.Equal(t, 0, s.Track)
	assert.InDelta(t, 0.25, s.X[1], 1e-9)
	assert.InDelta(t, 0.125, s.Y[1], 1e-9)
	assert.True(t, math.IsNaN(s.X[4]), "no pose at the last keyframe")
}

func TestTrajectorySampleErrors(t *testing.T) {
	t.Parallel()

	r := newChartResolver(t)
	tests := map[string]TrajectoryChart{
		"no landmark":      {Resolver: r, To: 1, Step: time.Second},
		"zero step":        {Resolver: r, Landmark: "nose", To: 1},
		"inverted":         {Resolver: r, Landmark: "nose", From: 5, To: 1, Step: time.Second},
		"too many":         {Resolver: r, Landmark: "nose", To: pose.FromSeconds(3600), Step: time.Millisecond},
		"wider than int64": {Resolver: r, Landmark: "nose", From: pose.FromSeconds(-9e9), To: pose.FromSeconds(9e9), Step: time.Hour},
		"full range":       {Resolver: r, Landmark: "nose", From: math.MinInt64, To: math.MaxInt64, Step: time.Hour},
		"not ready":        {Resolver: pose.NewResolver(pose.NewIndex(), pose.DefaultResolverConfig()), Landmark: "nose", To: 1, Step: time.Second},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, err := tc.Sample()
			assert.Error(t, err)
		})
	}
}

func TestTrajectorySampleLimit(t *testing.T) {
	t.Parallel()

	tc := TrajectoryChart{
		Resolver: newChartResolver(t),
		Landmark: "left_wrist",
		To:       pose.FromDuration((MaxChartSamples - 1) * time.Millisecond),
		Step:     time.Millisecond,
	}
	times, _, err := tc.Sample()
	require.NoError(t, err)
	assert.Len(t, times, MaxChartSamples)

	tc.To += pose.FromDuration(time.Millisecond)
	_, _, err = tc.Sample()
	assert.Error(t, err)
}

func TestTrajectoryRender(t *testing.T) {
	t.Parallel()

	tc := TrajectoryChart{
		Resolver: newChartResolver(t),
		Landmark: "left_wrist",
		To:       pose.FromSeconds(1),
		Step:     100 * time.Millisecond,
	}
	var buf bytes.Buffer
	require.NoError(t, tc.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "Trajectory: left_wrist")
	assert.Contains(t, out, "track 0 x")
	assert.Contains(t, out, "track 0 y")
	assert.Contains(t, out, `"-"`)
}

func TestLineDataGaps(t *testing.T) {
	t.Parallel()

	data := lineData([]float64{0.5, math.NaN()})
	assert.Equal(t, 0.5, data[0].Value)
	assert.Equal(t, "-", data[1].Value)
}
