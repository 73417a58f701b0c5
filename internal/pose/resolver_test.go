package pose

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, ds *Dataset) *Resolver {
	t.Helper()
	ix, err := IndexOf(ds)
	require.NoError(t, err)
	return NewResolver(ix, DefaultResolverConfig())
}

func TestResolveNotReady(t *testing.T) {
	t.Parallel()

	r := NewResolver(NewIndex(), DefaultResolverConfig())
	poses, err := r.Resolve(0)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Nil(t, poses)
}

func TestResolveEmptyDataset(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &Dataset{})
	for _, ts := range []TimeOffset{-1, 0, FromSeconds(12.5)} {
		poses, err := r.Resolve(ts)
		require.NoError(t, err)
		assert.NotNil(t, poses)
		assert.Empty(t, poses)
	}
}

func TestResolveLinearInterpolation(t *testing.T) {
	t.Parallel()

	ds := SingleTrackDataset(
		kf(0, lm("left_wrist", 0.2, 0.3, 0.9)),
		kf(1, lm("left_wrist", 0.6, 0.7, 0.95)),
	)
	r := newTestResolver(t, ds)

	poses, err := r.Resolve(FromSeconds(0.25))
	require.NoError(t, err)
	require.Len(t, poses, 1)

	got, ok := poses[0].Landmark("left_wrist")
	require.True(t, ok)
	assert.InDelta(t, 0.3, got.Point.X, 1e-9)
	assert.InDelta(t, 0.4, got.Point.Y, 1e-9)
	assert.Equal(t, 0.95, got.Confidence, "confidence comes from the later keyframe")
	assert.Equal(t, FromSeconds(0.25), poses[0].T)
}

func TestResolveExactFirstKeyframePassthrough(t *testing.T) {
	t.Parallel()

	first := kf(1, lm("nose", 0.5, 0.5, 0.8), lm("left_ankle", 0.4, 0.9, 0.7))
	first.BoundingBox = BoundingBox{Left: 0.1, Top: 0.2, Right: 0.3, Bottom: 0.4}
	ds := &Dataset{Tracks: []Track{{
		Segment:   Segment{Start: 0, End: FromSeconds(3)},
		Keyframes: []Keyframe{first, kf(2, lm("nose", 0.9, 0.9, 0.1))},
	}}}
	r := newTestResolver(t, ds)

	// Before the first sample curr is the first keyframe and prev is absent.
	poses, err := r.Resolve(FromSeconds(0.5))
	require.NoError(t, err)
	require.Len(t, poses, 1)

	want := PoseObject{T: FromSeconds(0.5), Landmarks: first.Landmarks, BoundingBox: first.BoundingBox}
	if diff := cmp.Diff(want, poses[0]); diff != "" {
		t.Errorf("pose mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveNoExtrapolationPastLastKeyframe(t *testing.T) {
	t.Parallel()

	ds := &Dataset{Tracks: []Track{{
		Segment:   Segment{Start: 0, End: FromSeconds(10)},
		Keyframes: []Keyframe{kf(1, lm("nose", 0, 0, 1)), kf(2, lm("nose", 1, 1, 1))},
	}}}
	r := newTestResolver(t, ds)

	for _, ts := range []TimeOffset{FromSeconds(2), FromSeconds(2.001), FromSeconds(10)} {
		poses, err := r.Resolve(ts)
		require.NoError(t, err)
		assert.Empty(t, poses, "t=%s", ts)
	}
}

func TestResolveMissingLandmarkFallback(t *testing.T) {
	t.Parallel()

	ds := SingleTrackDataset(
		kf(0, lm("left_wrist", 0.0, 0.0, 0.5)),
		kf(1, lm("left_wrist", 1.0, 1.0, 0.5), lm("right_wrist", 0.7, 0.2, 0.6)),
	)
	r := newTestResolver(t, ds)

	poses, err := r.Resolve(FromSeconds(0.5))
	require.NoError(t, err)
	require.Len(t, poses, 1)

	right, ok := poses[0].Landmark("right_wrist")
	require.True(t, ok)
	assert.Equal(t, Point{X: 0.7, Y: 0.2}, right.Point)

	left, ok := poses[0].Landmark("left_wrist")
	require.True(t, ok)
	assert.InDelta(t, 0.5, left.Point.X, 1e-9)
}

func TestResolveCurrWithoutLandmarks(t *testing.T) {
	t.Parallel()

	bare := Keyframe{Time: FromSeconds(1), BoundingBox: BoundingBox{Right: 1, Bottom: 1}}
	ds := SingleTrackDataset(kf(0, lm("nose", 0.1, 0.1, 1)), bare)
	r := newTestResolver(t, ds)

	poses, err := r.Resolve(FromSeconds(0.5))
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Nil(t, poses[0].Landmarks)
	assert.Equal(t, bare.BoundingBox, poses[0].BoundingBox)
}

func TestResolvePrevWithoutLandmarks(t *testing.T) {
	t.Parallel()

	ds := SingleTrackDataset(Keyframe{Time: 0}, kf(1, lm("nose", 0.4, 0.6, 1)))
	r := newTestResolver(t, ds)

	poses, err := r.Resolve(FromSeconds(0.5))
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Equal(t, []Landmark{lm("nose", 0.4, 0.6, 1)}, poses[0].Landmarks)
}

func TestResolveBoundingBoxNotBlended(t *testing.T) {
	t.Parallel()

	a := kf(0, lm("nose", 0, 0, 1))
	a.BoundingBox = BoundingBox{Left: 0, Top: 0, Right: 0.2, Bottom: 0.2}
	b := kf(1, lm("nose", 1, 1, 1))
	b.BoundingBox = BoundingBox{Left: 0.5, Top: 0.5, Right: 0.9, Bottom: 0.9}
	r := newTestResolver(t, SingleTrackDataset(a, b))

	poses, err := r.Resolve(FromSeconds(0.5))
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Equal(t, b.BoundingBox, poses[0].BoundingBox)
}

func TestResolveDegenerateSpanUsesCurr(t *testing.T) {
	t.Parallel()

	// Hand-built keyframes with identical stamps bypass Publish validation.
	ix := NewIndex()
	ds := &Dataset{Tracks: []Track{{
		Segment: Segment{Start: 0, End: 10},
		Keyframes: []Keyframe{
			{Time: 5, Landmarks: []Landmark{lm("nose", 0, 0, 1)}},
			{Time: 5, Landmarks: []Landmark{lm("nose", 1, 1, 1)}},
		},
	}}}
	ix.ds.Store(ds)
	r := NewResolver(ix, DefaultResolverConfig())

	out := r.interpolate(&ds.Tracks[0].Keyframes[0], &ds.Tracks[0].Keyframes[1], 5)
	assert.Equal(t, Point{X: 1, Y: 1}, out.Landmarks[0].Point)
}

func TestResolveClampAlpha(t *testing.T) {
	t.Parallel()

	prev := kf(1, lm("nose", 0, 0, 1))
	curr := kf(2, lm("nose", 1, 1, 1))

	clamped := NewResolver(NewIndex(), ResolverConfig{ClampAlpha: true})
	out := clamped.interpolate(&prev, &curr, FromSeconds(0))
	assert.Equal(t, Point{X: 0, Y: 0}, out.Landmarks[0].Point)

	raw := NewResolver(NewIndex(), ResolverConfig{ClampAlpha: false})
	out = raw.interpolate(&prev, &curr, FromSeconds(0))
	assert.InDelta(t, -1.0, out.Landmarks[0].Point.X, 1e-9, "unclamped alpha extrapolates")
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()

	ds := &Dataset{Tracks: []Track{
		{
			Segment: Segment{Start: 0, End: FromSeconds(4)},
			Keyframes: []Keyframe{
				kf(0, lm("left_hip", 0.1, 0.2, 0.9), lm("right_hip", 0.3, 0.2, 0.9)),
				kf(1, lm("left_hip", 0.2, 0.3, 0.9), lm("right_hip", 0.4, 0.3, 0.9)),
				kf(2, lm("left_hip", 0.3, 0.5, 0.9)),
			},
		},
		{
			Segment:   Segment{Start: FromSeconds(0.5), End: FromSeconds(3)},
			Keyframes: []Keyframe{kf(0.5, lm("nose", 0.5, 0.1, 0.8)), kf(3, lm("nose", 0.6, 0.2, 0.8))},
		},
	}}
	r := newTestResolver(t, ds)

	for _, ts := range []TimeOffset{FromSeconds(0.75), FromSeconds(1.5), FromSeconds(0.75)} {
		first, err := r.Resolve(ts)
		require.NoError(t, err)
		second, err := r.Resolve(ts)
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Resolve(%s) not idempotent (-first +second):\n%s", ts, diff)
		}
	}

	poses, err := r.Resolve(FromSeconds(0.75))
	require.NoError(t, err)
	require.Len(t, poses, 2)
	_, ok := poses[0].Landmark("left_hip")
	assert.True(t, ok, "first active track comes first")
	_, ok = poses[1].Landmark("nose")
	assert.True(t, ok)
}

func TestResolveDoesNotAliasDataset(t *testing.T) {
	t.Parallel()

	ds := SingleTrackDataset(kf(0, lm("nose", 0, 0, 1)), kf(1, lm("nose", 1, 1, 1)))
	r := newTestResolver(t, ds)

	poses, err := r.Resolve(FromSeconds(0.5))
	require.NoError(t, err)
	poses[0].Landmarks[0].Point.X = 42

	assert.Equal(t, 1.0, ds.Tracks[0].Keyframes[1].Landmarks[0].Point.X)
}

func TestResolveAtKeyframeTimeReproducesIt(t *testing.T) {
	t.Parallel()

	first := kf(1, lm("nose", 0.5, 0.5, 0.8), lm("left_knee", 0.3, 0.7, 0.6))
	second := kf(2, lm("nose", 0.9, 0.1, 0.7), lm("left_knee", 0.1, 0.9, 0.5))
	r := newTestResolver(t, SingleTrackDataset(first, second))

	poses, err := r.Resolve(first.Time)
	require.NoError(t, err)
	require.Len(t, poses, 1)
	for _, want := range first.Landmarks {
		got, ok := poses[0].Landmark(want.Name)
		require.True(t, ok)
		assert.Equal(t, want.Point, got.Point, want.Name)
	}
}

func TestResolveTrack(t *testing.T) {
	t.Parallel()

	ds := SingleTrackDataset(kf(1, lm("nose", 0, 0, 1)), kf(2, lm("nose", 1, 1, 1)))
	r := NewResolver(NewIndex(), DefaultResolverConfig())
	track := &ds.Tracks[0]

	po, ok := r.ResolveTrack(track, FromSeconds(1.5))
	require.True(t, ok, "works without a published index")
	assert.InDelta(t, 0.5, po.Landmarks[0].Point.X, 1e-9)

	_, ok = r.ResolveTrack(track, FromSeconds(0.5))
	assert.False(t, ok, "outside segment")
	_, ok = r.ResolveTrack(track, FromSeconds(2))
	assert.False(t, ok, "at the last keyframe")
	_, ok = r.ResolveTrack(nil, 0)
	assert.False(t, ok)
}
