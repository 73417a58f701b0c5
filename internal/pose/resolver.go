package pose

// ResolverConfig holds resolver options.
type ResolverConfig struct {
	// ClampAlpha limits the interpolation factor to [0,1] so a pose can never
	// be extrapolated beyond its bracketing keyframes.
	ClampAlpha bool
}

// DefaultResolverConfig returns the configuration used when none is given.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{ClampAlpha: true}
}

// Resolver produces the poses visible at a playback instant.
//
// Resolve keeps no state between calls: the output depends only on the
// published dataset and t, so seeking backwards or repeating a tick yields
// identical results.
type Resolver struct {
	index  *Index
	config ResolverConfig
}

// NewResolver creates a Resolver reading from index.
func NewResolver(index *Index, cfg ResolverConfig) *Resolver {
	return &Resolver{index: index, config: cfg}
}

// Index returns the index the resolver reads from.
func (r *Resolver) Index() *Index {
	return r.index
}

// Resolve returns one PoseObject per active track that has a keyframe after
// t, in dataset order. It returns ErrNotReady before the dataset is
// published; any other condition, including zero active tracks, yields a
// possibly empty slice and a nil error.
func (r *Resolver) Resolve(t TimeOffset) ([]PoseObject, error) {
	active, err := r.index.TracksActiveAt(t)
	if err != nil {
		return nil, err
	}

	poses := make([]PoseObject, 0, len(active))
	for _, track := range active {
		prev, curr := bracket(track, t)
		if curr == nil {
			// Past the last sample: no extrapolation.
			continue
		}
		poses = append(poses, r.interpolate(prev, curr, t))
	}
	return poses, nil
}

// ResolveTrack resolves a single track at t. ok is false when the track's
// segment excludes t or t is at or past its last keyframe. It does not
// consult the index, so it works on any track satisfying the keyframe
// ordering invariant.
func (r *Resolver) ResolveTrack(track *Track, t TimeOffset) (PoseObject, bool) {
	if track == nil || !track.Segment.Contains(t) {
		return PoseObject{}, false
	}
	prev, curr := bracket(track, t)
	if curr == nil {
		return PoseObject{}, false
	}
	return r.interpolate(prev, curr, t), true
}

// interpolate blends landmark points of curr towards prev. Only points are
// blended; confidence, bounding box and attributes come from curr.
func (r *Resolver) interpolate(prev, curr *Keyframe, t TimeOffset) PoseObject {
	out := PoseObject{
		T:           t,
		BoundingBox: curr.BoundingBox,
		Landmarks:   copyLandmarks(curr.Landmarks),
	}

	if prev == nil || len(prev.Landmarks) == 0 || len(curr.Landmarks) == 0 {
		return out
	}
	span := curr.Time - prev.Time
	if span <= 0 {
		// Identically stamped keyframes: treat as having no previous sample.
		return out
	}

	alpha := float64(curr.Time-t) / float64(span)
	if r.config.ClampAlpha {
		alpha = clamp01(alpha)
	}

	byName := make(map[string]Point, len(prev.Landmarks))
	for _, lm := range prev.Landmarks {
		if _, seen := byName[lm.Name]; !seen {
			byName[lm.Name] = lm.Point
		}
	}

	for i := range out.Landmarks {
		lm := &out.Landmarks[i]
		p, ok := byName[lm.Name]
		if !ok {
			continue
		}
		lm.Point = Point{
			X: lerp(lm.Point.X, p.X, alpha),
			Y: lerp(lm.Point.Y, p.Y, alpha),
		}
	}
	return out
}

func copyLandmarks(src []Landmark) []Landmark {
	if src == nil {
		return nil
	}
	dst := make([]Landmark, len(src))
	copy(dst, src)
	return dst
}

// lerp moves from the curr value c towards the prev value p. The endpoints
// are returned exactly so a tick landing on a keyframe reproduces it.
func lerp(c, p, alpha float64) float64 {
	switch alpha {
	case 0:
		return c
	case 1:
		return p
	}
	return c + (p-c)*alpha
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
