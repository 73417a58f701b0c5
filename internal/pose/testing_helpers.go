package pose

// SingleTrackDataset wraps keyframes into a dataset with one track whose
// segment spans from the first to the last keyframe.
//
// NOTE: intended for tests in this and other packages; an empty keyframe
// slice yields an empty segment at zero.
func SingleTrackDataset(kfs ...Keyframe) *Dataset {
	var seg Segment
	if len(kfs) > 0 {
		seg = Segment{Start: kfs[0].Time, End: kfs[len(kfs)-1].Time}
	}
	return &Dataset{Tracks: []Track{{Segment: seg, Keyframes: kfs}}}
}
