package pose

import (
	"errors"
	"fmt"
)

// ErrUnsortedKeyframes is returned by Validate when a track's keyframes are
// not strictly ascending in time.
var ErrUnsortedKeyframes = errors.New("keyframes not strictly ascending")

// Point is a normalized image-space coordinate, nominally in [0,1]x[0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmark is one named anatomical keypoint.
type Landmark struct {
	Name       string  `json:"name"`
	Point      Point   `json:"point"`
	Confidence float64 `json:"confidence"`
}

// BoundingBox is a normalized person bounding box.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Attribute is free-form per-sample metadata carried through from the source
// annotations. Nothing downstream interprets it.
type Attribute struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence,omitempty"`
	Value      string  `json:"value,omitempty"`
}

// Keyframe is one sample of a tracked person at a given offset.
// A nil Landmarks slice means the sample carried no landmarks.
type Keyframe struct {
	Time        TimeOffset  `json:"time_ns"`
	Landmarks   []Landmark  `json:"landmarks,omitempty"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Segment is the validity window of a track. Both bounds are inclusive.
type Segment struct {
	Start TimeOffset `json:"start_ns"`
	End   TimeOffset `json:"end_ns"`
}

// Contains reports whether start <= t <= end.
func (s Segment) Contains(t TimeOffset) bool {
	return s.Start <= t && t <= s.End
}

// Track is one detected person across the video.
// Keyframes are sorted ascending by Time with no two sharing a Time.
type Track struct {
	Segment   Segment    `json:"segment"`
	Keyframes []Keyframe `json:"keyframes"`
}

// Dataset is the full loaded annotation result. It is never mutated after it
// has been published to an Index.
type Dataset struct {
	InputURI string  `json:"input_uri,omitempty"`
	Tracks   []Track `json:"tracks"`
}

// Validate checks the keyframe ordering invariant of every track.
func (ds *Dataset) Validate() error {
	for i := range ds.Tracks {
		kfs := ds.Tracks[i].Keyframes
		for j := 1; j < len(kfs); j++ {
			if kfs[j].Time <= kfs[j-1].Time {
				return fmt.Errorf("track %d keyframe %d (%s after %s): %w",
					i, j, kfs[j].Time, kfs[j-1].Time, ErrUnsortedKeyframes)
			}
		}
	}
	return nil
}

// KeyframeCount returns the number of keyframes across all tracks.
func (ds *Dataset) KeyframeCount() int {
	n := 0
	for i := range ds.Tracks {
		n += len(ds.Tracks[i].Keyframes)
	}
	return n
}

// PoseObject is a pose resolved for one instant. It is rebuilt on every
// Resolve call and shares no memory with the Dataset.
type PoseObject struct {
	T           TimeOffset  `json:"t_ns"`
	Landmarks   []Landmark  `json:"landmarks,omitempty"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// Landmark returns the first landmark with the given name.
func (p PoseObject) Landmark(name string) (Landmark, bool) {
	for _, lm := range p.Landmarks {
		if lm.Name == name {
			return lm, true
		}
	}
	return Landmark{}, false
}
