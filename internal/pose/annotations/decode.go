// Package annotations decodes video-annotation documents into pose datasets.
//
// Two time schemas appear in the wild: decimal-seconds strings ("1.5s") and
// {seconds, nanos} pairs. Both are normalized to pose.TimeOffset here so the
// resolver only ever sees the canonical unit.
package annotations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/pose"
)

// ErrNoAnnotations is returned when a document has no annotation result at
// the requested index.
var ErrNoAnnotations = errors.New("no annotation results in document")

// Options controls how a document maps onto a dataset.
type Options struct {
	// ResultIndex selects the annotationResults entry (one per input video).
	ResultIndex int

	// FirstTrackOnly consults only tracks[0] of every person detection,
	// matching the original overlay. By default every track is indexed.
	FirstTrackOnly bool
}

// DecodeReport summarizes what was kept and dropped while decoding.
type DecodeReport struct {
	Tracks           int `json:"tracks"`
	Keyframes        int `json:"keyframes"`
	SkippedSamples   int `json:"skipped_samples"`   // keyframes without a time offset
	DuplicateSamples int `json:"duplicate_samples"` // keyframes sharing a time offset
	SkippedTracks    int `json:"skipped_tracks"`    // inverted or empty segments
	DerivedSegments  int `json:"derived_segments"`  // segments filled from keyframe times
}

// Wire schema. Each field with a snake_case twin accepts both spellings;
// encoding/json already ignores case.
type document struct {
	Response json.RawMessage `json:"response"`
}

type resultSet struct {
	AnnotationResults      []annotationResult `json:"annotationResults"`
	AnnotationResultsSnake []annotationResult `json:"annotation_results"`
}

type annotationResult struct {
	InputURI              string            `json:"inputUri"`
	InputURISnake         string            `json:"input_uri"`
	PersonDetections      []personDetection `json:"personDetectionAnnotations"`
	PersonDetectionsSnake []personDetection `json:"person_detection_annotations"`
}

type personDetection struct {
	Tracks []wireTrack `json:"tracks"`
}

type wireTrack struct {
	Segment                 *wireSegment `json:"segment"`
	TimestampedObjects      []wireObject `json:"timestampedObjects"`
	TimestampedObjectsSnake []wireObject `json:"timestamped_objects"`
}

type wireSegment struct {
	Start      timeField `json:"startTimeOffset"`
	StartSnake timeField `json:"start_time_offset"`
	End        timeField `json:"endTimeOffset"`
	EndSnake   timeField `json:"end_time_offset"`
}

type wireObject struct {
	TimeOffset       timeField         `json:"timeOffset"`
	TimeOffsetSnake  timeField         `json:"time_offset"`
	BoundingBox      *pose.BoundingBox `json:"normalizedBoundingBox"`
	BoundingBoxSnake *pose.BoundingBox `json:"normalized_bounding_box"`
	Landmarks        []wireLandmark    `json:"landmarks"`
	Attributes       []wireAttribute   `json:"attributes"`
}

type wireLandmark struct {
	Name       string     `json:"name"`
	Point      pose.Point `json:"point"`
	Confidence float64    `json:"confidence"`
}

type wireAttribute struct {
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	Value      json.RawMessage `json:"value"`
}

// Decode reads one annotation document. The top-level "response" wrapper is
// optional.
func Decode(r io.Reader, opts Options) (*pose.Dataset, DecodeReport, error) {
	var report DecodeReport

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, report, fmt.Errorf("failed to read annotations: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, report, fmt.Errorf("failed to parse annotations JSON: %w", err)
	}
	body := data
	if len(bytes.TrimSpace(doc.Response)) > 0 && !bytes.Equal(bytes.TrimSpace(doc.Response), []byte("null")) {
		body = doc.Response
	}

	var rs resultSet
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, report, fmt.Errorf("failed to parse annotation results: %w", err)
	}
	results := rs.AnnotationResults
	if len(results) == 0 {
		results = rs.AnnotationResultsSnake
	}
	if opts.ResultIndex < 0 || opts.ResultIndex >= len(results) {
		return nil, report, fmt.Errorf("result %d of %d: %w", opts.ResultIndex, len(results), ErrNoAnnotations)
	}
	res := results[opts.ResultIndex]

	ds := &pose.Dataset{InputURI: firstNonEmpty(res.InputURI, res.InputURISnake)}
	detections := res.PersonDetections
	if len(detections) == 0 {
		detections = res.PersonDetectionsSnake
	}

	for di, pd := range detections {
		tracks := pd.Tracks
		if opts.FirstTrackOnly && len(tracks) > 1 {
			tracks = tracks[:1]
		}
		for ti := range tracks {
			track, ok := convertTrack(&tracks[ti], &report)
			if !ok {
				monitoring.Logf("[annotations] skipping detection %d track %d: no usable segment", di, ti)
				report.SkippedTracks++
				continue
			}
			ds.Tracks = append(ds.Tracks, track)
		}
	}

	report.Tracks = len(ds.Tracks)
	report.Keyframes = ds.KeyframeCount()
	if report.SkippedSamples > 0 || report.DuplicateSamples > 0 {
		monitoring.Logf("[annotations] decoded %d tracks, %d keyframes (skipped %d untimed, %d duplicate samples)",
			report.Tracks, report.Keyframes, report.SkippedSamples, report.DuplicateSamples)
	}
	return ds, report, nil
}

func convertTrack(wt *wireTrack, report *DecodeReport) (pose.Track, bool) {
	objects := wt.TimestampedObjects
	if len(objects) == 0 {
		objects = wt.TimestampedObjectsSnake
	}

	kfs := make([]pose.Keyframe, 0, len(objects))
	for i := range objects {
		obj := &objects[i]
		tf := pickTime(obj.TimeOffset, obj.TimeOffsetSnake)
		if !tf.set {
			report.SkippedSamples++
			continue
		}
		kf := pose.Keyframe{Time: tf.value}
		if bb := pickBox(obj.BoundingBox, obj.BoundingBoxSnake); bb != nil {
			kf.BoundingBox = *bb
		}
		if obj.Landmarks != nil {
			kf.Landmarks = make([]pose.Landmark, len(obj.Landmarks))
			for j, wl := range obj.Landmarks {
				kf.Landmarks[j] = pose.Landmark{Name: wl.Name, Point: wl.Point, Confidence: wl.Confidence}
			}
		}
		for _, wa := range obj.Attributes {
			kf.Attributes = append(kf.Attributes, pose.Attribute{
				Name:       wa.Name,
				Confidence: wa.Confidence,
				Value:      attributeValue(wa.Value),
			})
		}
		kfs = append(kfs, kf)
	}

	sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Time < kfs[j].Time })
	// Samples sharing a time collapse to the last one in document order,
	// the one a "first keyframe after t" search treats as prev.
	deduped := kfs[:0]
	for i := range kfs {
		if len(deduped) > 0 && deduped[len(deduped)-1].Time == kfs[i].Time {
			report.DuplicateSamples++
			deduped[len(deduped)-1] = kfs[i]
			continue
		}
		deduped = append(deduped, kfs[i])
	}

	track := pose.Track{Keyframes: deduped}
	var start, end timeField
	if wt.Segment != nil {
		start = pickTime(wt.Segment.Start, wt.Segment.StartSnake)
		end = pickTime(wt.Segment.End, wt.Segment.EndSnake)
	}
	if !start.set || !end.set {
		if len(deduped) == 0 {
			return pose.Track{}, false
		}
		report.DerivedSegments++
		if !start.set {
			start = timeField{value: deduped[0].Time, set: true}
		}
		if !end.set {
			end = timeField{value: deduped[len(deduped)-1].Time, set: true}
		}
	}
	if end.value < start.value {
		return pose.Track{}, false
	}
	track.Segment = pose.Segment{Start: start.value, End: end.value}
	return track, true
}

func pickTime(a, b timeField) timeField {
	if a.set {
		return a
	}
	return b
}

func pickBox(a, b *pose.BoundingBox) *pose.BoundingBox {
	if a != nil {
		return a
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func attributeValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
