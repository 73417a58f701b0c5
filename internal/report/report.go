// Package report summarises an annotation dataset: how much of the video it
// covers, how densely each track is sampled, and how confident the landmark
// detector was.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pose.overlay/internal/pose"
)

// TrackSummary describes one track.
type TrackSummary struct {
	Index         int             `json:"index"`
	Segment       pose.Segment    `json:"segment"`
	Keyframes     int             `json:"keyframes"`
	WithLandmarks int             `json:"with_landmarks"`
	Landmarks     int             `json:"landmarks"`
	MeanInterval  time.Duration   `json:"mean_interval_ns"`
	MaxInterval   time.Duration   `json:"max_interval_ns"`
	P95Interval   time.Duration   `json:"p95_interval_ns"`
	MeanConf      float64         `json:"mean_confidence"`
	MinConf       float64         `json:"min_confidence"`
	First         pose.TimeOffset `json:"first_keyframe_ns"`
	Last          pose.TimeOffset `json:"last_keyframe_ns"`
}

// Summary describes a whole dataset.
type Summary struct {
	InputURI      string         `json:"input_uri,omitempty"`
	Tracks        int            `json:"tracks"`
	Keyframes     int            `json:"keyframes"`
	Landmarks     int            `json:"landmarks"`
	Coverage      pose.Segment   `json:"coverage"`
	MeanKeyframes float64        `json:"mean_keyframes_per_track"`
	StdKeyframes  float64        `json:"stddev_keyframes_per_track"`
	MeanConf      float64        `json:"mean_confidence"`
	LandmarkNames []string       `json:"landmark_names"`
	PerTrack      []TrackSummary `json:"per_track"`
}

// Summarize computes a Summary. A nil or empty dataset yields a zero summary
// with empty slices.
func Summarize(ds *pose.Dataset) Summary {
	s := Summary{LandmarkNames: []string{}, PerTrack: []TrackSummary{}}
	if ds == nil {
		return s
	}
	s.InputURI = ds.InputURI
	s.Tracks = len(ds.Tracks)

	names := make(map[string]struct{})
	var counts, allConf []float64
	for i := range ds.Tracks {
		ts, conf := summarizeTrack(i, &ds.Tracks[i], names)
		s.PerTrack = append(s.PerTrack, ts)
		s.Keyframes += ts.Keyframes
		s.Landmarks += ts.Landmarks
		counts = append(counts, float64(ts.Keyframes))
		allConf = append(allConf, conf...)

		seg := ds.Tracks[i].Segment
		if i == 0 || seg.Start < s.Coverage.Start {
			s.Coverage.Start = seg.Start
		}
		if i == 0 || seg.End > s.Coverage.End {
			s.Coverage.End = seg.End
		}
	}

	if len(counts) > 0 {
		s.MeanKeyframes, s.StdKeyframes = stat.MeanStdDev(counts, nil)
		if len(counts) == 1 {
			s.StdKeyframes = 0
		}
	}
	if len(allConf) > 0 {
		s.MeanConf = stat.Mean(allConf, nil)
	}
	for name := range names {
		s.LandmarkNames = append(s.LandmarkNames, name)
	}
	sort.Strings(s.LandmarkNames)
	return s
}

func summarizeTrack(i int, tr *pose.Track, names map[string]struct{}) (TrackSummary, []float64) {
	ts := TrackSummary{Index: i, Segment: tr.Segment, Keyframes: len(tr.Keyframes)}
	if len(tr.Keyframes) == 0 {
		return ts, nil
	}
	ts.First = tr.Keyframes[0].Time
	ts.Last = tr.Keyframes[len(tr.Keyframes)-1].Time

	var conf []float64
	for _, kf := range tr.Keyframes {
		if kf.Landmarks != nil {
			ts.WithLandmarks++
		}
		for _, lm := range kf.Landmarks {
			ts.Landmarks++
			conf = append(conf, lm.Confidence)
			names[lm.Name] = struct{}{}
		}
	}
	if len(conf) > 0 {
		ts.MeanConf = stat.Mean(conf, nil)
		ts.MinConf = floats.Min(conf)
	}

	if len(tr.Keyframes) > 1 {
		gaps := make([]float64, 0, len(tr.Keyframes)-1)
		for j := 1; j < len(tr.Keyframes); j++ {
			gaps = append(gaps, float64(tr.Keyframes[j].Time-tr.Keyframes[j-1].Time))
		}
		ts.MeanInterval = time.Duration(stat.Mean(gaps, nil))
		ts.MaxInterval = time.Duration(floats.Max(gaps))
		sort.Float64s(gaps)
		ts.P95Interval = time.Duration(stat.Quantile(0.95, stat.Empirical, gaps, nil))
	}
	return ts, conf
}

// WriteText prints a human readable table of s.
func WriteText(w io.Writer, s Summary) error {
	if s.InputURI != "" {
		fmt.Fprintf(w, "input:      %s\n", s.InputURI)
	}
	fmt.Fprintf(w, "tracks:     %d\n", s.Tracks)
	fmt.Fprintf(w, "keyframes:  %d (%.1f ± %.1f per track)\n", s.Keyframes, s.MeanKeyframes, s.StdKeyframes)
	fmt.Fprintf(w, "landmarks:  %d, mean confidence %.3f\n", s.Landmarks, s.MeanConf)
	fmt.Fprintf(w, "coverage:   %s .. %s\n\n", s.Coverage.Start, s.Coverage.End)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tSTART\tEND\tKEYFRAMES\tWITH LM\tMEAN GAP\tMAX GAP\tP95 GAP\tMEAN CONF")
	for _, ts := range s.PerTrack {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%.3f\n",
			ts.Index, ts.Segment.Start, ts.Segment.End, ts.Keyframes, ts.WithLandmarks,
			ts.MeanInterval, ts.MaxInterval, ts.P95Interval, ts.MeanConf)
	}
	return tw.Flush()
}
