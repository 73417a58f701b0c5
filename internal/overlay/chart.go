package overlay

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pose.overlay/internal/pose"
)

// MaxChartSamples bounds the number of time steps a chart may sample.
const MaxChartSamples = 20000

// TrajectoryChart samples one landmark across a time range and plots its
// x and y per track.
type TrajectoryChart struct {
	Resolver *pose.Resolver
	Landmark string
	From, To pose.TimeOffset
	Step     time.Duration
}

// TrajectorySeries is the sampled path of a landmark on one track. Values
// are NaN where the track is inactive or lacks the landmark.
type TrajectorySeries struct {
	Track int       `json:"track"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
}

// Sample resolves the landmark at every step in [From, To]. Tracks that
// never show the landmark are omitted.
func (tc TrajectoryChart) Sample() ([]pose.TimeOffset, []TrajectorySeries, error) {
	if tc.Landmark == "" {
		return nil, nil, errors.New("landmark name required")
	}
	if tc.Step <= 0 {
		return nil, nil, fmt.Errorf("step must be positive, got %s", tc.Step)
	}
	if tc.To < tc.From {
		return nil, nil, fmt.Errorf("invalid range %s..%s", tc.From, tc.To)
	}
	step := pose.FromDuration(tc.Step)
	// To-From can exceed int64 when From is negative; the unsigned
	// difference is exact for any To >= From.
	span := uint64(tc.To) - uint64(tc.From)
	steps := span / uint64(step)
	if steps >= MaxChartSamples {
		return nil, nil, fmt.Errorf("range %s..%s needs more than %d samples; increase step", tc.From, tc.To, MaxChartSamples)
	}
	n := int(steps) + 1

	ds, err := tc.Resolver.Index().Dataset()
	if err != nil {
		return nil, nil, err
	}

	times := make([]pose.TimeOffset, n)
	for i := range times {
		times[i] = tc.From + pose.TimeOffset(i)*step
	}

	var series []TrajectorySeries
	for ti := range ds.Tracks {
		s := TrajectorySeries{Track: ti, X: make([]float64, n), Y: make([]float64, n)}
		seen := false
		for i, t := range times {
			s.X[i], s.Y[i] = math.NaN(), math.NaN()
			po, ok := tc.Resolver.ResolveTrack(&ds.Tracks[ti], t)
			if !ok {
				continue
			}
			if lm, ok := po.Landmark(tc.Landmark); ok {
				s.X[i], s.Y[i] = lm.Point.X, lm.Point.Y
				seen = true
			}
		}
		if seen {
			series = append(series, s)
		}
	}
	return times, series, nil
}

// Render writes an HTML line chart of the sampled trajectory.
func (tc TrajectoryChart) Render(w io.Writer) error {
	times, series, err := tc.Sample()
	if err != nil {
		return err
	}

	xAxis := make([]string, len(times))
	for i, t := range times {
		xAxis[i] = strconv.FormatFloat(t.Seconds(), 'f', 3, 64)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Landmark Trajectory", Theme: "dark", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Trajectory: " + tc.Landmark,
			Subtitle: fmt.Sprintf("%s..%s step=%s tracks=%d", tc.From, tc.To, tc.Step, len(series)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "normalized", Min: 0, Max: 1, Inverse: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis)
	for _, s := range series {
		line.AddSeries(fmt.Sprintf("track %d x", s.Track), lineData(s.X))
		line.AddSeries(fmt.Sprintf("track %d y", s.Track), lineData(s.Y))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(false), ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

func lineData(vals []float64) []opts.LineData {
	out := make([]opts.LineData, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}
