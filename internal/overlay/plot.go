package overlay

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black = color.NRGBA{A: 0xff}
)

// pixels converts a pixel measure to a vg.Length at the PNG canvas DPI.
func pixels(v float64) vg.Length {
	return vg.Length(v) * vg.Inch / vgimg.DefaultDPI
}

// WritePNG rasterizes a normalized scene onto a width x height PNG. One plot
// unit is one pixel, with y flipped so the origin is the top left like a
// canvas.
func WritePNG(w io.Writer, scene Scene, width, height int, background color.Color) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}
	px := scene.ToPixels(width, height)
	fh := float64(height)
	flip := func(x, y float64) plotter.XY { return plotter.XY{X: x, Y: fh - y} }

	p := plot.New()
	p.HideAxes()
	p.X.Padding, p.Y.Padding = 0, 0
	if background != nil {
		p.BackgroundColor = background
	}

	for _, b := range px.Boxes {
		outline, err := plotter.NewLine(plotter.XYs{
			flip(b.Left, b.Top), flip(b.Right, b.Top),
			flip(b.Right, b.Bottom), flip(b.Left, b.Bottom),
			flip(b.Left, b.Top),
		})
		if err != nil {
			return err
		}
		outline.Color = mustColor(b.Color, color.NRGBA{R: 0xff, A: 0xff})
		outline.Width = pixels(1)
		p.Add(outline)
	}

	for _, l := range px.Lines {
		line, err := plotter.NewLine(plotter.XYs{flip(l.From.X, l.From.Y), flip(l.To.X, l.To.Y)})
		if err != nil {
			return err
		}
		line.Color = mustColor(l.Color, white)
		line.Width = pixels(1)
		p.Add(line)
	}

	for _, m := range px.Markers {
		pts := plotter.XYs{flip(m.Center.X, m.Center.Y)}

		fill, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		fill.GlyphStyle.Shape = draw.CircleGlyph{}
		fill.GlyphStyle.Radius = pixels(m.Radius)
		fill.GlyphStyle.Color = mustColor(m.Fill, color.Transparent)

		ring, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		ring.GlyphStyle.Shape = draw.RingGlyph{}
		ring.GlyphStyle.Radius = pixels(m.Radius)
		ring.GlyphStyle.Color = mustColor(m.Stroke, white)

		p.Add(fill, ring)
	}

	// Add widens the axes to fit the data; pin them to the canvas afterwards
	// so off-frame landmarks are clipped rather than rescaling the image.
	p.X.Min, p.X.Max = 0, float64(width)
	p.Y.Min, p.Y.Max = 0, fh

	wt, err := p.WriterTo(pixels(float64(width)), pixels(fh), "png")
	if err != nil {
		return fmt.Errorf("failed to create png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// PlotPresenter renders each frame to PNG and keeps the latest image.
type PlotPresenter struct {
	Width, Height int
	Background    color.Color

	mu   sync.RWMutex
	last []byte
	t    int64
}

// NewPlotPresenter returns a presenter drawing on a black w x h canvas.
func NewPlotPresenter(w, h int) *PlotPresenter {
	return &PlotPresenter{Width: w, Height: h, Background: black}
}

// Present implements Presenter.
func (pp *PlotPresenter) Present(_ context.Context, f Frame) error {
	var buf bytes.Buffer
	if err := WritePNG(&buf, f.Scene, pp.Width, pp.Height, pp.Background); err != nil {
		return err
	}
	pp.mu.Lock()
	pp.last = buf.Bytes()
	pp.t = int64(f.T)
	pp.mu.Unlock()
	return nil
}

// Last returns the most recent PNG and its playback offset in nanoseconds.
func (pp *PlotPresenter) Last() ([]byte, int64) {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	return pp.last, pp.t
}
