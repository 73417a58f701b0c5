package overlay

import (
	"github.com/banshee-data/pose.overlay/internal/pose"
)

// Line is a limb segment between two landmarks.
type Line struct {
	From  pose.Point `json:"from"`
	To    pose.Point `json:"to"`
	Color string     `json:"color"`
}

// Marker is a joint dot.
type Marker struct {
	Name   string     `json:"name"`
	Center pose.Point `json:"center"`
	Stroke string     `json:"stroke"`
	Fill   string     `json:"fill"`
	Radius float64    `json:"radius_px"`
}

// Box is a person bounding box.
type Box struct {
	pose.BoundingBox
	Color string `json:"color"`
}

// Scene is everything drawn for one instant. Points are normalized unless
// the scene came from ToPixels.
type Scene struct {
	T       pose.TimeOffset `json:"t_ns"`
	Width   int             `json:"width,omitempty"`
	Height  int             `json:"height,omitempty"`
	Lines   []Line          `json:"lines"`
	Markers []Marker        `json:"markers"`
	Boxes   []Box           `json:"boxes,omitempty"`
}

// BuildOptions selects optional scene elements.
type BuildOptions struct {
	DrawBoundingBoxes bool
}

// BuildScene lays out limbs, joint markers and optional boxes for poses.
// A limb is drawn only when both of its landmarks are present; a marker only
// when the style has a color for the landmark. Poses without landmarks
// contribute nothing but their bounding box.
func BuildScene(t pose.TimeOffset, poses []pose.PoseObject, style Style, opts BuildOptions) Scene {
	scene := Scene{T: t, Lines: []Line{}, Markers: []Marker{}}

	for i := range poses {
		p := &poses[i]
		if opts.DrawBoundingBoxes {
			scene.Boxes = append(scene.Boxes, Box{BoundingBox: p.BoundingBox, Color: style.BoxColor})
		}
		if len(p.Landmarks) == 0 {
			continue
		}

		points := make(map[string]pose.Point, len(p.Landmarks))
		for _, lm := range p.Landmarks {
			if _, seen := points[lm.Name]; !seen {
				points[lm.Name] = lm.Point
			}
		}
		for _, limb := range Skeleton {
			from, ok1 := points[limb.From]
			to, ok2 := points[limb.To]
			if !ok1 || !ok2 {
				continue
			}
			scene.Lines = append(scene.Lines, Line{From: from, To: to, Color: style.LimbColor})
		}

		for _, lm := range p.Landmarks {
			stroke, ok := style.ColorFor(lm.Name)
			if !ok {
				continue
			}
			scene.Markers = append(scene.Markers, Marker{
				Name:   lm.Name,
				Center: lm.Point,
				Stroke: stroke,
				Fill:   style.MarkerFill,
				Radius: style.MarkerRadiusPx,
			})
		}
	}
	return scene
}

// ToPixels scales the normalized scene to a w x h canvas with the origin at
// the top left. Marker radii are already in pixels and are unchanged.
func (s Scene) ToPixels(w, h int) Scene {
	fw, fh := float64(w), float64(h)
	scale := func(p pose.Point) pose.Point { return pose.Point{X: p.X * fw, Y: p.Y * fh} }

	out := Scene{
		T:       s.T,
		Width:   w,
		Height:  h,
		Lines:   make([]Line, len(s.Lines)),
		Markers: make([]Marker, len(s.Markers)),
	}
	for i, l := range s.Lines {
		out.Lines[i] = Line{From: scale(l.From), To: scale(l.To), Color: l.Color}
	}
	for i, m := range s.Markers {
		m.Center = scale(m.Center)
		out.Markers[i] = m
	}
	if s.Boxes != nil {
		out.Boxes = make([]Box, len(s.Boxes))
		for i, b := range s.Boxes {
			out.Boxes[i] = Box{
				BoundingBox: pose.BoundingBox{
					Left:   b.Left * fw,
					Top:    b.Top * fh,
					Right:  b.Right * fw,
					Bottom: b.Bottom * fh,
				},
				Color: b.Color,
			}
		}
	}
	return out
}
