// Package overlay turns resolved poses into drawable geometry and drives the
// per-tick resolve/draw loop.
//
// Scenes are kept in normalized image coordinates until a presenter asks for
// pixels, so the same Scene serves a browser canvas, a PNG renderer and a
// JSON client at any resolution.
package overlay

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/pose.overlay/internal/config"
)

// jointColor is the stroke used for every drawn joint marker.
const jointColor = "#1abc9c"

// Style describes how a Scene is drawn.
type Style struct {
	// JointColors maps landmark names to marker stroke colors. Landmarks
	// without an entry get no marker; face keypoints are absent by default.
	JointColors map[string]string `json:"joint_colors"`

	LimbColor      string  `json:"limb_color"`
	MarkerFill     string  `json:"marker_fill"`
	MarkerRadiusPx float64 `json:"marker_radius_px"`
	BoxColor       string  `json:"box_color"`
}

// DefaultStyle returns the stock overlay look: white limbs and teal joints
// with a half-transparent fill.
func DefaultStyle() Style {
	colors := make(map[string]string, 12)
	for _, side := range []string{"left", "right"} {
		for _, joint := range []string{"shoulder", "elbow", "wrist", "hip", "knee", "ankle"} {
			colors[side+"_"+joint] = jointColor
		}
	}
	return Style{
		JointColors:    colors,
		LimbColor:      "#ffffff",
		MarkerFill:     "rgba(255,255,255,0.5)",
		MarkerRadiusPx: 5,
		BoxColor:       "#ff0000",
	}
}

// StyleFromConfig applies the drawing options of cfg over the defaults.
func StyleFromConfig(cfg *config.OverlayConfig) Style {
	s := DefaultStyle()
	if cfg == nil {
		return s
	}
	s.LimbColor = cfg.GetLimbColor()
	s.MarkerFill = cfg.GetMarkerFill()
	s.MarkerRadiusPx = cfg.GetMarkerRadiusPx()
	return s
}

// ColorFor returns the marker color for a landmark name.
func (s Style) ColorFor(name string) (string, bool) {
	c, ok := s.JointColors[name]
	if !ok || c == "" {
		return "", false
	}
	return c, true
}

// MergeStyleJSON overlays a JSON document onto base. Omitted fields keep the
// base values; joint_colors entries are merged, and an empty string removes
// a joint.
func MergeStyleJSON(base Style, r io.Reader) (Style, error) {
	var patch struct {
		JointColors    map[string]string `json:"joint_colors"`
		LimbColor      *string           `json:"limb_color"`
		MarkerFill     *string           `json:"marker_fill"`
		MarkerRadiusPx *float64          `json:"marker_radius_px"`
		BoxColor       *string           `json:"box_color"`
	}
	if err := json.NewDecoder(r).Decode(&patch); err != nil {
		return base, fmt.Errorf("failed to parse style JSON: %w", err)
	}

	out := base
	out.JointColors = make(map[string]string, len(base.JointColors)+len(patch.JointColors))
	for k, v := range base.JointColors {
		out.JointColors[k] = v
	}
	for k, v := range patch.JointColors {
		if v == "" {
			delete(out.JointColors, k)
			continue
		}
		if _, err := ParseColor(v); err != nil {
			return base, fmt.Errorf("joint %s: %w", k, err)
		}
		out.JointColors[k] = v
	}

	for _, f := range []struct {
		src *string
		dst *string
	}{
		{patch.LimbColor, &out.LimbColor},
		{patch.MarkerFill, &out.MarkerFill},
		{patch.BoxColor, &out.BoxColor},
	} {
		if f.src == nil {
			continue
		}
		if _, err := ParseColor(*f.src); err != nil {
			return base, err
		}
		*f.dst = *f.src
	}
	if patch.MarkerRadiusPx != nil {
		if *patch.MarkerRadiusPx <= 0 {
			return base, fmt.Errorf("marker_radius_px must be positive, got %f", *patch.MarkerRadiusPx)
		}
		out.MarkerRadiusPx = *patch.MarkerRadiusPx
	}
	return out, nil
}
