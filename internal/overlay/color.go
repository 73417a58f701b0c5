package overlay

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor parses the CSS color forms used in styles: #rgb, #rrggbb,
// #rrggbbaa, rgb(r,g,b), rgba(r,g,b,a) with a in [0,1], and SVG color names.
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(v, "#"):
		return parseHexColor(v[1:], s)
	case strings.HasPrefix(v, "rgba(") || strings.HasPrefix(v, "rgb("):
		return parseFuncColor(v, s)
	case v == "transparent":
		return color.NRGBA{}, nil
	}
	if c, ok := colornames.Map[v]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
}

func parseHexColor(hex, orig string) (color.NRGBA, error) {
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6, 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", orig)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", orig, err)
	}
	if len(hex) == 6 {
		return color.NRGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

func parseFuncColor(v, orig string) (color.NRGBA, error) {
	open := strings.IndexByte(v, '(')
	if !strings.HasSuffix(v, ")") {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", orig)
	}
	parts := strings.Split(v[open+1:len(v)-1], ",")
	hasAlpha := strings.HasPrefix(v, "rgba(")
	if (hasAlpha && len(parts) != 4) || (!hasAlpha && len(parts) != 3) {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", orig)
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil || f < 0 || f > 255 {
			return color.NRGBA{}, fmt.Errorf("invalid color channel in %q", orig)
		}
		ch[i] = uint8(math.Round(f))
	}
	a := uint8(0xff)
	if hasAlpha {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || f < 0 || f > 1 {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in %q", orig)
		}
		a = uint8(math.Round(f * 255))
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: a}, nil
}

// mustColor is for colors already validated by ParseColor or the config.
func mustColor(s string, fallback color.Color) color.Color {
	c, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return c
}
