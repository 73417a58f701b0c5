package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// DefaultConfigPath is the path to the canonical overlay defaults file.
const DefaultConfigPath = "config/overlay.defaults.json"

// EnvConfigPath names the environment variable that selects a config file.
const EnvConfigPath = "POSE_OVERLAY_CONFIG"

// OverlayConfig is the root configuration for the overlay service. Every
// field is optional; the Get* accessors supply defaults for omitted values,
// so partial configs are safe.
type OverlayConfig struct {
	// Resolver
	ClampAlpha     *bool `json:"clamp_alpha,omitempty"`
	FirstTrackOnly *bool `json:"first_track_only,omitempty"`

	// Host loop
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "33ms"

	// Serving
	ListenAddr *string `json:"listen_addr,omitempty"`
	GRPCAddr   *string `json:"grpc_addr,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	DataDir    *string `json:"data_dir,omitempty"`

	// Drawing
	MarkerRadiusPx    *float64 `json:"marker_radius_px,omitempty"`
	DrawBoundingBoxes *bool    `json:"draw_bounding_boxes,omitempty"`
	LimbColor         *string  `json:"limb_color,omitempty"`
	MarkerFill        *string  `json:"marker_fill,omitempty"`

	// Charts
	ChartStep *string `json:"chart_step,omitempty"` // duration string like "100ms"
}

func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// EmptyOverlayConfig returns an OverlayConfig with all fields set to nil.
func EmptyOverlayConfig() *OverlayConfig {
	return &OverlayConfig{}
}

// DefaultOverlayConfig returns a config with every field populated from the
// accessor defaults.
func DefaultOverlayConfig() *OverlayConfig {
	e := EmptyOverlayConfig()
	return &OverlayConfig{
		ClampAlpha:        ptrBool(e.GetClampAlpha()),
		FirstTrackOnly:    ptrBool(e.GetFirstTrackOnly()),
		TickInterval:      ptrString(e.GetTickInterval().String()),
		ListenAddr:        ptrString(e.GetListenAddr()),
		GRPCAddr:          ptrString(e.GetGRPCAddr()),
		DBPath:            ptrString(e.GetDBPath()),
		DataDir:           ptrString(e.GetDataDir()),
		MarkerRadiusPx:    ptrFloat64(e.GetMarkerRadiusPx()),
		DrawBoundingBoxes: ptrBool(e.GetDrawBoundingBoxes()),
		LimbColor:         ptrString(e.GetLimbColor()),
		MarkerFill:        ptrString(e.GetMarkerFill()),
		ChartStep:         ptrString(e.GetChartStep().String()),
	}
}

// LoadOverlayConfig loads an OverlayConfig from a JSON file.
// The file must have a .json extension and be under 1 MiB.
func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyOverlayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by POSE_OVERLAY_CONFIG, falling back to
// an empty config (all defaults) when the variable is unset.
func LoadFromEnv() (*OverlayConfig, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return EmptyOverlayConfig(), nil
	}
	return LoadOverlayConfig(path)
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *OverlayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pose/annotations/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadOverlayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

var cssColor = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|rgba?\(\s*[0-9.,\s%]+\)|[a-zA-Z]+)$`)

// Validate checks that the configuration values are valid.
func (c *OverlayConfig) Validate() error {
	for name, v := range map[string]*string{
		"tick_interval": c.TickInterval,
		"chart_step":    c.ChartStep,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.MarkerRadiusPx != nil && (*c.MarkerRadiusPx <= 0 || *c.MarkerRadiusPx > 100) {
		return fmt.Errorf("marker_radius_px must be in (0, 100], got %f", *c.MarkerRadiusPx)
	}

	for name, v := range map[string]*string{
		"limb_color":  c.LimbColor,
		"marker_fill": c.MarkerFill,
	} {
		if v != nil && !cssColor.MatchString(*v) {
			return fmt.Errorf("invalid %s %q", name, *v)
		}
	}
	return nil
}

// GetClampAlpha returns the clamp_alpha value or the default.
func (c *OverlayConfig) GetClampAlpha() bool {
	if c.ClampAlpha == nil {
		return true
	}
	return *c.ClampAlpha
}

// GetFirstTrackOnly returns the first_track_only value or the default.
func (c *OverlayConfig) GetFirstTrackOnly() bool {
	if c.FirstTrackOnly == nil {
		return false // default: index every track
	}
	return *c.FirstTrackOnly
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *OverlayConfig) GetTickInterval() time.Duration {
	return parseDurationOr(c.TickInterval, 33*time.Millisecond)
}

// GetChartStep parses and returns the ChartStep as a time.Duration.
func (c *OverlayConfig) GetChartStep() time.Duration {
	return parseDurationOr(c.ChartStep, 100*time.Millisecond)
}

// GetListenAddr returns the listen_addr value or the default.
func (c *OverlayConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetGRPCAddr returns the grpc_addr value or the default.
func (c *OverlayConfig) GetGRPCAddr() string {
	if c.GRPCAddr == nil || *c.GRPCAddr == "" {
		return ":50051"
	}
	return *c.GRPCAddr
}

// GetDBPath returns the db_path value or the default.
func (c *OverlayConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "pose_overlay.db"
	}
	return *c.DBPath
}

// GetDataDir returns the data_dir value. Empty means loads are unrestricted.
func (c *OverlayConfig) GetDataDir() string {
	if c.DataDir == nil {
		return ""
	}
	return *c.DataDir
}

// GetMarkerRadiusPx returns the marker_radius_px value or the default.
func (c *OverlayConfig) GetMarkerRadiusPx() float64 {
	if c.MarkerRadiusPx == nil {
		return 5
	}
	return *c.MarkerRadiusPx
}

// GetDrawBoundingBoxes returns the draw_bounding_boxes value or the default.
func (c *OverlayConfig) GetDrawBoundingBoxes() bool {
	if c.DrawBoundingBoxes == nil {
		return false
	}
	return *c.DrawBoundingBoxes
}

// GetLimbColor returns the limb_color value or the default.
func (c *OverlayConfig) GetLimbColor() string {
	if c.LimbColor == nil || *c.LimbColor == "" {
		return "#ffffff"
	}
	return *c.LimbColor
}

// GetMarkerFill returns the marker_fill value or the default.
func (c *OverlayConfig) GetMarkerFill() string {
	if c.MarkerFill == nil || *c.MarkerFill == "" {
		return "rgba(255,255,255,0.5)"
	}
	return *c.MarkerFill
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}
