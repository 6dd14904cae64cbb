package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// Variant selects what the application draws.
type Variant string

const (
	// A single triangle generated by the vertex shader, no vertex buffers.
	VariantTriangle Variant = "triangle"
	// An indexed quad sampling an image.
	VariantTextured Variant = "textured"
)

func (v Variant) Valid() bool {
	return v == VariantTriangle || v == VariantTextured
}

type ApplicationConfig struct {
	// The application name used as window title and log prefix.
	Name string `toml:"name"`
	// Window starting width.
	StartWidth uint32 `toml:"width"`
	// Window starting height.
	StartHeight uint32 `toml:"height"`
	Variant     Variant `toml:"variant"`
	// Image under Content/Images, textured variant only.
	Image string `toml:"image"`
	FlipY bool   `toml:"flip_y"`
	// RGBA in [0, 1]. When empty the variant's default is used. Three
	// components mean an opaque color.
	ClearColor []float32 `toml:"clear_color"`
	LogLevel   string    `toml:"log_level"`
	// Content root, relative paths are resolved against the executable
	// directory first.
	ContentDir  string `toml:"content_dir"`
	WatchAssets bool   `toml:"watch_assets"`
	// Enables the backend validation layers.
	Validation  bool   `toml:"validation"`
	PresentMode string `toml:"present_mode"`
}

// DefaultApplicationConfig returns the configuration used for every key a
// config file leaves out.
func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:        "texel",
		StartWidth:  800,
		StartHeight: 600,
		Variant:     VariantTextured,
		Image:       "checker.png",
		LogLevel:    "info",
		ContentDir:  "Content",
		PresentMode: gpu.PresentModeVSync.String(),
	}
}

// LoadConfig reads a TOML config file on top of the defaults.
func LoadConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML on top of the defaults and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("invalid config at line %d column %d: %w", row, col, err)
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("invalid config: %s", serr.String())
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. It does not touch the filesystem.
func (c *ApplicationConfig) Validate() error {
	if !c.Variant.Valid() {
		return fmt.Errorf("invalid variant %q, expected %q or %q", c.Variant, VariantTriangle, VariantTextured)
	}
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("invalid window size %dx%d", c.StartWidth, c.StartHeight)
	}
	if c.Variant == VariantTextured && c.Image == "" {
		return fmt.Errorf("variant %q needs an image", c.Variant)
	}
	if c.ContentDir == "" {
		return fmt.Errorf("content_dir must not be empty")
	}
	if n := len(c.ClearColor); n != 0 && n != 3 && n != 4 {
		return fmt.Errorf("clear_color needs 3 or 4 components, got %d", n)
	}
	for _, v := range c.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("clear_color component %g outside [0, 1]", v)
		}
	}
	if _, ok := gpu.ParsePresentMode(c.PresentMode); !ok {
		return fmt.Errorf("unknown present_mode %q", c.PresentMode)
	}
	return nil
}

// Clear returns the render pass clear color. The triangle clears to black,
// the textured quad to a dark grey.
func (c *ApplicationConfig) Clear() gpu.Color {
	switch len(c.ClearColor) {
	case 3:
		return gpu.Color{R: c.ClearColor[0], G: c.ClearColor[1], B: c.ClearColor[2], A: 1}
	case 4:
		return gpu.Color{R: c.ClearColor[0], G: c.ClearColor[1], B: c.ClearColor[2], A: c.ClearColor[3]}
	}
	if c.Variant == VariantTriangle {
		return gpu.Color{R: 0, G: 0, B: 0, A: 1}
	}
	return gpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}
}

func (c *ApplicationConfig) Present() gpu.PresentMode {
	m, _ := gpu.ParsePresentMode(c.PresentMode)
	return m
}

func (c *ApplicationConfig) Level() core.LogLevel {
	return core.ParseLogLevel(c.LogLevel)
}
