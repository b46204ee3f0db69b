// Package voice chooses the synthesis voice settings for each row.
package voice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/book-expert/voice-outreach/internal/core"
)

// Strategy names accepted in configuration.
const (
	StrategyFixed  = "fixed"
	StrategyRotate = "rotate"
	StrategyRandom = "random"
)

// Canonical defaults.
const (
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.75
	DefaultStyle           = 0.3
	DefaultStyleMin        = 0.25
	DefaultStyleMax        = 0.45
)

// DefaultRotateStyles is the style cycle used by the rotate strategy.
var DefaultRotateStyles = []float64{0.2, 0.35, 0.5}

var (
	// ErrUnknownStrategy is returned for a strategy name that is not supported.
	ErrUnknownStrategy = errors.New("unknown voice strategy")
	// ErrOutOfRange is returned when a voice parameter is outside [0, 1].
	ErrOutOfRange = errors.New("voice parameter out of range [0, 1]")
	// ErrEmptyRotation is returned when the rotate strategy has no styles.
	ErrEmptyRotation = errors.New("rotate strategy requires at least one style")
	// ErrInvertedRange is returned when the random style minimum exceeds the maximum.
	ErrInvertedRange = errors.New("style_min must not exceed style_max")
)

// Config is the [voice] configuration section.
type Config struct {
	Strategy        string    `toml:"strategy"`
	Stability       float64   `toml:"stability"`
	SimilarityBoost float64   `toml:"similarity_boost"`
	Style           float64   `toml:"style"`
	UseSpeakerBoost bool      `toml:"use_speaker_boost"`
	RotateStyles    []float64 `toml:"rotate_styles"`
	StyleMin        float64   `toml:"style_min"`
	StyleMax        float64   `toml:"style_max"`
	Seed            uint64    `toml:"seed"`
}

// DefaultConfig returns the canonical fixed-voice configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyFixed,
		Stability:       DefaultStability,
		SimilarityBoost: DefaultSimilarityBoost,
		Style:           DefaultStyle,
		UseSpeakerBoost: true,
		RotateStyles:    append([]float64(nil), DefaultRotateStyles...),
		StyleMin:        DefaultStyleMin,
		StyleMax:        DefaultStyleMax,
	}
}

// Base returns the settings shared by every strategy.
func (c Config) Base() core.VoiceSettings {
	return core.VoiceSettings{
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		UseSpeakerBoost: c.UseSpeakerBoost,
	}
}

// Validate checks the configuration for the selected strategy.
func (c Config) Validate() error {
	var errs []error

	for name, value := range map[string]float64{
		"stability":        c.Stability,
		"similarity_boost": c.SimilarityBoost,
		"style":            c.Style,
	} {
		if !inUnitRange(value) {
			errs = append(errs, fmt.Errorf("%w: %s=%v", ErrOutOfRange, name, value))
		}
	}

	switch c.Strategy {
	case StrategyFixed:
	case StrategyRotate:
		if len(c.RotateStyles) == 0 {
			errs = append(errs, ErrEmptyRotation)
		}

		for _, style := range c.RotateStyles {
			if !inUnitRange(style) {
				errs = append(errs, fmt.Errorf("%w: rotate_styles=%v", ErrOutOfRange, style))
			}
		}
	case StrategyRandom:
		if !inUnitRange(c.StyleMin) || !inUnitRange(c.StyleMax) {
			errs = append(errs, fmt.Errorf("%w: style_min=%v style_max=%v", ErrOutOfRange, c.StyleMin, c.StyleMax))
		}

		if c.StyleMin > c.StyleMax {
			errs = append(errs, ErrInvertedRange)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Strategy))
	}

	return errors.Join(errs...)
}

// Policy yields the voice settings for a zero-based row index.
type Policy interface {
	Settings(row int) core.VoiceSettings
}

// FromConfig validates cfg and builds the matching Policy.
func FromConfig(cfg Config) (Policy, error) {
	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid voice configuration: %w", validateErr)
	}

	switch cfg.Strategy {
	case StrategyRotate:
		return NewRotating(cfg.Base(), cfg.RotateStyles), nil
	case StrategyRandom:
		return NewRandom(cfg.Base(), cfg.StyleMin, cfg.StyleMax, cfg.Seed), nil
	default:
		return NewFixed(cfg.Base()), nil
	}
}

// Fixed returns the same settings for every row.
type Fixed struct {
	base core.VoiceSettings
}

// NewFixed creates a Fixed policy.
func NewFixed(base core.VoiceSettings) *Fixed {
	return &Fixed{base: base}
}

// Settings implements Policy.
func (f *Fixed) Settings(_ int) core.VoiceSettings {
	return f.base
}

// Rotating cycles the style through a list by row index.
type Rotating struct {
	base   core.VoiceSettings
	styles []float64
}

// NewRotating creates a Rotating policy. An empty style list behaves like Fixed.
func NewRotating(base core.VoiceSettings, styles []float64) *Rotating {
	return &Rotating{base: base, styles: append([]float64(nil), styles...)}
}

// Settings implements Policy.
func (r *Rotating) Settings(row int) core.VoiceSettings {
	settings := r.base
	if len(r.styles) == 0 {
		return settings
	}

	idx := row % len(r.styles)
	if idx < 0 {
		idx += len(r.styles)
	}

	settings.Style = r.styles[idx]

	return settings
}

// Random draws the style uniformly from [min, max] on each call. A zero seed
// picks a random one.
type Random struct {
	base     core.VoiceSettings
	min, max float64
	mu       sync.Mutex
	rng      *rand.Rand
}

// NewRandom creates a Random policy.
func NewRandom(base core.VoiceSettings, styleMin, styleMax float64, seed uint64) *Random {
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Random{
		base: base,
		min:  styleMin,
		max:  styleMax,
		rng:  rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Settings implements Policy.
func (r *Random) Settings(_ int) core.VoiceSettings {
	r.mu.Lock()
	draw := r.rng.Float64()
	r.mu.Unlock()

	settings := r.base
	settings.Style = r.min + draw*(r.max-r.min)

	return settings
}

func inUnitRange(value float64) bool {
	return value >= 0 && value <= 1
}
