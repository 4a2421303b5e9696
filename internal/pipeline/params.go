package pipeline

import (
	"fmt"

	"github.com/dgallion1/tracecut/internal/config"
	"github.com/dgallion1/tracecut/internal/noise"
	"github.com/dgallion1/tracecut/internal/region"
)

// Params are the tunable options of one conversion run.
type Params struct {
	MaskMode        string        `json:"mask_mode"`
	SimplifyFactor  float64       `json:"simplify_factor"`
	AreaMinNoise    float64       `json:"area_min_noise"`
	LengthMinNoise  float64       `json:"length_min_noise"`
	DuplicateRatio  float64       `json:"duplicate_ratio"`
	Scale           float64       `json:"scale"`
	ExtrusionHeight float64       `json:"extrusion_height"`
	Policy          region.Policy `json:"policy"`
	SVGFill         bool          `json:"svg_fill"`
}

// DefaultParams returns the built-in defaults.
func DefaultParams() Params {
	np := noise.DefaultParams()
	return Params{
		MaskMode:        "threshold",
		SimplifyFactor:  0.001,
		AreaMinNoise:    np.AreaMin,
		LengthMinNoise:  np.LengthMin,
		DuplicateRatio:  np.RatioMax,
		Scale:           0.15,
		ExtrusionHeight: 4.0,
		Policy:          region.PolicyNested,
	}
}

// ParamsFromConfig takes the trace defaults from cfg.
func ParamsFromConfig(cfg config.Config) Params {
	return Params{
		MaskMode:        cfg.MaskMode,
		SimplifyFactor:  cfg.SimplifyFactor,
		AreaMinNoise:    cfg.AreaMinNoise,
		LengthMinNoise:  cfg.LengthMinNoise,
		DuplicateRatio:  cfg.DuplicateRatio,
		Scale:           cfg.PixelScale,
		ExtrusionHeight: cfg.ExtrusionHeight,
		Policy:          region.Policy(cfg.Policy),
		SVGFill:         cfg.SVGFill,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch p.MaskMode {
	case "threshold", "edges", "green":
	default:
		return fmt.Errorf("unknown mask mode %q", p.MaskMode)
	}
	if err := p.Noise().Validate(); err != nil {
		return err
	}
	if _, err := region.ParsePolicy(string(p.Policy)); err != nil {
		return err
	}
	if p.SimplifyFactor < 0 {
		return fmt.Errorf("simplify factor must be >= 0, got %v", p.SimplifyFactor)
	}
	if !(p.Scale > 0) {
		return fmt.Errorf("scale must be > 0, got %v", p.Scale)
	}
	if !(p.ExtrusionHeight > 0) {
		return fmt.Errorf("extrusion height must be > 0, got %v", p.ExtrusionHeight)
	}
	return nil
}

// Noise returns the noise filter thresholds.
func (p Params) Noise() noise.Params {
	return noise.Params{AreaMin: p.AreaMinNoise, LengthMin: p.LengthMinNoise, RatioMax: p.DuplicateRatio}
}

// Region returns the reconstruction options.
func (p Params) Region() region.Options {
	return region.Options{SimplifyFactor: p.SimplifyFactor, Policy: p.Policy}
}

// Key identifies the parameters in result reuse lookups.
func (p Params) Key() string {
	return fmt.Sprintf("%s|%g|%g|%g|%g|%g|%g|%s|%t",
		p.MaskMode, p.SimplifyFactor, p.AreaMinNoise, p.LengthMinNoise, p.DuplicateRatio,
		p.Scale, p.ExtrusionHeight, p.Policy, p.SVGFill)
}
