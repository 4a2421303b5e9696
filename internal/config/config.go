package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	TracecutAPIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job and session state
	JobTTL     time.Duration
	SessionTTL time.Duration

	// Trace defaults
	MaskMode        string
	SimplifyFactor  float64
	AreaMinNoise    float64
	LengthMinNoise  float64
	DuplicateRatio  float64
	PixelScale      float64
	ExtrusionHeight float64
	Policy          string

	// SVG output draws filled regions instead of cut outlines.
	SVGFill bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		TracecutAPIKey: os.Getenv("TRACECUT_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 20971520), // 20MB

		JobTTL:     envDuration("JOB_TTL", 1*time.Hour),
		SessionTTL: envDuration("SESSION_TTL", 30*time.Minute),

		MaskMode:        envOr("MASK_MODE", "threshold"),
		SimplifyFactor:  envFloat("SIMPLIFY_FACTOR", 0.001),
		AreaMinNoise:    envFloat("AREA_MIN_NOISE", 10),
		LengthMinNoise:  envFloat("LENGTH_MIN_NOISE", 15),
		DuplicateRatio:  envFloat("DUPLICATE_RATIO", 0.85),
		PixelScale:      envFloat("PIXEL_SCALE", 0.15),
		ExtrusionHeight: envFloat("EXTRUSION_HEIGHT", 4.0),
		Policy:          envOr("RECONSTRUCT_POLICY", "nested"),

		SVGFill: envBool("SVG_FILL", false),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20971520
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}

	return cfg
}

// Validate checks settings needed by the HTTP service.
func (c Config) Validate() error {
	if c.TracecutAPIKey == "" {
		return fmt.Errorf("TRACECUT_API_KEY is required")
	}
	return c.ValidateTrace()
}

// ValidateTrace checks the trace defaults only. The CLI needs no API key.
func (c Config) ValidateTrace() error {
	switch c.MaskMode {
	case "threshold", "edges", "green":
	default:
		return fmt.Errorf("MASK_MODE must be threshold, edges or green, got %q", c.MaskMode)
	}
	switch c.Policy {
	case "nested", "flat":
	default:
		return fmt.Errorf("RECONSTRUCT_POLICY must be nested or flat, got %q", c.Policy)
	}
	if c.SimplifyFactor < 0 {
		return fmt.Errorf("SIMPLIFY_FACTOR must be >= 0")
	}
	if c.AreaMinNoise < 0 || c.LengthMinNoise < 0 {
		return fmt.Errorf("AREA_MIN_NOISE and LENGTH_MIN_NOISE must be >= 0")
	}
	if c.DuplicateRatio <= 0 || c.DuplicateRatio > 1 {
		return fmt.Errorf("DUPLICATE_RATIO must be in (0, 1]")
	}
	if c.PixelScale <= 0 {
		return fmt.Errorf("PIXEL_SCALE must be > 0")
	}
	if c.ExtrusionHeight <= 0 {
		return fmt.Errorf("EXTRUSION_HEIGHT must be > 0")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
