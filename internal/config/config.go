// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for loop, canvas and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// LOOP CONFIGURATION
// =============================================================================

// LoopConfig holds the scheduler timing settings.
type LoopConfig struct {
	TargetRate    int  // Fixed update rate in ticks per second (1..1000)
	StopOnFault   bool // Whether the default policy stops the loop on a fault
	Verbose       bool // Per-second TPS/FPS log lines
	MetricsWindow int  // Samples kept per phase recorder
}

// DefaultLoop returns the default loop configuration.
func DefaultLoop() LoopConfig {
	return LoopConfig{
		TargetRate:    60, // Classic fixed-timestep rate
		StopOnFault:   false,
		Verbose:       false,
		MetricsWindow: 60, // One second of samples at the default rate
	}
}

// LoopFromEnv returns loop configuration with environment variable overrides.
// Environment variables take precedence over defaults.
func LoopFromEnv() LoopConfig {
	cfg := DefaultLoop()

	if r := getEnvInt("TICK_RATE", 0); r > 0 {
		cfg.TargetRate = r
	}
	if getEnvBool("STOP_ON_FAULT", false) {
		cfg.StopOnFault = true
	}
	if getEnvBool("LOOP_VERBOSE", false) {
		cfg.Verbose = true
	}
	if w := getEnvInt("METRICS_WINDOW", 0); w > 0 {
		cfg.MetricsWindow = w
	}

	return cfg
}

// =============================================================================
// CANVAS & PRESENTATION CONFIGURATION
// =============================================================================

// PresentConfig holds the off-screen canvas and presentation settings.
// These values are shared between the render phase and the frame sinks.
type PresentConfig struct {
	Width     int // Canvas width in pixels
	Height    int // Canvas height in pixels
	Pages     int // Surface page count (2=double, 3=triple buffering)
	RingSlots int // Presented-frame ring capacity
	FPS       int // Presenter drain cadence in frames per second
}

// DefaultPresent returns the default presentation configuration.
// This is the SINGLE SOURCE OF TRUTH for resolution.
func DefaultPresent() PresentConfig {
	return PresentConfig{
		Width:     1280, // 720p - cheap enough to redraw at full rate
		Height:    720,
		Pages:     2,
		RingSlots: 16,
		FPS:       30, // Sinks rarely need more; the ring absorbs bursts
	}
}

// PresentFromEnv returns presentation configuration with environment
// variable overrides.
func PresentFromEnv() PresentConfig {
	cfg := DefaultPresent()

	if w := getEnvInt("CANVAS_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("CANVAS_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if p := getEnvInt("SURFACE_PAGES", 0); p > 0 {
		cfg.Pages = p
	}
	if s := getEnvInt("RING_SLOTS", 0); s > 0 {
		cfg.RingSlots = s
	}
	if fps := getEnvInt("PRESENT_FPS", 0); fps > 0 {
		cfg.FPS = fps
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int
	AdminToken string // Empty disables admin authentication
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if tok := os.Getenv("ADMIN_TOKEN"); tok != "" {
		cfg.AdminToken = tok
	}

	return cfg
}

// =============================================================================
// JOURNAL CONFIGURATION
// =============================================================================

// JournalConfig holds session recording settings.
type JournalConfig struct {
	Enabled         bool
	Root            string // Bundle parent directory
	Label           string // Run label, sanitized into the bundle name
	FrameIntervalMs int    // Minimum spacing between recorded frames
}

// DefaultJournal returns the default journal configuration.
// Recording is off by default; it costs disk and a little CPU.
func DefaultJournal() JournalConfig {
	return JournalConfig{
		Enabled:         false,
		Root:            "journal",
		Label:           "session",
		FrameIntervalMs: 200, // 5 Hz is plenty for scrubbing a session
	}
}

// JournalFromEnv returns journal configuration with environment variable overrides.
func JournalFromEnv() JournalConfig {
	cfg := DefaultJournal()

	if getEnvBool("JOURNAL_ENABLED", false) {
		cfg.Enabled = true
	}
	if root := os.Getenv("JOURNAL_ROOT"); root != "" {
		cfg.Root = root
	}
	if label := os.Getenv("JOURNAL_LABEL"); label != "" {
		cfg.Label = label
	}
	if ms := getEnvInt("JOURNAL_FRAME_MS", 0); ms > 0 {
		cfg.FrameIntervalMs = ms
	}

	return cfg
}

// =============================================================================
// DEMO SCENE CONFIGURATION
// =============================================================================

// DemoConfig holds the bundled demo scene settings.
type DemoConfig struct {
	Bodies int     // Number of bouncing bodies
	Seed   int64   // RNG seed; fixed for reproducible runs
	Speed  float64 // Mean body speed in pixels per second
}

// DefaultDemo returns the default demo configuration.
func DefaultDemo() DemoConfig {
	return DemoConfig{
		Bodies: 48,
		Seed:   7,
		Speed:  140,
	}
}

// DemoFromEnv returns demo configuration with environment variable overrides.
func DemoFromEnv() DemoConfig {
	cfg := DefaultDemo()

	if b := getEnvInt("DEMO_BODIES", 0); b > 0 {
		cfg.Bodies = b
	}
	if s := getEnvInt("DEMO_SEED", 0); s != 0 {
		cfg.Seed = int64(s)
	}
	if v := getEnvFloat("DEMO_SPEED", 0); v > 0 {
		cfg.Speed = v
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Loop    LoopConfig
	Present PresentConfig
	Server  ServerConfig
	Journal JournalConfig
	Demo    DemoConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Loop:    LoopFromEnv(),
		Present: PresentFromEnv(),
		Server:  ServerFromEnv(),
		Journal: JournalFromEnv(),
		Demo:    DemoFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}
