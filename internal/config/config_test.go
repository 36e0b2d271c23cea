package config

import "testing"

// TestDefaults verifies the baked-in configuration values
func TestDefaults(t *testing.T) {
	loop := DefaultLoop()
	if loop.TargetRate != 60 {
		t.Errorf("Expected default rate 60, got %d", loop.TargetRate)
	}
	if loop.StopOnFault {
		t.Error("Default policy should continue on faults")
	}

	present := DefaultPresent()
	if present.Width != 1280 || present.Height != 720 {
		t.Errorf("Expected 1280x720 canvas, got %dx%d", present.Width, present.Height)
	}
	if present.Pages != 2 {
		t.Errorf("Expected double buffering by default, got %d pages", present.Pages)
	}

	if DefaultJournal().Enabled {
		t.Error("Journal should be disabled by default")
	}
}

// TestLoopFromEnv verifies environment overrides for the loop section
func TestLoopFromEnv(t *testing.T) {
	t.Setenv("TICK_RATE", "120")
	t.Setenv("STOP_ON_FAULT", "true")
	t.Setenv("LOOP_VERBOSE", "1")
	t.Setenv("METRICS_WINDOW", "240")

	cfg := LoopFromEnv()
	if cfg.TargetRate != 120 {
		t.Errorf("Expected rate 120, got %d", cfg.TargetRate)
	}
	if !cfg.StopOnFault {
		t.Error("Expected StopOnFault override")
	}
	if !cfg.Verbose {
		t.Error("Expected Verbose override")
	}
	if cfg.MetricsWindow != 240 {
		t.Errorf("Expected window 240, got %d", cfg.MetricsWindow)
	}
}

// TestInvalidEnvFallsBack verifies malformed values keep the defaults
func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("TICK_RATE", "fast")
	t.Setenv("CANVAS_WIDTH", "-5")
	t.Setenv("DEMO_SPEED", "not-a-number")

	if got := LoopFromEnv().TargetRate; got != 60 {
		t.Errorf("Expected default rate 60, got %d", got)
	}
	if got := PresentFromEnv().Width; got != 1280 {
		t.Errorf("Expected default width 1280, got %d", got)
	}
	if got := DemoFromEnv().Speed; got != 140 {
		t.Errorf("Expected default speed 140, got %v", got)
	}
}

// TestLoad verifies the aggregate picks up overrides from every section
func TestLoad(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ADMIN_TOKEN", "hunter2")
	t.Setenv("JOURNAL_ENABLED", "true")
	t.Setenv("JOURNAL_LABEL", "bench")
	t.Setenv("DEMO_BODIES", "12")

	cfg := Load()
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "hunter2" {
		t.Error("Expected admin token override")
	}
	if !cfg.Journal.Enabled || cfg.Journal.Label != "bench" {
		t.Errorf("Expected enabled journal labelled bench, got %+v", cfg.Journal)
	}
	if cfg.Demo.Bodies != 12 {
		t.Errorf("Expected 12 bodies, got %d", cfg.Demo.Bodies)
	}
}

// TestGetEnvBool verifies the accepted truthy and falsy spellings
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"", true, true},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		t.Setenv("BOOL_UNDER_TEST", tt.value)
		if got := getEnvBool("BOOL_UNDER_TEST", tt.fallback); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
		}
	}
}
