package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse/internal/engine"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// MockScheduler implements SchedulerInterface for testing
type MockScheduler struct {
	running bool
	paused  bool
	rate    int
	verbose bool
	ticks   uint64
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{running: true, rate: 60, ticks: 1234}
}

func (m *MockScheduler) Status() engine.Status {
	return engine.Status{
		Label:      "mock",
		Running:    m.running,
		Paused:     m.paused,
		TargetRate: m.rate,
		Ticks:      m.ticks,
	}
}

func (m *MockScheduler) IsRunning() bool { return m.running }
func (m *MockScheduler) IsPaused() bool  { return m.paused }
func (m *MockScheduler) Pause()          { m.paused = true }
func (m *MockScheduler) Resume()         { m.paused = false }

func (m *MockScheduler) SetTargetRate(n int) error {
	if n < engine.MinTargetRate || n > engine.MaxTargetRate {
		return fmt.Errorf("target rate %d out of range", n)
	}
	m.rate = n
	return nil
}

func (m *MockScheduler) SetVerbose(v bool) { m.verbose = v }

// MockPipeline implements PipelineInterface for testing
type MockPipeline struct {
	encodeErr error
}

func (m *MockPipeline) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"framesPresented": uint64(99),
		"ringDropped":     uint64(1),
		"ringAvailable":   2,
	}
}

func (m *MockPipeline) EncodeFrontPNG(w io.Writer) error {
	if m.encodeErr != nil {
		return m.encodeErr
	}
	return png.Encode(w, image.NewRGBA(image.Rect(0, 0, 4, 4)))
}

// MockJournal implements JournalInterface for testing
type MockJournal struct {
	emitted []string
}

func (m *MockJournal) Emit(kind string, tick uint64, payload interface{}) bool {
	m.emitted = append(m.emitted, kind)
	return true
}

func (m *MockJournal) GetStats() map[string]interface{} {
	return map[string]interface{}{"events": uint64(7)}
}

func newTestRouter(sched *MockScheduler, pipe *MockPipeline) http.Handler {
	return NewRouter(RouterConfig{
		Scheduler:      sched,
		Pipeline:       pipe,
		Journal:        &MockJournal{},
		DisableLogging: true,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
	})
}

// ============================================================================
// Router Purity Tests
// ============================================================================

// TestNewRouterHasNoSideEffects verifies that NewRouter is a pure function
// with no network listeners opened
func TestNewRouterHasNoSideEffects(t *testing.T) {
	router := newTestRouter(NewMockScheduler(), &MockPipeline{})
	if router == nil {
		t.Fatal("Router should not be nil")
	}
}

// ============================================================================
// API Endpoint Tests
// ============================================================================

// TestHealthEndpoint verifies the liveness probe
func TestHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(NewMockScheduler(), &MockPipeline{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["status"] != "ok" || result["running"] != true {
		t.Errorf("Unexpected health payload: %v", result)
	}
}

// TestStatusEndpoint verifies the combined status snapshot
func TestStatusEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(NewMockScheduler(), &MockPipeline{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	sched, ok := result["scheduler"].(map[string]interface{})
	if !ok {
		t.Fatal("Response should contain a scheduler object")
	}
	if sched["label"] != "mock" {
		t.Errorf("Expected label 'mock', got %v", sched["label"])
	}
	if sched["ticks"] != float64(1234) {
		t.Errorf("Expected 1234 ticks, got %v", sched["ticks"])
	}
	if _, ok := result["pipeline"].(map[string]interface{}); !ok {
		t.Error("Response should contain pipeline stats")
	}
	if _, ok := result["journal"].(map[string]interface{}); !ok {
		t.Error("Response should contain journal stats")
	}
}

// TestMetricsEndpoint verifies the metrics summary shape
func TestMetricsEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(NewMockScheduler(), &MockPipeline{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result["targetRate"] != float64(60) {
		t.Errorf("Expected targetRate 60, got %v", result["targetRate"])
	}
	update, ok := result["update"].(map[string]interface{})
	if !ok {
		t.Fatal("Response should contain an update phase summary")
	}
	if _, ok := update["avgMs"]; !ok {
		t.Error("Phase summary should expose avgMs")
	}
}

// TestPauseResumeEndpoints verifies loop control round trips
func TestPauseResumeEndpoints(t *testing.T) {
	sched := NewMockScheduler()
	ts := httptest.NewServer(newTestRouter(sched, &MockPipeline{}))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/pause", "application/json", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if !sched.paused {
		t.Error("Scheduler should be paused after POST /api/pause")
	}

	resp, err = http.Post(ts.URL+"/api/resume", "application/json", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if sched.paused {
		t.Error("Scheduler should not be paused after POST /api/resume")
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["paused"] != false {
		t.Errorf("Expected paused=false in response, got %v", result["paused"])
	}
}

// TestRateEndpoint verifies validation and application of rate changes
func TestRateEndpoint(t *testing.T) {
	sched := NewMockScheduler()
	jrnl := &MockJournal{}
	router := NewRouter(RouterConfig{
		Scheduler:      sched,
		Pipeline:       &MockPipeline{},
		Journal:        jrnl,
		DisableLogging: true,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid rate", `{"rate": 120}`, http.StatusOK},
		{"zero rate", `{"rate": 0}`, http.StatusBadRequest},
		{"excessive rate", `{"rate": 5000}`, http.StatusBadRequest},
		{"invalid json", `{rate}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bytes.NewReader([]byte(tt.body))
			resp, err := http.Post(ts.URL+"/api/rate", "application/json", body)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}

	if sched.rate != 120 {
		t.Errorf("Expected applied rate 120, got %d", sched.rate)
	}
	if len(jrnl.emitted) != 1 || jrnl.emitted[0] != "rate_change" {
		t.Errorf("Expected one rate_change journal event, got %v", jrnl.emitted)
	}
}

// TestVerboseEndpoint verifies the verbose toggle
func TestVerboseEndpoint(t *testing.T) {
	sched := NewMockScheduler()
	ts := httptest.NewServer(newTestRouter(sched, &MockPipeline{}))
	defer ts.Close()

	body := bytes.NewReader([]byte(`{"verbose": true}`))
	resp, err := http.Post(ts.URL+"/api/verbose", "application/json", body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if !sched.verbose {
		t.Error("Scheduler should be verbose after POST /api/verbose")
	}
}

// TestFramePNGEndpoint verifies the front-buffer preview
func TestFramePNGEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(NewMockScheduler(), &MockPipeline{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/frame.png")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("Preview should decode as PNG: %v", err)
	}
}

// TestFramePNGEndpointUnavailable verifies the error path when the
// pipeline cannot produce a frame
func TestFramePNGEndpointUnavailable(t *testing.T) {
	pipe := &MockPipeline{encodeErr: fmt.Errorf("pipeline is closed")}
	ts := httptest.NewServer(newTestRouter(NewMockScheduler(), pipe))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/frame.png")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

// ============================================================================
// Middleware Tests
// ============================================================================

// TestAdminAuthGuardsControlEndpoints verifies the token login flow and
// the session guard on mutating routes
func TestAdminAuthGuardsControlEndpoints(t *testing.T) {
	sched := NewMockScheduler()
	router := NewRouter(RouterConfig{
		Scheduler:       sched,
		Pipeline:        &MockPipeline{},
		SessionManager:  NewSessionManager("secret-token"),
		EnableAdminAuth: true,
		DisableLogging:  true,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
	})

	ts := httptest.NewServer(router)
	defer ts.Close()

	// Unauthenticated control request is rejected
	resp, err := http.Post(ts.URL+"/api/pause", "application/json", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}
	if sched.paused {
		t.Error("Pause should not apply without a session")
	}

	// Wrong token is rejected
	body := bytes.NewReader([]byte(`{"token": "wrong"}`))
	resp, err = http.Post(ts.URL+"/api/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong token, got %d", resp.StatusCode)
	}

	// Correct token yields a session cookie
	body = bytes.NewReader([]byte(`{"token": "secret-token"}`))
	resp, err = http.Post(ts.URL+"/api/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for login, got %d", resp.StatusCode)
	}

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("Login should set a session cookie")
	}

	// The cookie unlocks control endpoints
	req, _ := http.NewRequest("POST", ts.URL+"/api/pause", nil)
	req.AddCookie(session)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with session, got %d", resp.StatusCode)
	}
	if !sched.paused {
		t.Error("Pause should apply with a valid session")
	}
}

// TestAPICORSHeaders verifies CORS headers are set correctly
func TestAPICORSHeaders(t *testing.T) {
	router := NewRouter(RouterConfig{
		Scheduler:      NewMockScheduler(),
		Pipeline:       &MockPipeline{},
		DisableLogging: true,
		CORSOrigins:    []string{"http://panel.example.com"},
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
	})

	ts := httptest.NewServer(router)
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/api/status", nil)
	req.Header.Set("Origin", "http://panel.example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	allowOrigin := resp.Header.Get("Access-Control-Allow-Origin")
	if allowOrigin != "http://panel.example.com" {
		t.Errorf("Expected Access-Control-Allow-Origin 'http://panel.example.com', got '%s'", allowOrigin)
	}
}

// TestAPIRateLimiting verifies rate limiting works
func TestAPIRateLimiting(t *testing.T) {
	router := NewRouter(RouterConfig{
		Scheduler: NewMockScheduler(),
		Pipeline:  &MockPipeline{},
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1, // Only 1 request per second
			Burst:             2, // Allow burst of 2
			CleanupInterval:   time.Hour,
		},
		DisableLogging: true,
	})

	ts := httptest.NewServer(router)
	defer ts.Close()

	// Burst of 2 is allowed
	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	// Third immediate request is rejected
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Rejection should carry Retry-After")
	}
}
