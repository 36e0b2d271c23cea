package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"running": h.sched.IsRunning(),
	})
}

func (h *routerHandlers) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	// The scheduler snapshot is lock-free; polling clients never contend
	// with the loop goroutine.
	resp := map[string]interface{}{
		"scheduler": h.sched.Status(),
		"pipeline":  h.pipe.GetStats(),
	}
	if h.journal != nil {
		resp["journal"] = h.journal.GetStats()
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	status := h.sched.Status()
	writeJSON(w, map[string]interface{}{
		"targetRate": status.TargetRate,
		"ticks":      status.Ticks,
		"frames":     status.Frames,
		"faults":     status.Faults,
		"update":     status.Metrics.Update,
		"render":     status.Metrics.Render,
	})
}

func (h *routerHandlers) handleFramePNG(w http.ResponseWriter, r *http.Request) {
	// Encode into memory first so a failure can still produce a clean
	// error response.
	var buf bytes.Buffer
	if err := h.pipe.EncodeFrontPNG(&buf); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handlePause(w http.ResponseWriter, r *http.Request) {
	log.Println("⏸️ Pause requested via API")
	h.sched.Pause()
	writeJSON(w, map[string]interface{}{
		"success": true,
		"paused":  h.sched.IsPaused(),
	})
}

func (h *routerHandlers) handleResume(w http.ResponseWriter, r *http.Request) {
	log.Println("▶️ Resume requested via API")
	h.sched.Resume()
	writeJSON(w, map[string]interface{}{
		"success": true,
		"paused":  h.sched.IsPaused(),
	})
}

func (h *routerHandlers) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate int `json:"rate"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	previous := h.sched.Status().TargetRate
	if err := h.sched.SetTargetRate(req.Rate); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	UpdateTargetRate(req.Rate)
	if h.journal != nil {
		h.journal.Emit("rate_change", h.sched.Status().Ticks, map[string]int{
			"from": previous,
			"to":   req.Rate,
		})
	}
	log.Printf("🎚️ Target rate changed to %d TPS via API", req.Rate)
	writeJSON(w, map[string]interface{}{
		"success": true,
		"rate":    req.Rate,
	})
}

func (h *routerHandlers) handleSetVerbose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verbose bool `json:"verbose"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	h.sched.SetVerbose(req.Verbose)
	writeJSON(w, map[string]interface{}{
		"success": true,
		"verbose": req.Verbose,
	})
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
