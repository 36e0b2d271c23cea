package main

import (
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pulse/internal/api"
	"pulse/internal/config"
	"pulse/internal/demo"
	"pulse/internal/engine"
	"pulse/internal/journal"
	"pulse/internal/present"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("⏱️ ================================")
	log.Println("⏱️  PULSE - TIMING ENGINE")
	log.Println("⏱️  Fixed-Timestep Scheduler")
	log.Println("⏱️ ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	loopCfg := appConfig.Loop
	presentCfg := appConfig.Present
	serverCfg := appConfig.Server
	journalCfg := appConfig.Journal
	demoCfg := appConfig.Demo

	label := getEnvWithDefault("LOOP_LABEL", "pulse")

	log.Printf("🎚️ Config: %d TPS, %d FPS presenter, %dx%d canvas, %d surface pages",
		loopCfg.TargetRate, presentCfg.FPS, presentCfg.Width, presentCfg.Height, presentCfg.Pages)

	// Presentation pipeline: surface pages, frame ring, async presenter
	pipeline, err := present.NewPipeline(present.PipelineConfig{
		Width:     presentCfg.Width,
		Height:    presentCfg.Height,
		Pages:     presentCfg.Pages,
		RingSlots: presentCfg.RingSlots,
		FPS:       presentCfg.FPS,
	})
	if err != nil {
		log.Fatalf("❌ Failed to build presentation pipeline: %v", err)
	}
	pipeline.SetOnSinkLost(func(name string) {
		log.Printf("⚠️ Frame sink %q detached after repeated write failures", name)
	})

	// Journal recorder: event log plus thinned frame track, when enabled
	var rec *journal.Recorder
	if journalCfg.Enabled {
		r, manifest, err := journal.NewRecorder(journal.Config{
			Root:          journalCfg.Root,
			Label:         journalCfg.Label,
			FrameInterval: time.Duration(journalCfg.FrameIntervalMs) * time.Millisecond,
		})
		if err != nil {
			log.Printf("⚠️ Journal disabled: %v", err)
		} else {
			rec = r
			rec.Start()
			pipeline.AddSink(rec)
			log.Printf("📼 Journal bundle: %s (frames every %dms)", rec.Directory(), manifest.FrameIntervalMs)
		}
	}
	if rec == nil {
		// Discard sink keeps the presenter delivery path exercised headless
		pipeline.AddSink(present.NewNullSink())
	}

	// An absent recorder must stay a nil interface, not a typed nil
	var events engine.EventSink
	var journalStats api.JournalInterface
	if rec != nil {
		events = rec
		journalStats = rec
	}

	// Demo scene is the cortex driving the loop
	scene := demo.NewScene(pipeline.Surface(), demo.Options{
		Bodies: demoCfg.Bodies,
		Seed:   demoCfg.Seed,
		Speed:  demoCfg.Speed,
	})

	// Services resolve lazily on the first update tick
	locator := engine.NewLocator(func() *engine.Services {
		return &engine.Services{
			Events: events,
			Rand:   rand.New(rand.NewSource(demoCfg.Seed)),
			Values: map[string]any{},
		}
	})

	// Fault routing: count in prometheus, journal when recording, then let
	// the configured default policy decide
	base := engine.DefaultPolicy(loopCfg.StopOnFault)
	policy := engine.FaultPolicyFunc(func(f engine.Fault) engine.Action {
		api.RecordFault(f.Phase)
		if rec != nil {
			rec.Emit(journal.KindFault, f.Tick, journal.FaultPayload{
				Phase: f.Phase.String(),
				Error: f.Err.Error(),
			})
		}
		return base.HandleFault(f)
	})

	var sched *engine.Scheduler
	sched, err = engine.New(scene, locator, engine.Config{
		TargetRate:    loopCfg.TargetRate,
		StopOnFault:   loopCfg.StopOnFault,
		Verbose:       loopCfg.Verbose,
		MetricsWindow: loopCfg.MetricsWindow,
		Present:       pipeline.Present,
		Policy:        policy,
		ObservePhase:  api.ObservePhase,
		AfterUpdate: func() {
			if rec == nil {
				return
			}
			st := sched.Status()
			rec.Emit(journal.KindTick, st.Ticks, journal.TickPayload{
				DeltaSec: 1.0 / float64(st.TargetRate),
				UpdateMs: st.Metrics.Update.AvgMs,
				RenderMs: st.Metrics.Render.AvgMs,
			})
		},
	})
	if err != nil {
		log.Fatalf("❌ Failed to build scheduler: %v", err)
	}

	if rec != nil {
		sched.SetLifecycleHooks(&journalHooks{rec: rec, sched: sched})
	}

	// HUD overlay reads the lock-free status snapshot at present time
	pipeline.SetHUD(present.NewOverlay(), func() present.HUDInfo {
		st := sched.Status()
		return present.HUDInfo{
			Label:      st.Label,
			Tick:       st.Ticks,
			Frame:      st.Frames,
			TargetRate: st.TargetRate,
			Paused:     st.Paused,
			UpdateMs:   st.Metrics.Update.AvgMs,
			RenderMs:   st.Metrics.Render.AvgMs,
		}
	})

	// Start debug server
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}
	api.UpdateTargetRate(loopCfg.TargetRate)

	// Create API server before the loop starts so control is never racing
	// against a half-built composition
	server := api.NewServer(api.ServerOptions{
		Scheduler:  sched,
		Pipeline:   pipeline,
		Journal:    journalStats,
		AdminToken: serverCfg.AdminToken,
	})

	// Start presentation drain, then the loop itself
	pipeline.Start()
	if err := sched.Start(label); err != nil {
		log.Fatalf("❌ Scheduler failed to start: %v", err)
	}

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("📱 Status: http://localhost%s/api/status", addr)
		log.Printf("🖼️ Preview: http://localhost%s/api/frame.png", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Engine ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	if rec != nil {
		rec.Emit(journal.KindStop, sched.Status().Ticks, nil)
	}
	sched.Stop()
	pipeline.CleanUp()
	if rec != nil {
		if err := rec.Stop(); err != nil {
			log.Printf("⚠️ Journal close error: %v", err)
		}
	}
	server.Stop()
	log.Println("👋 Goodbye!")
}

// journalHooks mirrors lifecycle transitions into the journal.
type journalHooks struct {
	rec   *journal.Recorder
	sched *engine.Scheduler
}

func (h *journalHooks) OnLoopStart() {
	h.rec.Emit(journal.KindLoopStart, 0, nil)
}

func (h *journalHooks) OnPause() {
	h.rec.Emit(journal.KindPause, h.sched.Status().Ticks, nil)
}

func (h *journalHooks) OnResume() {
	h.rec.Emit(journal.KindResume, h.sched.Status().Ticks, nil)
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
