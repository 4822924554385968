package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinia-sante/clinia/internal/admin"
	"github.com/clinia-sante/clinia/internal/analysis"
	"github.com/clinia-sante/clinia/internal/llm"
	"github.com/clinia-sante/clinia/internal/mocks"
	"github.com/clinia-sante/clinia/internal/shared/config"
	"github.com/clinia-sante/clinia/internal/shared/database"
	"github.com/clinia-sante/clinia/internal/shared/events"
	"github.com/clinia-sante/clinia/internal/shared/metrics"
	secmiddleware "github.com/clinia-sante/clinia/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running without the result cache and admin login...")
	} else {
		app.DB = db
		defer db.Close()

		// Run migrations
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize audit event bus (optional - skip if not available)
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(ctx, cfg.KurrentDB)
		if err != nil {
			fmt.Printf("Warning: KurrentDB not available: %v\n", err)
			fmt.Println("Running without audit events...")
		} else {
			app.Bus = bus
			defer bus.Close()
			fmt.Println("KurrentDB audit bus initialized")
		}
	}

	// Mock template store
	mockStore, err := mocks.NewStore(cfg.Mocks.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load mock templates: %v\n", err)
		os.Exit(1)
	}

	// LLM generator (optional - mock mode works without it)
	var generator analysis.Generator
	if cfg.AI.APIKey != "" {
		client, err := llm.NewClient(llm.Config{
			APIKey: cfg.AI.APIKey,
			Model:  cfg.AI.Model,
		})
		if err != nil {
			fmt.Printf("Warning: AI client unavailable: %v\n", err)
		} else {
			generator = client
			fmt.Printf("AI generator enabled (model: %s)\n", cfg.AI.Model)
		}
	} else {
		fmt.Println("No ANTHROPIC_API_KEY - serving mock templates only")
	}

	var resultStore analysis.ResultStore
	if app.DB != nil {
		resultStore = analysis.NewRepository(app.DB.Pool)
	}

	analysisService := analysis.NewService(cfg.AI, resultStore, mockStore, generator, app.Bus)
	analysisHandler := analysis.NewHandler(analysisService)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.MaxBodySize(1 * 1024 * 1024))
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	ipLimiter := secmiddleware.NewIPRateLimiter(20, 40)
	r.Use(ipLimiter.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Mount("/ai", analysisHandler.Routes())

		// Admin module needs the database for its user store
		if app.DB != nil {
			adminRepo := admin.NewRepository(app.DB.Pool)
			adminHandler := admin.NewHandler(adminRepo, mockStore, cfg.Auth, app.Bus)
			r.Mount("/", adminHandler.Routes())
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("ClinIA Clinical Decision Support (prototype)")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Analyze:        http://localhost:%d/api/ai/analyze\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Mock mode:      %v\n", cfg.AI.MockMode)
	fmt.Printf("Model:          %s\n", cfg.AI.Model)
	fmt.Printf("Rate window:    %s (max %d calls)\n", cfg.AI.RateWindow, cfg.AI.RateMaxCalls)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "ClinIA",
		"version": "0.1.0",
		"status":  "prototype - not for clinical use",
		"docs":    "/api/ai/analyze",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
