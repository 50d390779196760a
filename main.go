package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snapLinkAPI/handlers"
	"snapLinkAPI/internal/clock"
	"snapLinkAPI/internal/notification"
	"snapLinkAPI/internal/store"
	"snapLinkAPI/middleware"
	"snapLinkAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	streakStore         store.StreakStore
	batchStore          store.BatchStore
	notificationService *services.NotificationService
	preferenceService   *services.PreferenceService
	streakService       *services.StreakService
	streakSweeper       *services.StreakSweeper
	reactionBatcher     *services.ReactionBatcher
	sweepInterval       time.Duration
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to Postgres")

	notificationService = services.NewNotificationService(dbPool)
	preferenceService = services.NewPreferenceService(dbPool)

	app, err := notification.NewFirebaseApp(ctx, "./serviceAccountKey.json")
	if err != nil {
		// Local runs without firebase credentials fall back to the
		// in-memory store and no pushes.
		log.Printf("Warning: Could not initialize firebase: %v", err)
		mem := store.NewMemory()
		streakStore = mem
		batchStore = store.NewMemoryBatches(mem)
	} else {
		fsClient, err := app.Firestore(ctx)
		if err != nil {
			log.Fatal("Failed to create Firestore client:", err)
		}
		fs := store.NewFirestore(fsClient)
		streakStore = fs
		batchStore = store.NewFirestoreBatches(fs)

		fcmService, err := notification.NewFCMService(ctx, app)
		if err != nil {
			log.Printf("Warning: Could not initialize FCM: %v", err)
		} else {
			notificationService.SetPushProvider(fcmService)
			log.Println("FCM Push Provider initialized successfully")
		}
	}

	clk := clock.System()
	streakService = services.NewStreakService(streakStore, clk, preferenceService, notificationService)
	streakSweeper = services.NewStreakSweeper(streakStore, clk, preferenceService, notificationService)
	reactionBatcher = services.NewReactionBatcher(batchStore, clk, preferenceService, notificationService)

	sweepInterval = 5 * time.Minute
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatal("Invalid SWEEP_INTERVAL:", err)
		}
		sweepInterval = parsed
	}

	middleware.InitPrometheus()
	services.InitStreakMetrics()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	eventHandler := handlers.NewEventHandler(streakService, reactionBatcher)
	taskHandler := handlers.NewTaskHandler(streakSweeper)
	notificationHandler := handlers.NewNotificationHandler(preferenceService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "snapLink-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// EVENT + TASK ROUTES (shared-secret, called by the event source
	// and the external scheduler)
	// -------------------------------------------------------------------------
	tasks := r.PathPrefix("/").Subrouter()
	tasks.Use(middleware.TaskAuthMiddleware)

	tasks.HandleFunc("/events/message-created", eventHandler.MessageCreated).Methods("POST")
	tasks.HandleFunc("/events/reaction-created", eventHandler.ReactionCreated).Methods("POST")
	tasks.HandleFunc("/tasks/streak-sweep", taskHandler.StreakSweep).Methods("POST")

	// -------------------------------------------------------------------------
	// API V1 (user id stamped upstream by the auth gateway)
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/notifications/preferences", notificationHandler.UpdatePreferences).Methods("PUT")
	api.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-User-ID", "X-Task-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if sweepInterval > 0 {
		streakSweeper.Start(sweepInterval)
		log.Printf("Streak sweeper running every %s", sweepInterval)
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	streakSweeper.Stop()
	reactionBatcher.Stop()
	notificationService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
