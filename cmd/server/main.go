package main

import (
	"commandcenter/internal/config"
	"commandcenter/internal/database"
	"commandcenter/internal/handlers"
	"commandcenter/internal/logging"
	"commandcenter/internal/middleware"
	"commandcenter/internal/services"
	"commandcenter/pkg/auth"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Command Center Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Prometheus metrics
	services.InitMetrics()
	log.Println("✅ Metrics initialized")

	// Change feed + optional Redis fan-out for multi-instance deployments
	feed := services.NewChangeFeed()

	var bridge *services.RedisBridge
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		instanceID := uuid.New().String()
		bridge, err = services.NewRedisBridge(cfg.RedisURL, feed, instanceID)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (cross-instance sync disabled)", err)
			bridge = nil
		} else if err := bridge.Start(); err != nil {
			log.Printf("⚠️ Failed to start Redis bridge: %v", err)
			bridge = nil
		} else {
			log.Println("✅ Redis feed bridge started")
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - cross-instance sync disabled")
	}

	// Worker model registry with hot reload
	registry := services.NewWorkerRegistry(cfg.WorkersFile)
	if err := registry.Watch(); err != nil {
		log.Printf("⚠️ Worker registry watch disabled: %v", err)
	}
	defer registry.Close()

	// Stores and services
	userService := services.NewUserService(db)
	projectStore := services.NewProjectStore(db, feed)
	taskStore := services.NewTaskStore(db, feed)
	activityStore := services.NewActivityStore(db, feed)

	// Housekeeping: stuck execution sweep + daily table stats
	maintenance, err := services.NewMaintenance(db, taskStore, activityStore, cfg.StuckExecutionAge, cfg.SweepInterval)
	if err != nil {
		log.Fatalf("❌ Failed to create maintenance scheduler: %v", err)
	}
	if err := maintenance.Start(); err != nil {
		log.Printf("⚠️ Failed to start maintenance jobs: %v", err)
	}

	// Local JWT auth (nil in development means the middleware injects a dev user)
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("✅ Local JWT authentication enabled")
	} else if cfg.Environment == "production" {
		log.Fatal("❌ JWT_SECRET is required in production")
	} else {
		log.Println("⚠️ JWT_SECRET not set - running with dev auth bypass")
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(jwtAuth, userService)
	projectHandler := handlers.NewProjectHandler(projectStore)
	taskHandler := handlers.NewTaskHandler(taskStore, activityStore, registry)
	activityHandler := handlers.NewActivityHandler(activityStore)
	syncHandler := handlers.NewSyncWebSocketHandler(projectStore, taskStore, activityStore, feed, registry)
	healthHandler := handlers.NewHealthHandler(db, feed)

	app := fiber.New(fiber.Config{
		AppName:   "Command Center",
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("commandcenter")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Use(cors.New(cors.Config{
		AllowOrigins:     getEnv("CORS_ORIGINS", "http://localhost:5173"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PATCH, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	rateLimitConfig := middleware.LoadRateLimitConfig()
	app.Use("/api", rateLimitConfig.GlobalLimiter())

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/refresh", authHandler.RefreshToken)
	authRoutes.Post("/logout", middleware.AuthMiddleware(jwtAuth), authHandler.Logout)
	authRoutes.Get("/session", middleware.AuthMiddleware(jwtAuth), authHandler.GetCurrentUser)
	authRoutes.Get("/status", authHandler.GetStatus)

	authed := api.Group("", middleware.AuthMiddleware(jwtAuth), rateLimitConfig.AuthenticatedLimiter())

	authed.Get("/projects", projectHandler.List)
	authed.Post("/projects", projectHandler.Create)
	authed.Get("/projects/:id", projectHandler.Get)

	authed.Get("/tasks", taskHandler.List)
	authed.Post("/tasks", taskHandler.Create)
	authed.Get("/tasks/:id", taskHandler.Get)
	authed.Patch("/tasks/:id", taskHandler.Update)
	authed.Patch("/tasks/:id/status", taskHandler.UpdateStatus)
	authed.Patch("/tasks/:id/intelligence", taskHandler.UpdateIntelligence)

	authed.Get("/tasks/:id/activity", activityHandler.List)
	authed.Post("/tasks/:id/activity", activityHandler.AddNote)

	authed.Get("/workers", taskHandler.Workers)

	// Sync websocket: upgrade check, then rate limit + auth (token via query)
	app.Use("/ws/sync", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/sync", rateLimitConfig.WebSocketLimiter())
	app.Use("/ws/sync", middleware.AuthMiddleware(jwtAuth))
	app.Get("/ws/sync", websocket.New(syncHandler.Handle))

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔄 Sync endpoint: ws://localhost:%s/ws/sync", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		maintenance.Stop()
		if bridge != nil {
			bridge.Stop()
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
