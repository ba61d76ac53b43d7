package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/api/handlers"
	"github.com/bachasia/schedy-sub001/internal/api/middleware"
	"github.com/bachasia/schedy-sub001/internal/dispatch"
	job "github.com/bachasia/schedy-sub001/internal/jobs"
	"github.com/bachasia/schedy-sub001/internal/publisher"
	"github.com/bachasia/schedy-sub001/internal/queue"
	"github.com/bachasia/schedy-sub001/internal/repository"
	"github.com/bachasia/schedy-sub001/internal/service"
	"github.com/bachasia/schedy-sub001/internal/token"
	"github.com/bachasia/schedy-sub001/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)
	defer inspector.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	historyRepo := repository.NewPublishHistoryRepository(db)

	dispatcher := dispatch.New(
		publisher.NewFacebookPublisher(*cfg),
		publisher.NewInstagramPublisher(*cfg),
		publisher.NewTiktokPublisher(*cfg),
		publisher.NewTwitterPublisher(*cfg),
		publisher.NewYoutubePublisher(*cfg),
	)

	tokenManager := token.NewManager(profileRepo, dispatcher, cfg.Tokens)

	q := queue.NewQueue(client, inspector, cfg.Queue,
		postRepo, profileRepo, postMediaRepo, historyRepo,
		tokenManager, dispatcher)

	postService := service.NewPostService(postRepo, profileRepo, postMediaRepo, historyRepo, q)
	mediaService := service.NewMediaService(*cfg, mediaAssetRepo)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/attempts", post.ListAttempts)
	api.Post("/posts/remove", post.RemovePost)
	api.Post("/posts/retry", post.RetryPost)
	api.Post("/posts/cancel", post.CancelPost)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media/upload", media.UploadMedia)
	api.Post("/media/remove", media.RemoveMedia)

	profile := handlers.NewProfileHandler(profileRepo)
	api.Get("/profiles", profile.ListProfiles)
	api.Post("/profiles/remove", profile.RemoveProfile)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(tokenManager)

	c := cron.New()
	c.AddFunc(cfg.Tokens.SweepSchedule, refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency:    cfg.Queue.Concurrency,
			RetryDelayFunc: queue.RetryDelay(cfg.Queue.RetryBaseDelay),
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, q.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
