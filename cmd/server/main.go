package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "postbridge/configs"
	"postbridge/internal/api/handlers"
	"postbridge/internal/api/middleware"
	job "postbridge/internal/jobs"
	"postbridge/internal/media"
	"postbridge/internal/oauth"
	"postbridge/internal/platform"
	"postbridge/internal/publish"
	"postbridge/internal/queue"
	"postbridge/internal/repository"
	"postbridge/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

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

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)

	adapters := platform.NewRegistry(
		platform.NewTwitterAdapter(*cfg),
		platform.NewFacebookAdapter(*cfg),
		platform.NewInstagramAdapter(*cfg),
		platform.NewTiktokAdapter(*cfg),
		platform.NewYoutubeAdapter(*cfg),
	)

	connectCtrl := oauth.NewController(*cfg, adapters, socialAccountRepo)
	orchestrator := publish.NewOrchestrator(adapters, socialAccountRepo, []byte(cfg.SecretKey))
	objectStore := media.NewObjectStore(*cfg)

	authService := service.NewAuthService(cfg, userRepo)
	userService := service.NewUserService(userRepo)
	accountService := service.NewAccountService(cfg, socialAccountRepo, adapters)
	postService := service.NewPostService(db, postRepo, postMediaRepo, adapters, orchestrator, objectStore, client)

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	auth := handlers.NewAuthHandler(cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	connect := handlers.NewConnectHandler(cfg, connectCtrl)
	app.Get("/auth/:platform", connect.AddSocialAccount)
	app.Get("/auth/:platform/callback", connect.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Post("/auth/:platform/cancel", connect.CancelHandler)

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)

	account := handlers.NewAccountHandler(accountService)
	api.Get("/accounts", account.ListSocialAccounts)
	api.Post("/accounts/remove", account.RequestRemoval)
	api.Post("/accounts/remove/confirm", account.ConfirmRemoval)

	pub := handlers.NewPublishHandler(postService)
	api.Post("/publish", pub.PublishNow)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(cfg, socialAccountRepo, adapters)

	// queue
	queueW := queue.NewQueue(postRepo, postMediaRepo, orchestrator)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

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
