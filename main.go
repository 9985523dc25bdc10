package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskflow/config"
	"taskflow/middleware"
	"taskflow/models"
	"taskflow/realtime"
	"taskflow/routes"
	"taskflow/utils"
	"taskflow/worker"
)

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "TaskFlow project and task tracking API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(); err != nil {
			return err
		}
		logrus.Info("Schema is up to date")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default admin, project manager and user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(); err != nil {
			return err
		}
		users := models.DefaultSeedUsers(config.AppConfig.SeedAdminEmail, config.AppConfig.SeedAdminPassword)
		if err := models.CreateDefaultUsers(config.DB, users); err != nil {
			return fmt.Errorf("failed to seed users: %w", err)
		}
		for _, u := range users {
			logrus.WithFields(logrus.Fields{"email": u.Email, "role": u.Role}).Info("Default user ready")
		}
		return nil
	},
}

// setup loads configuration and connects to the migrated database.
func setup() error {
	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ConnectDB(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func serve() error {
	if err := setup(); err != nil {
		return err
	}

	flush, err := config.InitSentry()
	if err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed")
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(logrus.WithField("component", "hub"))

	var storage fiber.Storage
	if config.AppConfig.Redis.Enabled {
		redisStorage := middleware.NewRedisStorage(config.AppConfig.Redis)
		if err := redisStorage.Ping(ctx); err != nil {
			logrus.WithError(err).Warn("Redis unavailable, rate limit counters stay in memory")
		} else {
			storage = redisStorage
			defer redisStorage.Close()
		}
	}

	if config.AppConfig.SMTP.Host != "" {
		mailer := utils.NewSMTPMailer(config.AppConfig.SMTP)
		deadlineWorker := worker.NewDeadlineWorker(config.DB, mailer, logrus.NewEntry(logrus.StandardLogger()),
			config.AppConfig.ReminderInterval, config.AppConfig.ReminderWindow)
		deadlineWorker.FrontendURL = config.AppConfig.FrontendURL
		go deadlineWorker.Start(ctx)
	} else {
		logrus.Info("SMTP_HOST not set, deadline reminders disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "TaskFlow",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: config.AppConfig.Environment != "production"}))
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(config.AppConfig.FrontendURL)))

	routes.SetupRoutes(app, config.DB, routes.Options{
		Hub:              hub,
		RateLimitStorage: storage,
		AccessLog:        true,
	})

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	logrus.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
