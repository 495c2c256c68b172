package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/luli-tech/task-manager/internal/config"
	"github.com/luli-tech/task-manager/internal/database"
	"github.com/luli-tech/task-manager/internal/handler"
	"github.com/luli-tech/task-manager/internal/hub"
	"github.com/luli-tech/task-manager/internal/queue"
	"github.com/luli-tech/task-manager/internal/repository"
	"github.com/luli-tech/task-manager/internal/router"
	"github.com/luli-tech/task-manager/internal/scanner"
	"github.com/luli-tech/task-manager/internal/service"
)

func main() {
	// Local development convenience; real deployments set env directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	tasks := repository.NewTaskRepo(db)
	notifications := repository.NewNotificationRepo(db)

	tokenSvc := service.NewTokenService(
		tokens,
		users,
		cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		cfg.RevokeAllOnReuse,
	)

	// The hub is owned here: created before serving starts, torn down
	// after the scanner stops so nothing publishes into closed streams.
	deliveryHub := hub.New(cfg.HubBuffer)

	publisher := queue.NewPublisher()
	reminders := scanner.New(tasks, notifications, deliveryHub, publisher, cfg.ScanInterval)
	reminders.Start()

	// External-channel worker; reconnects on broker outages forever.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokenSvc), tokenSvc, rdb)
	router.RegisterTasks(e, handler.NewTaskHandler(tasks), tokenSvc)
	router.RegisterNotifications(e, handler.NewNotificationHandler(notifications, deliveryHub), tokenSvc)
	router.RegisterAdmin(e, handler.NewAdminHandler(users), tokenSvc)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	// Shutdown order matters: the scanner finishes its in-flight pass
	// first (so no task is left claimed without its notification row
	// written), then the hub closes every subscriber stream, then the
	// HTTP server drains.
	reminders.Stop()
	deliveryHub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
