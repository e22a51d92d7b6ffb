package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/queue"
	"rollcall/internal/rosterclient"
	"rollcall/internal/store"
	"rollcall/internal/syllabus"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:checkins")
	}

	roster := rosterclient.New(cfg.EnrollmentURL, cfg.EnrollmentSkip)
	if cfg.EnrollmentSkip {
		log.Println("enrollment service skipped, serving canned roster data")
	}

	repo := attendance.NewRepository(db.Client)
	sessions := syllabus.NewRepository(db.Client)
	svc := attendance.NewService(repo, sessions, roster)

	statsCache := redisClient.Client
	if cfg.StatsCacheOff {
		statsCache = nil
	}
	reporter := attendance.NewReporter(repo, sessions, roster, statsCache)

	health := func(ctx context.Context) (bool, gin.H) {
		redisHealthy := redisClient.Healthy(ctx)
		dbHealthy := db != nil && db.Client.PingContext(ctx) == nil
		return redisHealthy && dbHealthy, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy}
	}

	r := httpapi.NewServer(cfg, svc, reporter, q, health).Router()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
