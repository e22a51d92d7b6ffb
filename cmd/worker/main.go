package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/rosterclient"
	"rollcall/internal/store"
	"rollcall/internal/syllabus"
)

// Worker refreshes cached session stats after each check-in and sweeps
// expired codes. Expiry stays lazily evaluated on the read path; the sweep
// only keeps the code history tidy for audit views.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:checkins")
	}

	roster := rosterclient.New(cfg.EnrollmentURL, cfg.EnrollmentSkip)
	if !cfg.EnrollmentSkip {
		if err := roster.Health(ctx); err != nil {
			log.Printf("WARNING: enrollment service not available: %v", err)
		} else {
			log.Println("enrollment service connected")
		}
	}

	repo := attendance.NewRepository(db.Client)
	sessions := syllabus.NewRepository(db.Client)
	reporter := attendance.NewReporter(repo, sessions, roster, redisClient.Client)

	go sweepExpired(ctx, repo, cfg.SweepInterval)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeCheckin {
			continue
		}

		var evt queue.CheckinEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad checkin message: %v", err)
			continue
		}

		if err := reporter.Refresh(ctx, evt.SessionID); err != nil {
			log.Printf("stats refresh for session %s failed: %v", evt.SessionID, err)
			continue
		}
		log.Printf("stats refreshed for session %s (record %s)", evt.SessionID, evt.RecordID)
	}

	log.Println("worker stopped")
}

func sweepExpired(ctx context.Context, repo *attendance.Repository, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeactivateExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("expired code sweep failed: %v", err)
				continue
			}
			if n > 0 {
				metrics.CodesSwept.Add(float64(n))
				log.Printf("swept %d expired code(s)", n)
			}
		}
	}
}
