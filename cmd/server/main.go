package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/config"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/db"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/history"
	internalhttp "github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/http"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/jobs"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/schedule"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	timetable := schedule.Default()
	if cfg.ScheduleFile != "" {
		loaded, err := schedule.LoadFile(cfg.ScheduleFile)
		if err != nil {
			log.Fatalf("schedule load failed: %v", err)
		}
		timetable = loaded
	}
	location, err := time.LoadLocation(cfg.SchoolTimezone)
	if err != nil {
		log.Fatalf("timezone load failed: %v", err)
	}
	mode, err := schedule.ParseMode(cfg.EvaluationMode)
	if err != nil {
		log.Fatalf("evaluation mode invalid: %v", err)
	}
	if mode == schedule.ModeAlwaysAllow {
		log.Printf("verification gating disabled: evaluation mode is %s", mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("db ping retry %d: %v", n+1, err)
		}),
	)
	if err != nil {
		log.Fatalf("db ping failed: %v", err)
	}
	store := db.NewStore(pool)

	var historyStore history.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		err = retry.Do(
			func() error {
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				return redisClient.Ping(pingCtx).Err()
			},
			retry.Context(ctx),
			retry.Attempts(5),
			retry.Delay(time.Second),
			retry.MaxDelay(10*time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.OnRetry(func(n uint, err error) {
				log.Printf("redis ping retry %d: %v", n+1, err)
			}),
		)
		if err != nil {
			log.Fatalf("redis ping failed: %v", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
		historyStore = history.NewRedisStore(redisClient, cfg.HistoryRetentionGrace)
		log.Printf("verification history backed by redis at %s", cfg.RedisAddr)
	} else {
		historyStore = history.NewMemoryStore(cfg.HistoryRetentionGrace)
		log.Printf("verification history held in memory")
	}

	jobs.StartHistoryPruneJob(ctx, cfg.HistoryPruneInterval, historyStore)

	server, err := internalhttp.NewServer(cfg, store, historyStore, timetable, location, mode)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("attendance http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
