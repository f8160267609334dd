package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/api"
	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/tracking"
	"github.com/ignite/outreach-engine/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Outreach Engine API server (cmd/server)")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer rt.Close()
	eng := rt.Engine

	// Opens go through SQS when a queue is configured, inline otherwise.
	var sink tracking.Sink = tracking.NewDirectSink(eng.Tracking)
	if cfg.Tracking.QueueURL != "" {
		awsCfg, err := bootstrap.AWSConfig(ctx, cfg.Tracking.Region)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		sink = tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Tracking.QueueURL)
		log.Printf("Tracking opens published to %s", cfg.Tracking.QueueURL)
	}

	sweeper := worker.NewFollowUpSweeper(eng.FollowUps, eng.Bundles, rt.Lock("followup-sweep", sweepLockTTL(cfg)), worker.SweepConfig{
		Concurrency:   cfg.Engine.FollowUpConcurrency,
		MaxDailySends: cfg.Engine.MaxDailySends,
	})

	var s3Client *s3.Client
	if cfg.Archive.Enabled {
		awsCfg, err := bootstrap.AWSConfig(ctx, cfg.Archive.Region)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}
	health := api.NewHealthChecker(rt.DB, rt.Redis, s3Client, cfg.Archive.Bucket)

	server := api.NewServer(cfg.Server, api.NewHandlers(eng, sweeper), health, tracking.NewHandler(sink))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func sweepLockTTL(cfg *config.Config) time.Duration {
	if cfg.Worker.SweepLockTTLSeconds > 0 {
		return time.Duration(cfg.Worker.SweepLockTTLSeconds) * time.Second
	}
	return 10 * time.Minute
}
