package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/tracking"
)

// The standalone pixel service publishes opens to SQS and needs no database.
func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Tracking.QueueURL == "" {
		log.Fatal("SQS_TRACKING_QUEUE_URL is required")
	}
	if err := bootstrap.ConfigureLogging(cfg.Logging); err != nil {
		log.Fatalf("logging: %v", err)
	}
	port := cfg.Server.Port
	if v := os.Getenv("TRACKING_PORT"); v != "" {
		if port, err = strconv.Atoi(v); err != nil {
			log.Fatalf("TRACKING_PORT: %v", err)
		}
	}

	awsCfg, err := bootstrap.AWSConfig(context.Background(), cfg.Tracking.Region)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	pub := tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Tracking.QueueURL)
	handler := tracking.NewHandler(pub)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
