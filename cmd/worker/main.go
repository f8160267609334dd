package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/archive"
	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/newsscan"
	"github.com/ignite/outreach-engine/internal/tracking"
	"github.com/ignite/outreach-engine/internal/worker"
)

func main() {
	log.Println("Starting Outreach Engine worker...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer rt.Close()
	eng := rt.Engine

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		log.Printf("%s started", name)
	}

	// Follow-up sweep
	lockTTL := 10 * time.Minute
	if cfg.Worker.SweepLockTTLSeconds > 0 {
		lockTTL = time.Duration(cfg.Worker.SweepLockTTLSeconds) * time.Second
	}
	sweeper := worker.NewFollowUpSweeper(eng.FollowUps, eng.Bundles, rt.Lock("followup-sweep", lockTTL), worker.SweepConfig{
		Interval:      cfg.Worker.SweepInterval(),
		Concurrency:   cfg.Engine.FollowUpConcurrency,
		MaxDailySends: cfg.Engine.MaxDailySends,
	})
	run("Follow-up sweeper", sweeper.Start)

	// Daily batch: draft eligible contacts and deliver approved bundles
	sender := worker.NewBatchSender(eng.Bundles, eng.Bundles, rt.Lock("batch-send", lockTTL), worker.BatchConfig{
		Interval:      cfg.Worker.BatchSendInterval(),
		Concurrency:   cfg.Engine.FollowUpConcurrency,
		MaxDailySends: cfg.Engine.MaxDailySends,
		Draft:         true,
		DraftLimit:    cfg.Engine.BatchSize,
	})
	run("Batch sender", sender.Start)

	// News scanning
	if len(cfg.News.Sources) > 0 {
		opts := newsscan.Options{Sources: cfg.News.Sources, AutoPromote: cfg.News.AutoPromote}
		if cfg.News.Bedrock.Enabled {
			awsCfg, err := bootstrap.AWSConfig(ctx, cfg.News.Bedrock.Region)
			if err != nil {
				log.Fatalf("aws config: %v", err)
			}
			opts.Classifier = newsscan.NewBedrockClassifier(bedrockruntime.NewFromConfig(awsCfg), cfg.News.Bedrock.ModelID, eng.Policy)
			log.Printf("Bedrock signal classifier enabled (model %s)", cfg.News.Bedrock.ModelID)
		}
		scanner := newsscan.NewScanner(eng.Signals, eng.Policy, opts)
		poller := worker.NewNewsPoller(scanner, rt.Lock("news-scan", cfg.News.Interval()), cfg.News.Interval())
		run("News poller", poller.Start)
	} else {
		log.Println("News poller disabled (no sources configured)")
	}

	// Daily stats and archive
	var arch worker.StatsArchiver
	if cfg.Archive.Enabled {
		awsCfg, err := bootstrap.AWSConfig(ctx, cfg.Archive.Region)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		arch = archive.NewS3Archive(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix)
	}
	run("Stats roller", worker.NewStatsRoller(eng.Stats, arch, cfg.Worker.StatsHourUTC).Start)

	// Queued opens from the standalone pixel service
	if cfg.Tracking.QueueURL != "" {
		awsCfg, err := bootstrap.AWSConfig(ctx, cfg.Tracking.Region)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		consumer := tracking.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.Tracking.QueueURL, eng.Tracking)
		run("Open event consumer", func(ctx context.Context) {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("open consumer stopped: %v", err)
			}
		})
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	wg.Wait()
	log.Println("Worker stopped")
}
