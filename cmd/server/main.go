package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/klaviyo-webflow/internal/cdn"
	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
	"github.com/ignite/klaviyo-webflow/internal/storage"
	"github.com/ignite/klaviyo-webflow/internal/tracking"
	"github.com/ignite/klaviyo-webflow/internal/versions"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	table, err := versions.LoadOrDefault(cfg.CDN.VersionsFile)
	if err != nil {
		logger.Error("failed to load version table", "path", cfg.CDN.VersionsFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := cdn.Options{Table: table}

	var s3Client storage.S3API
	if cfg.CDN.S3Bucket != "" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.CDN.AWSRegion, cfg.CDN.GetAWSProfile())
		if err != nil {
			logger.Error("failed to load AWS config for S3", "error", err)
			os.Exit(1)
		}
		s3Client = s3.NewFromConfig(awsCfg)
		logger.Info("S3 script source enabled", "bucket", cfg.CDN.S3Bucket, "prefix", cfg.CDN.S3Prefix)
	}
	opts.Store = storage.NewScriptStore(cfg.CDN, s3Client)

	if cfg.Redis.URL != "" {
		cache, err := cdn.NewScriptCacheFromURL(cfg.Redis.URL, cfg.CDN.CacheTTL())
		if err != nil {
			logger.Warn("redis script cache disabled", "error", err)
		} else {
			defer cache.Close()
			opts.Cache = cache
			logger.Info("redis script cache enabled", "ttl", cfg.CDN.CacheTTL())
		}
	}

	if cfg.Analytics.DynamoDBTable != "" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Analytics.AWSRegion, cfg.CDN.GetAWSProfile())
		if err != nil {
			logger.Warn("usage analytics disabled", "error", err)
		} else {
			opts.Usage = storage.NewUsageTable(dynamodb.NewFromConfig(awsCfg), cfg.Analytics)
			logger.Info("usage analytics enabled", "table", cfg.Analytics.DynamoDBTable)
		}
	}

	var (
		publisher *tracking.Publisher
		consumer  *tracking.Consumer
	)
	if cfg.Tracking.SQSQueueURL != "" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Tracking.AWSRegion, cfg.CDN.GetAWSProfile())
		if err != nil {
			logger.Warn("tracking relay disabled", "error", err)
		} else {
			sqsClient := sqs.NewFromConfig(awsCfg)
			publisher = tracking.NewPublisher(sqsClient, cfg.Tracking.SQSQueueURL)
			opts.Tracking = tracking.NewHandler(publisher).Routes()

			consumer = tracking.NewConsumer(sqsClient, cfg.Tracking.SQSQueueURL, klaviyo.NewClientFromConfig(cfg.Klaviyo))
			consumer.Start(ctx)
		}
	}

	handler := cdn.NewHandler(opts)

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.GetHost(), port),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("script host listening", "addr", srv.Addr, "versions", len(table.Versions))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down script host")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if consumer != nil {
		consumer.Stop()
	}
	if publisher != nil {
		publisher.Wait()
	}
	handler.Wait()
}
