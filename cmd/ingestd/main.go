// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main wires together and runs the log ingestion daemon:
// HTTP acceptance, coalescing, durable streaming, worker pool,
// analytics sink, and retry reprocessing.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"logingest/internal/ingest/config"
	"logingest/internal/ingest/httpapi"
	"logingest/internal/ingest/retry"
	"logingest/internal/ingest/sink"
	"logingest/internal/ingest/stream"
	"logingest/internal/ingest/telemetry"
	"logingest/internal/ingest/worker"
	"logingest/pkg/coalescer"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional; environment and defaults still apply)")
	sinkMode := flag.String("sink", "memory", "analytics sink backend: memory, file, or clickhouse")
	sinkFile := flag.String("sink_file", "ingestd-entries.jsonl", "path used by the file sink backend")
	retryMode := flag.String("retry_store", "memory", "retry persistence backend: memory or postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(telemetry.LogConfig{Level: cfg.Telemetry.LogLevel, Development: cfg.Telemetry.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	telemetry.ServeMetrics(cfg.Telemetry.MetricsAddr, logger)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	queue := stream.NewRedisQueue(redisClient, stream.Config{
		Key:          cfg.Stream.Key,
		Group:        cfg.Stream.Group,
		BatchSize:    cfg.Stream.BatchSize,
		BlockTimeout: cfg.StreamBlockTimeout(),
		ClaimMinIdle: cfg.StreamClaimMinIdle(),
		ApproxMaxLen: cfg.Stream.ApproxMaxLen,
	}, logger)

	analyticsSink, err := buildSink(*sinkMode, *sinkFile, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: sink error: %v\n", err)
		os.Exit(1)
	}

	retryStrategy, err := buildRetryStrategy(*retryMode, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: retry store error: %v\n", err)
		os.Exit(1)
	}

	producer := stream.NewProducer(queue).WithMetrics(metrics)
	coalescerInst, err := coalescer.New(coalescer.Options{
		Enabled:         cfg.Coalescer.Enabled,
		MaxBatchSize:    cfg.Coalescer.MaxBatchSize,
		MaxWaitTime:     cfg.CoalescerMaxWaitTime(),
		DispatchTimeout: 10 * time.Second,
	}, producer.Process)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: coalescer error: %v\n", err)
		os.Exit(1)
	}

	pool := worker.NewPool(worker.PoolConfig{
		Count:      cfg.WorkerPool.Count,
		InstanceID: cfg.InstanceID,
		WorkerConfig: worker.Config{
			BatchSize:       cfg.Stream.BatchSize,
			MaxBatchSize:    cfg.Worker.MaxBatchSize,
			MaxWaitTime:     cfg.WorkerMaxWaitTime(),
			PollInterval:    cfg.WorkerPollInterval(),
			RetryQueueLimit: cfg.Worker.RetryQueueLimit,
			RecoverEvery:    cfg.Worker.RecoverEvery,
		},
		RestartBaseDelay:  time.Second,
		RestartMaxDelay:   30 * time.Second,
		HeartbeatInterval: cfg.WorkerPollInterval(),
		ShutdownGrace:     10 * time.Second,
	}, queue, analyticsSink, retryStrategy, logger)
	pool.WithMetrics(metrics)

	retryProcessor := retry.NewProcessor(retryStrategy, analyticsSink, queue, retry.ProcessorConfig{
		Interval:  cfg.RetryBaseDelay(),
		BatchSize: cfg.Worker.MaxBatchSize,
	}, logger).WithMetrics(metrics)

	httpServer := httpapi.NewServer(coalescerInst, logger).WithMetrics(metrics)
	srv := httpServer.ListenAndServe(cfg.HTTP.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	go retryProcessor.Run(ctx)

	go func() {
		logger.Info("ingestd: http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ingestd: http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("ingestd: shutting down")
	cancel()
	pool.Shutdown(context.Background())
	coalescerInst.Shutdown(10 * time.Second)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingestd: http server shutdown failed", zap.Error(err))
	}

	if err := analyticsSink.Close(); err != nil {
		logger.Error("ingestd: sink close failed", zap.Error(err))
	}
	if err := retryStrategy.Close(); err != nil {
		logger.Error("ingestd: retry store close failed", zap.Error(err))
	}

	logger.Info("ingestd: stopped")
}

func buildSink(mode, filePath string, cfg config.Config, logger *zap.Logger) (sink.AnalyticsSink, error) {
	switch strings.ToLower(mode) {
	case "clickhouse":
		return sink.NewClickHouseSink(sink.ClickHouseConfig{
			Addr:     []string{cfg.ClickHouse.Addr},
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		}, logger)
	case "file":
		return sink.NewFileSink(filePath)
	case "memory":
		return sink.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", mode)
	}
}

func buildRetryStrategy(mode string, cfg config.Config, logger *zap.Logger) (retry.Strategy, error) {
	backoffCfg := retry.BackoffConfig{
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		MaxAttempts: cfg.Retry.MaxAttempts,
	}
	switch strings.ToLower(mode) {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return retry.NewPostgresStrategy(pool, backoffCfg, logger), nil
	case "memory":
		return retry.NewMemoryStrategy(backoffCfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown retry backend %q", mode)
	}
}
