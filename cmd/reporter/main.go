package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/analytics"
	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/bootstrap"
	"github.com/smukkama/energy-kpi/internal/hierarchy"
	"github.com/smukkama/energy-kpi/internal/logging"
	"github.com/smukkama/energy-kpi/internal/protocol"
	"github.com/smukkama/energy-kpi/internal/queue"
	"github.com/smukkama/energy-kpi/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting report worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer app.Close()

	for _, topic := range []string{cfg.Kafka.TopicReportRequests, cfg.Kafka.TopicReportResults} {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, topic, cfg.Kafka.NumPartitions, 1); err != nil {
			logger.Warn("Topic creation skipped", zap.String("topic", topic), zap.Error(err))
		}
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReportRequests, cfg.Kafka.GroupID)
	defer consumer.Close()
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReportResults)
	defer producer.Close()

	go app.Orchestrator.SweepCache(ctx, cfg.KPI.CacheSweepInterval)

	w := &worker{orch: app.Orchestrator, producer: producer, logger: logger}
	go func() {
		if err := consumer.Run(ctx, w.handle, logger); err != nil && ctx.Err() == nil {
			logger.Error("Consumer stopped", zap.Error(err))
		}
	}()

	logger.Info("Consuming report requests", zap.String("topic", cfg.Kafka.TopicReportRequests))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully")
	cancel()
}

type worker struct {
	orch     *analytics.Orchestrator
	producer *queue.Producer
	logger   *zap.Logger
}

// handle answers one report request. Request failures are published as
// ERROR results; only a failed publish is returned.
func (w *worker) handle(ctx context.Context, msg kafka.Message) error {
	req, err := protocol.DecodeReportRequest(msg.Value)
	if err != nil {
		w.logger.Warn("Dropping malformed report request", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	req.EnsureID()

	started := time.Now()
	result, err := w.process(ctx, req)
	if err != nil {
		w.logger.Warn("Report request failed",
			zap.String("request_id", req.RequestID),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
		result = protocol.NewErrorResult(req, err, time.Now())
	}

	data, err := protocol.EncodeReportResult(result)
	if err != nil {
		return fmt.Errorf("failed to encode report result: %w", err)
	}
	if err := w.producer.Publish(ctx, result.Key(), data); err != nil {
		return err
	}

	w.logger.Info("Report published",
		zap.String("request_id", req.RequestID),
		zap.String("status", result.Status),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (w *worker) process(ctx context.Context, req *protocol.ReportRequest) (*protocol.ReportResult, error) {
	opts, err := req.Options()
	if err != nil {
		return nil, err
	}

	result := &protocol.ReportResult{
		RequestID:  req.RequestID,
		Type:       req.Type,
		EntityKind: req.EntityKind,
		EntityID:   req.EntityID,
		Status:     protocol.ResultStatusOK,
	}

	switch req.Type {
	case protocol.ReportTypeBuildingAnalytics:
		report, err := w.orch.GetBuildingAnalytics(ctx, req.EntityID, opts)
		if err != nil {
			return nil, err
		}
		result.Analytics = report
	case protocol.ReportTypeEntityKPIs:
		kind, err := hierarchy.ParseKind(req.EntityKind)
		if err != nil {
			return nil, err
		}
		kpis, err := w.orch.GetEntityKPIs(ctx, kind, req.EntityID, opts)
		if err != nil {
			return nil, err
		}
		result.KPIs = &kpis
	default:
		return nil, apperr.Validation("unknown report type %q", req.Type)
	}

	result.CompletedAt = time.Now()
	return result, nil
}
