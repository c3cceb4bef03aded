package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/sharmarakshya7/financial-rating-platform/workflow"
	"github.com/sirupsen/logrus"
)

// handleIngestionMessage runs one delivery and reports whether it should be acked.
// Success, a malformed payload and an unknown dataset are acked; anything else is
// left for redelivery.
func handleIngestionMessage(ctx context.Context, processor *workflow.DatasetProcessor, data []byte, attrs map[string]string, messageID string) bool {
	logger := processor.Logger

	// Correlation ID propagation: prefer the upload's id; fall back to the message id.
	correlationID := attrs[config.AttributeCorrelationId]
	if correlationID == "" {
		correlationID = messageID
	}
	ctx = utils.SetCorrelationIdInContext(ctx, correlationID)

	err := processor.ProcessMessage(ctx, data)
	if err == nil {
		return true
	}
	fields := logrus.Fields{
		"field":          "handleIngestionMessage",
		"message_id":     messageID,
		"correlation_id": correlationID,
	}
	if workflow.IsPermanent(err) {
		logger.WithFields(fields).Warn("dropping ingestion job: " + err.Error())
		return true
	}
	if errors.Is(err, workflow.ErrDatasetInProgress) {
		logger.WithFields(fields).Info("dataset busy, redelivering later")
		return false
	}
	logger.WithFields(fields).Error("ingestion job failed: " + err.Error())
	return false
}

// RunIngestionWorkflow pulls jobs from PUBSUB_SUBSCRIPTION until ctx is done. Without
// a subscription configured the service relies on push deliveries to /pubsub.
//
// Env:
// - PUBSUB_SUBSCRIPTION=dataset-ingestion-worker
// - PUBSUB_CREATE_RESOURCES=true creates PUBSUB_TOPIC and the subscription if missing
// - INGEST_MAX_CONCURRENT_JOBS=4
func RunIngestionWorkflow(ctx context.Context, processor *workflow.DatasetProcessor) error {
	logger := processor.Logger
	subName := strings.TrimSpace(os.Getenv("PUBSUB_SUBSCRIPTION"))
	if subName == "" {
		logger.WithFields(logrus.Fields{"field": "RunIngestionWorkflow"}).Info("PUBSUB_SUBSCRIPTION not set; pull consumer disabled")
		return nil
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	sub := client.Subscription(subName)
	if strings.EqualFold(strings.TrimSpace(os.Getenv("PUBSUB_CREATE_RESOURCES")), "true") {
		topic, err := config.CreateTopicIfNotExists(ctx, client, os.Getenv("PUBSUB_TOPIC"))
		if err != nil {
			return err
		}
		if sub, err = config.CreateSubscriptionIfNotExists(ctx, client, subName, topic); err != nil {
			return err
		}
	}
	sub.ReceiveSettings.MaxOutstandingMessages = config.IngestMaxConcurrentJobs()
	sub.ReceiveSettings.NumGoroutines = 1

	logger.WithFields(logrus.Fields{
		"field":        "RunIngestionWorkflow",
		"subscription": subName,
		"worker_id":    processor.WorkerID,
		"max_jobs":     sub.ReceiveSettings.MaxOutstandingMessages,
	}).Info("ingestion consumer started")

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if handleIngestionMessage(ctx, processor, m.Data, m.Attributes, m.ID) {
			m.Ack()
			return
		}
		m.Nack()
	})
}
