package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/rating"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	// ErrMalformedPayload marks a job message that can never be processed; consumers ack it.
	ErrMalformedPayload = errors.New("malformed ingestion payload")
	// ErrDatasetInProgress asks the queue to redeliver later.
	ErrDatasetInProgress = errors.New("dataset is being processed by another worker")
)

var tracer = otel.Tracer("financial-rating-platform/workflow")

type flushFunc func(ctx context.Context, tx *gorm.DB, batch []*models.FinancialRecord) error

// DatasetProcessor runs ingestion jobs: parse the dataset's file, rate every row and
// store the records. A nil DB or Locker falls back to the process-wide connections.
type DatasetProcessor struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Files    utils.FileStore
	Locker   *redislock.Client
	WorkerID string

	BatchSize       int
	StaleClaimAfter time.Duration
	Now             func() time.Time

	flush flushFunc
}

func NewDatasetProcessor(db *gorm.DB, logger *logrus.Logger, files utils.FileStore) *DatasetProcessor {
	return &DatasetProcessor{
		DB:              db,
		Logger:          logger,
		Files:           files,
		WorkerID:        uuid.NewString(),
		BatchSize:       config.IngestBatchSize(),
		StaleClaimAfter: config.IngestStaleClaimAfter(),
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// ParseJobPayload reads the decimal dataset id carried by a job message.
func ParseJobPayload(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, s)
	}
	return id, nil
}

// IsPermanent reports whether redelivering the job can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, utils.ErrorRecordNotFound)
}

func (p *DatasetProcessor) ProcessMessage(ctx context.Context, payload []byte) error {
	id, err := ParseJobPayload(payload)
	if err != nil {
		config.LogError(p.Logger, "DatasetProcessor", "ProcessMessage", "invalid payload", string(payload), err)
		return err
	}
	return p.ProcessDataset(ctx, id)
}

// ProcessDataset runs one job to completion or failure. Records and the COMPLETED
// transition commit together, so a FAILED dataset has no records.
func (p *DatasetProcessor) ProcessDataset(ctx context.Context, id int) error {
	ctx = utils.SetSkipOwnerScopeInContext(ctx, true)
	ctx, span := tracer.Start(ctx, "ingestion.ProcessDataset", trace.WithAttributes(attribute.Int("dataset.id", id)))
	defer span.End()

	fields := logrus.Fields{
		"field":      "DatasetProcessor",
		"dataset_id": id,
		"worker_id":  p.WorkerID,
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		fields["correlation_id"] = correlationId
	}
	logger := p.Logger.WithFields(fields)

	db := p.db()
	dataset, err := models.FindDatasetById(ctx, db, id)
	if err != nil {
		span.RecordError(err)
		config.LogError(p.Logger, "DatasetProcessor", "ProcessDataset", "dataset lookup failed", id, err)
		return err
	}
	if dataset.Status.IsTerminal() {
		logger.WithField("status", dataset.Status).Info("dataset already terminal, skipping redelivery")
		return nil
	}

	lease, err := obtainDatasetLease(ctx, p.locker(), logger, id, p.staleClaimAfter())
	if err != nil {
		logger.Info(err.Error())
		return err
	}
	defer lease.Release(ctx)

	claim, outcome, err := claimDataset(ctx, db, dataset, p.WorkerID, p.now(), p.staleClaimAfter())
	if err != nil {
		span.RecordError(err)
		config.LogError(p.Logger, "DatasetProcessor", "ProcessDataset", "claim failed", id, err)
		return err
	}
	switch outcome {
	case claimTerminal:
		logger.Info("dataset already terminal, skipping redelivery")
		return nil
	case claimBusy:
		return fmt.Errorf("%w: dataset %d", ErrDatasetInProgress, id)
	}
	logger.Info("dataset processing started")

	count, err := p.ingest(ctx, db, dataset, claim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := models.FailDataset(ctx, db, id, claim); ferr != nil {
			config.LogError(p.Logger, "DatasetProcessor", "ProcessDataset", "failed to mark dataset FAILED", id, ferr)
		}
		models.InvalidateDashboardSummary(ctx, dataset.UserId)
		config.LogError(p.Logger, "DatasetProcessor", "ProcessDataset", "dataset processing failed", id, err)
		return err
	}

	models.InvalidateDashboardSummary(ctx, dataset.UserId)
	span.SetAttributes(attribute.Int("dataset.record_count", count))
	logger.WithField("record_count", count).Info("dataset processing completed")
	return nil
}

func (p *DatasetProcessor) ingest(ctx context.Context, db *gorm.DB, dataset *models.Dataset, claim models.StateProcessing) (int, error) {
	rc, err := p.Files.Open(ctx, dataset.FilePath)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	reader, err := NewRowReader(dataset.FileType, rc)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	batchSize := p.batchSize()
	flush := p.flush
	if flush == nil {
		flush = flushBatch
	}

	count := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch := make([]*models.FinancialRecord, 0, batchSize)
		for {
			row, err := reader.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			rec := row.Record(dataset.ID)
			rec.ApplyRating(rating.Calculate(rec.RatingInputs()), p.now())
			batch = append(batch, rec)

			if len(batch) >= batchSize {
				if err := flush(ctx, tx, batch); err != nil {
					return fmt.Errorf("flush at line %d: %w", reader.Line(), err)
				}
				count += len(batch)
				batch = make([]*models.FinancialRecord, 0, batchSize)
			}
		}
		if len(batch) > 0 {
			if err := flush(ctx, tx, batch); err != nil {
				return fmt.Errorf("flush remainder: %w", err)
			}
			count += len(batch)
		}
		return models.CompleteDataset(ctx, tx, dataset.ID, claim, count, p.now())
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func flushBatch(ctx context.Context, tx *gorm.DB, batch []*models.FinancialRecord) error {
	ctx, span := tracer.Start(ctx, "ingestion.flushBatch", trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()
	if err := models.CreateFinancialRecords(ctx, tx, batch); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (p *DatasetProcessor) db() *gorm.DB {
	if p.DB != nil {
		return p.DB
	}
	return config.GetDB()
}

func (p *DatasetProcessor) locker() *redislock.Client {
	if p.Locker != nil {
		return p.Locker
	}
	return config.GetRedisLock()
}

func (p *DatasetProcessor) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return config.DefaultIngestBatchSize
}

func (p *DatasetProcessor) staleClaimAfter() time.Duration {
	if p.StaleClaimAfter > 0 {
		return p.StaleClaimAfter
	}
	return config.DefaultStaleClaimAfter
}

func (p *DatasetProcessor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}
