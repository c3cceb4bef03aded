package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// IngestionOutbox is written in the same transaction as its dataset; the dispatcher
// publishes it to the ingestion topic after commit.
type IngestionOutbox struct {
	ID               int        `gorm:"primary_key;index:idx_ingestion_outbox_dispatch,priority:3" json:"id"`
	DatasetId        int        `gorm:"not null;index" json:"dataset_id"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_ingestion_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_ingestion_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewIngestionOutbox(datasetId int, correlationId string) *IngestionOutbox {
	return &IngestionOutbox{
		DatasetId:     datasetId,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
}

// ReviveDeadOutbox puts DEAD rows back to PENDING with a fresh attempt budget.
// datasetIds limits the rows touched; empty means all.
func ReviveDeadOutbox(ctx context.Context, db *gorm.DB, datasetIds []int) (int64, error) {
	q := db.WithContext(ctx).Model(&IngestionOutbox{}).
		Where("publish_status = ?", OutboxPublishStatusDead)
	if len(datasetIds) > 0 {
		q = q.Where("dataset_id IN ?", datasetIds)
	}
	res := q.Updates(map[string]interface{}{
		"publish_status":     OutboxPublishStatusPending,
		"publish_attempts":   0,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
		"last_publish_error": nil,
	})
	return res.RowsAffected, res.Error
}

// EnqueueStuckDatasets adds a new outbox row for every dataset that is still PENDING
// after uploadedBefore and has no unsent row. It returns the re-enqueued dataset ids.
func EnqueueStuckDatasets(ctx context.Context, db *gorm.DB, uploadedBefore time.Time, correlationId string) ([]int, error) {
	var ids []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unsent := tx.Model(&IngestionOutbox{}).
			Select("dataset_id").
			Where("publish_status IN ?", []string{OutboxPublishStatusPending, OutboxPublishStatusProcessing, OutboxPublishStatusFailed})
		if err := tx.Model(&Dataset{}).
			Where("status = ? AND uploaded_at < ?", DatasetStatusPending, uploadedBefore).
			Where("id NOT IN (?)", unsent).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.Create(NewIngestionOutbox(id, correlationId)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
