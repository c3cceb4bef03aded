package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"gorm.io/gorm"
)

// Dataset is one uploaded source file and its processing lifecycle.
type Dataset struct {
	ID          int           `gorm:"primary_key" json:"id"`
	UserId      int           `gorm:"index;not null" json:"userId"`
	Name        string        `gorm:"size:255;not null" json:"name"`
	FileName    string        `gorm:"size:255;not null" json:"fileName"`
	FileType    FileType      `gorm:"size:10;not null" json:"fileType"`
	FileSize    int64         `gorm:"not null" json:"fileSize"`
	FilePath    string        `gorm:"size:1024;not null" json:"-"`
	Status      DatasetStatus `gorm:"size:20;not null;index" json:"status"`
	RecordCount *int          `json:"recordCount"`
	UploadedAt  time.Time     `gorm:"not null;index" json:"uploadedAt"`
	ProcessedAt *time.Time    `json:"processedAt"`
	ClaimedAt   *time.Time    `json:"-"`
	ClaimedBy   *string       `gorm:"size:64" json:"-"`
}

type NewDataset struct {
	Name     string
	FileName string
	FileType FileType
	FileSize int64
	FilePath string
}

func userIdFromContext(ctx context.Context) (int, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return 0, errors.New("user id is required")
	}
	return userId, nil
}

// CreateDataset stores a PENDING dataset and its ingestion outbox row in one
// transaction. The outbox dispatcher publishes the job after commit.
func CreateDataset(ctx context.Context, input *NewDataset) (*Dataset, error) {
	userId, err := userIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if input.Name == "" {
		input.Name = input.FileName
	}

	dataset := Dataset{
		UserId:     userId,
		Name:       input.Name,
		FileName:   input.FileName,
		FileType:   input.FileType,
		FileSize:   input.FileSize,
		FilePath:   input.FilePath,
		UploadedAt: time.Now().UTC(),
	}
	dataset.ApplyState(StatePending{})

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&dataset).Error; err != nil {
			return err
		}
		return tx.Create(NewIngestionOutbox(dataset.ID, correlationId)).Error
	})
	if err != nil {
		return nil, err
	}
	InvalidateDashboardSummary(ctx, userId)
	return &dataset, nil
}

// GetUserDatasets lists the caller's datasets, newest upload first.
func GetUserDatasets(ctx context.Context) ([]*Dataset, error) {
	userId, err := userIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var results []*Dataset
	err = db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("uploaded_at DESC").Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// userDatasetIds returns the ids of every dataset the user owns.
func userDatasetIds(ctx context.Context, db *gorm.DB, userId int) ([]int, error) {
	var ids []int
	err := db.WithContext(ctx).Model(&Dataset{}).
		Where("user_id = ?", userId).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// GetDataset returns the dataset if the caller owns it. A dataset owned by someone
// else yields ErrUnauthorizedDataset rather than not-found.
func GetDataset(ctx context.Context, id int) (*Dataset, error) {
	userId, err := userIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	dataset, err := FindDatasetById(ctx, config.GetDB(), id)
	if err != nil {
		return nil, err
	}
	if dataset.UserId != userId {
		return nil, utils.ErrUnauthorizedDataset
	}
	return dataset, nil
}

// FindDatasetById loads a dataset regardless of owner. Used by the ingestion worker,
// which acts for no user, and by the ownership check above.
func FindDatasetById(ctx context.Context, db *gorm.DB, id int) (*Dataset, error) {
	var dataset Dataset
	ctx = utils.SetSkipOwnerScopeInContext(ctx, true)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dataset %d: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &dataset, nil
}

// DeleteDataset removes the dataset with its records and outbox rows, then the
// backing file. A file that cannot be removed is logged and left behind.
func DeleteDataset(ctx context.Context, id int, files utils.FileStore) (*Dataset, error) {
	dataset, err := GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&FinancialRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&IngestionOutbox{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", dataset.ID).Delete(&Dataset{}).Error
	})
	if err != nil {
		return nil, err
	}

	InvalidateDashboardSummary(ctx, dataset.UserId)

	if files != nil && dataset.FilePath != "" {
		if err := files.Delete(ctx, dataset.FilePath); err != nil {
			config.LogError(config.GetLogger(), "Dataset", "DeleteDataset", "failed to delete backing file", dataset.FilePath, err)
		}
	}
	return dataset, nil
}
