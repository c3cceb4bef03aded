package models

import (
	"context"
	"fmt"

	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DashboardSummary struct {
	TotalRecords         int64            `json:"totalRecords"`
	DatasetCount         int64            `json:"datasetCount"`
	RatingDistribution   map[string]int64 `json:"ratingDistribution"`
	CategoryDistribution map[string]int64 `json:"categoryDistribution"`
}

type groupCount struct {
	Value *string
	Count int64
}

func dashboardSummaryCacheKey(userId int) string {
	return fmt.Sprintf("DashboardSummary:User:%d", userId)
}

// GetDashboardSummary counts the caller's records and datasets and histograms the
// records by rating and by category.
func GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	userId, err := userIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger()
	key := dashboardSummaryCacheKey(userId)

	var cached DashboardSummary
	if ok, err := config.GetRedisObject(ctx, key, &cached); err != nil {
		logger.WithFields(logrus.Fields{"field": "GetDashboardSummary", "user_id": userId}).Warn("summary cache read failed: " + err.Error())
	} else if ok {
		return &cached, nil
	}

	summary, err := BuildDashboardSummary(ctx, config.GetDB(), userId)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(ctx, key, summary, config.CacheLifespan()); err != nil {
		logger.WithFields(logrus.Fields{"field": "GetDashboardSummary", "user_id": userId}).Warn("summary cache write failed: " + err.Error())
	}
	return summary, nil
}

// BuildDashboardSummary computes the summary from the store. A user without datasets
// gets a zero summary and no record query runs.
func BuildDashboardSummary(ctx context.Context, db *gorm.DB, userId int) (*DashboardSummary, error) {
	summary := &DashboardSummary{
		RatingDistribution:   map[string]int64{},
		CategoryDistribution: map[string]int64{},
	}
	ids, err := userDatasetIds(ctx, db, userId)
	if err != nil {
		return nil, err
	}
	summary.DatasetCount = int64(len(ids))
	if len(ids) == 0 {
		return summary, nil
	}

	if err := db.WithContext(ctx).Model(&FinancialRecord{}).
		Where("dataset_id IN ?", ids).
		Count(&summary.TotalRecords).Error; err != nil {
		return nil, err
	}
	if summary.TotalRecords == 0 {
		return summary, nil
	}

	if err := countBy(ctx, db, ids, "rating", summary.RatingDistribution); err != nil {
		return nil, err
	}
	if err := countBy(ctx, db, ids, "category", summary.CategoryDistribution); err != nil {
		return nil, err
	}
	return summary, nil
}

func countBy(ctx context.Context, db *gorm.DB, datasetIds []int, column string, into map[string]int64) error {
	var rows []groupCount
	err := db.WithContext(ctx).Model(&FinancialRecord{}).
		Select(column+" AS value, COUNT(*) AS count").
		Where("dataset_id IN ?", datasetIds).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Value == nil {
			continue
		}
		into[*row.Value] = row.Count
	}
	return nil
}

// InvalidateDashboardSummary drops the cached summary. Failures are logged only;
// the entry expires on its own.
func InvalidateDashboardSummary(ctx context.Context, userId int) {
	if err := config.RemoveRedisKey(ctx, dashboardSummaryCacheKey(userId)); err != nil {
		config.LogError(config.GetLogger(), "Dashboard", "InvalidateDashboardSummary", "failed to remove cached summary", userId, err)
	}
}
