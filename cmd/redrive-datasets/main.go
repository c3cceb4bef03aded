// redrive-datasets re-enqueues ingestion jobs that never reached a worker.
//
// It revives DEAD outbox rows (publishing gave up) and adds a fresh outbox row for
// every dataset still PENDING after -older-than with nothing left to send. The
// running service's outbox dispatcher publishes them.
//
// Usage:
//
//	go run ./cmd/redrive-datasets -older-than 30m
//	go run ./cmd/redrive-datasets -dataset-ids 12,15 -dry-run
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	olderThan := flag.Duration("older-than", 30*time.Minute, "Re-enqueue PENDING datasets uploaded longer ago than this")
	datasetIDs := flag.String("dataset-ids", "", "Optional: comma-separated dataset ids; limits DEAD outbox revival to these datasets")
	skipStuck := flag.Bool("skip-stuck", false, "Only revive DEAD outbox rows")
	dryRun := flag.Bool("dry-run", false, "Report what would be re-enqueued without writing")
	flag.Parse()

	ids, err := parseIds(*datasetIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -dataset-ids: %v\n", err)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	// acts for no user
	ctx := utils.SetSkipOwnerScopeInContext(context.Background(), true)
	correlationId := "redrive-" + uuid.NewString()
	logger := config.GetLogger().WithFields(logrus.Fields{
		"field":          "redrive-datasets",
		"correlation_id": correlationId,
	})

	if *dryRun {
		report(ctx, db, ids, time.Now().UTC().Add(-*olderThan))
		return
	}

	revived, err := models.ReviveDeadOutbox(ctx, db, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to revive dead outbox rows: %v\n", err)
		os.Exit(1)
	}
	logger.WithField("revived", revived).Info("dead outbox rows revived")

	if *skipStuck {
		return
	}
	enqueued, err := models.EnqueueStuckDatasets(ctx, db, time.Now().UTC().Add(-*olderThan), correlationId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to enqueue stuck datasets: %v\n", err)
		os.Exit(1)
	}
	logger.WithField("datasets", enqueued).Info("stuck datasets re-enqueued")
	fmt.Printf("revived=%d enqueued=%d\n", revived, len(enqueued))
}

func report(ctx context.Context, db *gorm.DB, ids []int, uploadedBefore time.Time) {
	var dead int64
	q := db.WithContext(ctx).Model(&models.IngestionOutbox{}).Where("publish_status = ?", models.OutboxPublishStatusDead)
	if len(ids) > 0 {
		q = q.Where("dataset_id IN ?", ids)
	}
	if err := q.Count(&dead).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to count dead outbox rows: %v\n", err)
		os.Exit(1)
	}
	var pending int64
	if err := db.WithContext(ctx).Model(&models.Dataset{}).
		Where("status = ? AND uploaded_at < ?", models.DatasetStatusPending, uploadedBefore).
		Count(&pending).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to count pending datasets: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("dry run: dead_outbox=%d pending_datasets=%d (uploaded before %s)\n", dead, pending, uploadedBefore.Format(time.RFC3339))
}

func parseIds(csv string) ([]int, error) {
	var ids []int
	for _, p := range utils.SplitAndTrim(csv) {
		id, err := strconv.Atoi(p)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not a dataset id", p)
		}
		ids = append(ids, id)
	}
	return utils.UniqueSlice(ids), nil
}
