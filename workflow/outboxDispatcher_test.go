package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
)

type fakePublisher struct {
	fail  error
	calls []int
}

func (f *fakePublisher) publish(_ context.Context, datasetId int, correlationId string) (string, error) {
	f.calls = append(f.calls, datasetId)
	if f.fail != nil {
		return "", f.fail
	}
	return fmt.Sprintf("msg-%d-%s", datasetId, correlationId), nil
}

func newTestDispatcher(db *gorm.DB, pub *fakePublisher) *OutboxDispatcher {
	d := NewOutboxDispatcher(db, testLogger())
	d.Publish = pub.publish
	d.Now = func() time.Time { return testNow }
	return d
}

func outboxRows(t *testing.T, db *gorm.DB) []models.IngestionOutbox {
	t.Helper()
	var rows []models.IngestionOutbox
	require.NoError(t, db.Order("id ASC").Find(&rows).Error)
	return rows
}

func TestOutboxDispatcher_PublishesPendingRows(t *testing.T) {
	db := newTestDB(t)
	_, files := newTestProcessor(t, db)
	a := storeDataset(t, files, 1, "a.csv", models.FileTypeCsv, strings.NewReader(csvHeader))
	b := storeDataset(t, files, 2, "b.csv", models.FileTypeCsv, strings.NewReader(csvHeader))

	pub := &fakePublisher{}
	d := newTestDispatcher(db, pub)
	assert.Equal(t, 2, d.DispatchOnce(context.Background()))
	assert.Equal(t, []int{a.ID, b.ID}, pub.calls)

	for _, row := range outboxRows(t, db) {
		assert.Equal(t, models.OutboxPublishStatusSent, row.PublishStatus)
		assert.Equal(t, 1, row.PublishAttempts)
		require.NotNil(t, row.PubSubMessageId)
		assert.Contains(t, *row.PubSubMessageId, fmt.Sprintf("msg-%d", row.DatasetId))
		assert.Nil(t, row.LockedBy)
	}

	// sent rows are not published twice
	assert.Equal(t, 0, d.DispatchOnce(context.Background()))
	assert.Len(t, pub.calls, 2)
}

func TestOutboxDispatcher_FailureBacksOff(t *testing.T) {
	db := newTestDB(t)
	_, files := newTestProcessor(t, db)
	storeDataset(t, files, 1, "a.csv", models.FileTypeCsv, strings.NewReader(csvHeader))

	pub := &fakePublisher{fail: errors.New("topic unavailable")}
	d := newTestDispatcher(db, pub)
	assert.Equal(t, 0, d.DispatchOnce(context.Background()))

	rows := outboxRows(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, models.OutboxPublishStatusFailed, rows[0].PublishStatus)
	require.NotNil(t, rows[0].LastPublishError)
	assert.Equal(t, "topic unavailable", *rows[0].LastPublishError)
	require.NotNil(t, rows[0].NextAttemptAt)
	assert.True(t, rows[0].NextAttemptAt.Equal(testNow.Add(d.InitialBackoff)))

	// not due yet
	assert.Equal(t, 0, d.DispatchOnce(context.Background()))
	assert.Len(t, pub.calls, 1)

	// due: retried and sent
	pub.fail = nil
	d.Now = func() time.Time { return testNow.Add(time.Minute) }
	assert.Equal(t, 1, d.DispatchOnce(context.Background()))
	rows = outboxRows(t, db)
	assert.Equal(t, models.OutboxPublishStatusSent, rows[0].PublishStatus)
	assert.Equal(t, 2, rows[0].PublishAttempts)
}

func TestOutboxDispatcher_GoesDeadAfterMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	_, files := newTestProcessor(t, db)
	ds := storeDataset(t, files, 1, "a.csv", models.FileTypeCsv, strings.NewReader(csvHeader))

	pub := &fakePublisher{fail: errors.New("nope")}
	d := newTestDispatcher(db, pub)
	d.MaxAttempts = 2
	d.InitialBackoff = time.Second

	now := testNow
	d.Now = func() time.Time { return now }
	d.DispatchOnce(context.Background())
	now = now.Add(time.Hour)
	d.DispatchOnce(context.Background())

	rows := outboxRows(t, db)
	assert.Equal(t, models.OutboxPublishStatusDead, rows[0].PublishStatus)
	assert.Len(t, pub.calls, 2)

	now = now.Add(time.Hour)
	d.DispatchOnce(context.Background())
	assert.Len(t, pub.calls, 2)

	revived, err := models.ReviveDeadOutbox(context.Background(), db, []int{ds.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), revived)

	pub.fail = nil
	assert.Equal(t, 1, d.DispatchOnce(context.Background()))
	assert.Equal(t, models.OutboxPublishStatusSent, outboxRows(t, db)[0].PublishStatus)
}

func TestOutboxDispatcher_ReclaimsStaleLock(t *testing.T) {
	db := newTestDB(t)
	_, files := newTestProcessor(t, db)
	storeDataset(t, files, 1, "a.csv", models.FileTypeCsv, strings.NewReader(csvHeader))

	lockedAt := testNow.Add(-time.Hour)
	owner := "dead-dispatcher"
	require.NoError(t, db.Model(&models.IngestionOutbox{}).Where("1 = 1").Updates(map[string]interface{}{
		"publish_status":   models.OutboxPublishStatusProcessing,
		"locked_at":        &lockedAt,
		"locked_by":        &owner,
		"publish_attempts": 1,
	}).Error)

	pub := &fakePublisher{}
	d := newTestDispatcher(db, pub)
	assert.Equal(t, 1, d.DispatchOnce(context.Background()))
	assert.Equal(t, 2, outboxRows(t, db)[0].PublishAttempts)
}

func TestRetryBackoff(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second}
	assert.Equal(t, 5*time.Second, d.retryBackoff(1))
	assert.Equal(t, 20*time.Second, d.retryBackoff(3))
	assert.Equal(t, 10*time.Minute, d.retryBackoff(30))
}

func TestOutboxDispatcher_RunStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pub := &fakePublisher{}
	d := newTestDispatcher(db, pub)
	d.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
	assert.Empty(t, pub.calls)
}
