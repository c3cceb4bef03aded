package models

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDataset_RoundTripMetadata(t *testing.T) {
	db := newTestDB(t)

	created, err := CreateDataset(userCtx(1), &NewDataset{
		Name:     "Q3 issuers",
		FileName: "q3.xlsx",
		FileType: FileTypeXlsx,
		FileSize: 4096,
		FilePath: "uploads/1/abc_q3.xlsx",
	})
	require.NoError(t, err)
	assert.Equal(t, DatasetStatusPending, created.Status)
	assert.Nil(t, created.RecordCount)
	assert.Nil(t, created.ProcessedAt)

	got, err := GetDataset(userCtx(1), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q3 issuers", got.Name)
	assert.Equal(t, FileTypeXlsx, got.FileType)
	assert.Equal(t, int64(4096), got.FileSize)
	assert.Equal(t, "q3.xlsx", got.FileName)
	assert.Equal(t, 1, got.UserId)

	var outbox []IngestionOutbox
	require.NoError(t, db.Where("dataset_id = ?", created.ID).Find(&outbox).Error)
	require.Len(t, outbox, 1)
	assert.Equal(t, OutboxPublishStatusPending, outbox[0].PublishStatus)
}

func TestCreateDataset_RequiresUser(t *testing.T) {
	newTestDB(t)
	_, err := CreateDataset(context.Background(), &NewDataset{FileName: "a.csv", FileType: FileTypeCsv})
	assert.Error(t, err)
}

func TestGetDataset_NotFoundAndOtherOwner(t *testing.T) {
	newTestDB(t)
	ds := createTestDataset(t, 1, "mine")

	_, err := GetDataset(userCtx(1), ds.ID+100)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	_, err = GetDataset(userCtx(2), ds.ID)
	assert.ErrorIs(t, err, utils.ErrUnauthorizedDataset)

	// the failed lookup leaves the dataset untouched
	got, err := GetDataset(userCtx(1), ds.ID)
	require.NoError(t, err)
	assert.Equal(t, DatasetStatusPending, got.Status)
}

func TestGetUserDatasets_NewestFirstAndScoped(t *testing.T) {
	db := newTestDB(t)
	a := createTestDataset(t, 1, "a")
	b := createTestDataset(t, 1, "b")
	createTestDataset(t, 2, "other")

	// make a newer than b
	require.NoError(t, db.Model(&Dataset{}).Where("id = ?", a.ID).Update("uploaded_at", time.Now().UTC().Add(time.Hour)).Error)

	list, err := GetUserDatasets(userCtx(1))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestParseFileType(t *testing.T) {
	for in, want := range map[string]FileType{"csv": FileTypeCsv, ".XLSX": FileTypeXlsx, "Xls": FileTypeXls} {
		got, err := ParseFileType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFileType("pdf")
	assert.ErrorIs(t, err, utils.ErrUnsupportedFileType)
}

func TestDatasetLifecycle_ClaimCompleteFail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ds := createTestDataset(t, 1, "life")
	now := time.Now().UTC()

	claim := StatePending{}.Start(now, "worker-a")
	ok, err := ClaimDataset(ctx, db, ds.ID, claim, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// a fresh claim cannot be taken again
	ok, err = ClaimDataset(ctx, db, ds.ID, StatePending{}.Start(now, "worker-b"), now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := FindDatasetById(ctx, db, ds.ID)
	require.NoError(t, err)
	state, err := got.State()
	require.NoError(t, err)
	processing, isProcessing := state.(StateProcessing)
	require.True(t, isProcessing)
	assert.Equal(t, "worker-a", processing.ClaimedBy)

	// only the claim holder may complete
	err = CompleteDataset(ctx, db, ds.ID, StateProcessing{ClaimedBy: "worker-b"}, 3, now)
	assert.ErrorIs(t, err, ErrDatasetClaimLost)

	require.NoError(t, CompleteDataset(ctx, db, ds.ID, claim, 3, now))
	got, err = FindDatasetById(ctx, db, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, DatasetStatusCompleted, got.Status)
	require.NotNil(t, got.RecordCount)
	assert.Equal(t, 3, *got.RecordCount)
	assert.NotNil(t, got.ProcessedAt)

	// terminal datasets are never claimed again
	ok, err = ClaimDataset(ctx, db, ds.ID, StatePending{}.Start(now, "worker-c"), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, FailDataset(ctx, db, ds.ID, claim), ErrDatasetClaimLost)
}

func TestDatasetLifecycle_StaleClaimIsReclaimed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ds := createTestDataset(t, 1, "stale")
	start := time.Now().UTC().Add(-time.Hour)

	ok, err := ClaimDataset(ctx, db, ds.ID, StatePending{}.Start(start, "crashed"), start)
	require.NoError(t, err)
	require.True(t, ok)

	now := time.Now().UTC()
	reclaim := StateProcessing{}.Reclaim(now, "worker-b")
	ok, err = ClaimDataset(ctx, db, ds.ID, reclaim, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, FailDataset(ctx, db, ds.ID, reclaim))
	got, err := FindDatasetById(ctx, db, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, DatasetStatusFailed, got.Status)
	assert.Nil(t, got.RecordCount)
	assert.Nil(t, got.ProcessedAt)
}

func TestDatasetApplyState_KeepsCompletedInvariant(t *testing.T) {
	var d Dataset
	at := time.Now().UTC()
	d.ApplyState(StatePending{}.Start(at, "w").Complete(7, at))
	require.NotNil(t, d.RecordCount)
	assert.Equal(t, 7, *d.RecordCount)
	assert.Equal(t, at, *d.ProcessedAt)

	d.ApplyState(StateFailed{})
	assert.Equal(t, DatasetStatusFailed, d.Status)
	assert.Nil(t, d.RecordCount)
	assert.Nil(t, d.ProcessedAt)

	d.Status = DatasetStatusCompleted
	_, err := d.State()
	assert.Error(t, err)
}

func TestDeleteDataset_CascadesRecordsAndFile(t *testing.T) {
	db := newTestDB(t)
	store := &utils.LocalFileStore{Root: t.TempDir()}
	path, _, err := store.Save(context.Background(), "1/x.csv", strings.NewReader("h\n"))
	require.NoError(t, err)

	ds, err := CreateDataset(userCtx(1), &NewDataset{Name: "x", FileName: "x.csv", FileType: FileTypeCsv, FileSize: 2, FilePath: path})
	require.NoError(t, err)
	keep := createTestDataset(t, 1, "keep")
	now := time.Now()
	insertRecord(t, db, ds.ID, "Acme", "Energy", "US", "AAA", "10", now)
	insertRecord(t, db, ds.ID, "Beta", "Energy", "US", "BB", "10", now)
	insertRecord(t, db, keep.ID, "Gamma", "Tech", "DE", "A", "10", now)

	_, err = DeleteDataset(userCtx(2), ds.ID, store)
	assert.ErrorIs(t, err, utils.ErrUnauthorizedDataset)

	_, err = DeleteDataset(userCtx(1), ds.ID, store)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&FinancialRecord{}).Where("dataset_id = ?", ds.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&FinancialRecord{}).Where("dataset_id = ?", keep.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Model(&IngestionOutbox{}).Where("dataset_id = ?", ds.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, err = GetDataset(userCtx(1), ds.ID)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
	_, err = store.Open(context.Background(), path)
	assert.ErrorIs(t, err, utils.ErrBackingFileMissing)
	assert.Equal(t, filepath.Join(store.Root, "1", "x.csv"), path)
}
