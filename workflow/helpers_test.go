package workflow

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), config.GormConfig())
	require.NoError(t, err)
	require.NoError(t, config.InstallPlugins(conn))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	prev := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})
	models.MigrateTable()
	return conn
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestProcessor(t *testing.T, db *gorm.DB) (*DatasetProcessor, *utils.LocalFileStore) {
	t.Helper()
	files := &utils.LocalFileStore{Root: t.TempDir()}
	return &DatasetProcessor{
		DB:              db,
		Logger:          testLogger(),
		Files:           files,
		WorkerID:        "worker-test",
		BatchSize:       500,
		StaleClaimAfter: 15 * time.Minute,
		Now:             func() time.Time { return testNow },
	}, files
}

// storeDataset saves content under the file store and registers a PENDING dataset for it.
func storeDataset(t *testing.T, files utils.FileStore, userId int, fileName string, fileType models.FileType, content io.Reader) *models.Dataset {
	t.Helper()
	ctx := utils.SetUserIdInContext(context.Background(), userId)
	path, size, err := files.Save(ctx, utils.StoredFileName(fileName), content)
	require.NoError(t, err)
	ds, err := models.CreateDataset(ctx, &models.NewDataset{
		Name:     fileName,
		FileName: fileName,
		FileType: fileType,
		FileSize: size,
		FilePath: path,
	})
	require.NoError(t, err)
	return ds
}

func reloadDataset(t *testing.T, db *gorm.DB, id int) *models.Dataset {
	t.Helper()
	ctx := utils.SetSkipOwnerScopeInContext(context.Background(), true)
	ds, err := models.FindDatasetById(ctx, db, id)
	require.NoError(t, err)
	return ds
}

func recordsOf(t *testing.T, db *gorm.DB, datasetId int) []models.FinancialRecord {
	t.Helper()
	var recs []models.FinancialRecord
	require.NoError(t, db.Where("dataset_id = ?", datasetId).Order("id ASC").Find(&recs).Error)
	return recs
}

const csvHeader = "issuerName,industry,country,revenue,ebitda,totalDebt,interestExpense,currentAssets,currentLiabilities\n"

func generatedCSV(rows int) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "Issuer %d,Energy,US,1000,100,150,10,300,150\n", i)
	}
	return b.String()
}
