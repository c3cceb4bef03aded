package models

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/rating"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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
	MigrateTable()
	return conn
}

func userCtx(userId int) context.Context {
	return utils.SetUserIdInContext(context.Background(), userId)
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func createTestDataset(t *testing.T, userId int, name string) *Dataset {
	t.Helper()
	ds, err := CreateDataset(userCtx(userId), &NewDataset{
		Name:     name,
		FileName: name + ".csv",
		FileType: FileTypeCsv,
		FileSize: 128,
		FilePath: "/tmp/" + name + ".csv",
	})
	require.NoError(t, err)
	return ds
}

// insertRecord stores a rated record directly, bypassing ingestion.
func insertRecord(t *testing.T, db *gorm.DB, datasetId int, issuer, industry, country string, grade rating.CreditRating, revenue string, at time.Time) *FinancialRecord {
	t.Helper()
	category := rating.CategoryInvestmentGrade
	for _, b := range []struct {
		r rating.CreditRating
		c rating.Category
	}{
		{rating.CreditRatingBBPlus, rating.CategorySpeculative},
		{rating.CreditRatingBB, rating.CategorySpeculative},
		{rating.CreditRatingBPlus, rating.CategorySpeculative},
		{rating.CreditRatingB, rating.CategorySpeculative},
		{rating.CreditRatingCCC, rating.CategoryDistressed},
		{rating.CreditRatingD, rating.CategoryDistressed},
	} {
		if b.r == grade {
			category = b.c
		}
	}
	rec := &FinancialRecord{
		DatasetId:    datasetId,
		IssuerName:   strPtr(issuer),
		Industry:     strPtr(industry),
		Country:      strPtr(country),
		Revenue:      decPtr(revenue),
		Rating:       &grade,
		Category:     &category,
		CalculatedAt: at.UTC(),
	}
	require.NoError(t, CreateFinancialRecords(context.Background(), db, []*FinancialRecord{rec}))
	return rec
}
