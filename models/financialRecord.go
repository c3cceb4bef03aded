package models

import (
	"context"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/rating"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FinancialRecord is one rated issuer row. Records are written once by the ingestion
// worker and never updated.
type FinancialRecord struct {
	ID                     int                  `gorm:"primary_key" json:"id"`
	DatasetId              int                  `gorm:"index;not null" json:"datasetId"`
	IssuerName             *string              `gorm:"size:255" json:"issuerName"`
	Industry               *string              `gorm:"size:100;index" json:"industry"`
	Country                *string              `gorm:"size:100;index" json:"country"`
	Revenue                *decimal.Decimal     `gorm:"type:decimal(24,4)" json:"revenue"`
	Ebitda                 *decimal.Decimal     `gorm:"type:decimal(24,4)" json:"ebitda"`
	TotalDebt              *decimal.Decimal     `gorm:"type:decimal(24,4)" json:"totalDebt"`
	InterestExpense        *decimal.Decimal     `gorm:"type:decimal(24,4)" json:"interestExpense"`
	CurrentAssets          *decimal.Decimal     `gorm:"type:decimal(24,4)" json:"currentAssets"`
	CurrentLiabilities     *decimal.Decimal     `gorm:"type:decimal(24,4)" json:"currentLiabilities"`
	DebtToEbitda           *decimal.Decimal     `gorm:"type:decimal(20,2)" json:"debtToEbitda"`
	InterestCoverageRatio  *decimal.Decimal     `gorm:"type:decimal(20,2)" json:"interestCoverageRatio"`
	LiquidityCoverageRatio *decimal.Decimal     `gorm:"type:decimal(20,2)" json:"liquidityCoverageRatio"`
	Rating                 *rating.CreditRating `gorm:"size:20;index" json:"rating"`
	Category               *rating.Category     `gorm:"size:20" json:"category"`
	CalculatedAt           time.Time            `gorm:"not null;index" json:"calculatedAt"`
}

// ApplyRating copies a rating result onto the record. Rating and category are
// always set together.
func (r *FinancialRecord) ApplyRating(res rating.Result, at time.Time) {
	r.DebtToEbitda = res.DebtToEbitda
	r.InterestCoverageRatio = res.InterestCoverageRatio
	r.LiquidityCoverageRatio = res.LiquidityCoverageRatio
	grade, category := res.Rating, res.Category
	r.Rating = &grade
	r.Category = &category
	r.CalculatedAt = at
}

func (r *FinancialRecord) RatingInputs() rating.Inputs {
	return rating.Inputs{
		Ebitda:             r.Ebitda,
		TotalDebt:          r.TotalDebt,
		InterestExpense:    r.InterestExpense,
		CurrentAssets:      r.CurrentAssets,
		CurrentLiabilities: r.CurrentLiabilities,
	}
}

// CreateFinancialRecords bulk inserts one batch on tx.
func CreateFinancialRecords(ctx context.Context, tx *gorm.DB, records []*FinancialRecord) error {
	if len(records) == 0 {
		return nil
	}
	return tx.WithContext(ctx).CreateInBatches(records, len(records)).Error
}
