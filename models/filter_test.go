package models

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/rating"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuers(page *Page[FinancialRecord]) []string {
	var names []string
	for _, r := range page.Content {
		names = append(names, *r.IssuerName)
	}
	return names
}

func TestFilterRecords_RatingAndIndustryCombineWithAnd(t *testing.T) {
	db := newTestDB(t)
	ds := createTestDataset(t, 1, "fixture")
	now := time.Now()
	both := insertRecord(t, db, ds.ID, "Both Corp", "Energy", "US", rating.CreditRatingAAA, "100", now)
	onlyRating := insertRecord(t, db, ds.ID, "Rating Only", "Tech", "US", rating.CreditRatingAAA, "100", now)
	onlyIndustry := insertRecord(t, db, ds.ID, "Industry Only", "Energy", "US", rating.CreditRatingBB, "100", now)
	neither := insertRecord(t, db, ds.ID, "Neither", "Tech", "US", rating.CreditRatingB, "100", now)

	req := FilterRequest{Ratings: []string{"AAA"}, Industries: []string{"Energy"}}
	page, err := FilterRecords(userCtx(1), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Both Corp"}, issuers(page))
	assert.Equal(t, int64(1), page.TotalElements)
	assert.Equal(t, 1, page.TotalPages)

	// the in-memory interpreter agrees with SQL
	q, err := CompileFilter(req, []int{ds.ID})
	require.NoError(t, err)
	assert.True(t, q.Matches(both))
	assert.False(t, q.Matches(onlyRating))
	assert.False(t, q.Matches(onlyIndustry))
	assert.False(t, q.Matches(neither))
}

func TestFilterRecords_NoDatasetsIsEmptyPage(t *testing.T) {
	newTestDB(t)
	page, err := FilterRecords(userCtx(9), FilterRequest{Ratings: []string{"AAA"}})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.NotNil(t, page.Content)
	assert.Zero(t, page.TotalElements)
	assert.Equal(t, DefaultPageSize, page.Size)
}

func TestFilterRecords_ScopedToOwnDatasets(t *testing.T) {
	db := newTestDB(t)
	mine := createTestDataset(t, 1, "mine")
	theirs := createTestDataset(t, 2, "theirs")
	now := time.Now()
	insertRecord(t, db, mine.ID, "Mine", "Energy", "US", rating.CreditRatingA, "1", now)
	insertRecord(t, db, theirs.ID, "Theirs", "Energy", "US", rating.CreditRatingA, "1", now)

	page, err := ListRecords(userCtx(1), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mine"}, issuers(page))
}

func TestFilterRecords_KeywordIsCaseInsensitiveSubstring(t *testing.T) {
	db := newTestDB(t)
	ds := createTestDataset(t, 1, "kw")
	now := time.Now()
	insertRecord(t, db, ds.ID, "Northwind Energy", "Energy", "US", rating.CreditRatingA, "1", now)
	insertRecord(t, db, ds.ID, "Contoso", "Energy", "US", rating.CreditRatingA, "1", now)
	insertRecord(t, db, ds.ID, "100% Solar", "Energy", "US", rating.CreditRatingA, "1", now)

	page, err := FilterRecords(userCtx(1), FilterRequest{SearchKeyword: "WIND E"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Northwind Energy"}, issuers(page))

	// surrounding spaces are part of the keyword
	page, err = FilterRecords(userCtx(1), FilterRequest{SearchKeyword: " wind"})
	require.NoError(t, err)
	assert.Empty(t, page.Content)

	// wildcard characters are matched literally
	page, err = FilterRecords(userCtx(1), FilterRequest{SearchKeyword: "0%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"100% Solar"}, issuers(page))

	page, err = FilterRecords(userCtx(1), FilterRequest{SearchKeyword: "   "})
	require.NoError(t, err)
	assert.Len(t, page.Content, 3)
}

func TestFilterRecords_SortAndPaginate(t *testing.T) {
	db := newTestDB(t)
	ds := createTestDataset(t, 1, "pages")
	base := time.Now().UTC()
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		insertRecord(t, db, ds.ID, name, "Energy", "US", rating.CreditRatingA, "1", base.Add(time.Duration(i)*time.Minute))
	}

	// default: calculatedAt DESC
	page, err := FilterRecords(userCtx(1), FilterRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "D"}, issuers(page))
	assert.Equal(t, int64(5), page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)

	page, err = FilterRecords(userCtx(1), FilterRequest{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, issuers(page))

	page, err = FilterRecords(userCtx(1), FilterRequest{Size: 10, SortBy: "issuerName", SortDirection: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, issuers(page))

	page, err = FilterRecords(userCtx(1), FilterRequest{Size: 10, SortBy: "issuerName", SortDirection: "dEsC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "D", "C", "B", "A"}, issuers(page))

	page, err = FilterRecords(userCtx(1), FilterRequest{Page: 7, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.Equal(t, int64(5), page.TotalElements)

	page, err = FilterRecords(userCtx(1), FilterRequest{Page: MaxPageIndex(2), Size: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
}

func TestFilterRecords_HugePageIsRejected(t *testing.T) {
	db := newTestDB(t)
	ds := createTestDataset(t, 1, "overflow")
	for _, name := range []string{"A", "B", "C"} {
		insertRecord(t, db, ds.ID, name, "Energy", "US", rating.CreditRatingA, "1", time.Now())
	}

	page, err := FilterRecords(userCtx(1), FilterRequest{Page: math.MaxInt64 / 10, Size: 20})
	assert.Nil(t, page)
	assert.ErrorIs(t, err, utils.ErrInvalidFilter)

	_, err = FilterRecords(userCtx(1), FilterRequest{Page: MaxPageIndex(DefaultPageSize) + 1})
	assert.ErrorIs(t, err, utils.ErrInvalidFilter)
}

func TestFilterRecords_RangesAndCategories(t *testing.T) {
	db := newTestDB(t)
	ds := createTestDataset(t, 1, "ranges")
	now := time.Now()
	insertRecord(t, db, ds.ID, "Small", "Energy", "US", rating.CreditRatingAAA, "50", now)
	insertRecord(t, db, ds.ID, "Mid", "Energy", "US", rating.CreditRatingBB, "500", now)
	insertRecord(t, db, ds.ID, "Large", "Energy", "US", rating.CreditRatingAAA, "5000", now)

	page, err := FilterRecords(userCtx(1), FilterRequest{MinRevenue: decPtr("100"), MaxRevenue: decPtr("5000")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Mid", "Large"}, issuers(page))

	page, err = FilterRecords(userCtx(1), FilterRequest{
		Categories: []string{"investment_grade"},
		Ranges:     []RangeFilter{{Field: "revenue", Max: decPtr("1000")}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Small"}, issuers(page))
}

func TestCompileFilter_Validation(t *testing.T) {
	cases := map[string]FilterRequest{
		"unknown sort":       {SortBy: "password"},
		"bad direction":      {SortDirection: "SIDEWAYS"},
		"negative page":      {Page: -1},
		"page past offset":   {Page: math.MaxInt32, Size: 2},
		"page too large":     {Size: MaxPageSize + 1},
		"unknown rating":     {Ratings: []string{"ZZZ"}},
		"unknown category":   {Categories: []string{"JUNK"}},
		"range on text":      {Ranges: []RangeFilter{{Field: "industry", Min: decPtr("1")}}},
		"inverted range":     {Ranges: []RangeFilter{{Field: "ebitda", Min: decPtr("5"), Max: decPtr("1")}}},
		"inverted revenue":   {MinRevenue: decPtr("5"), MaxRevenue: decPtr("1")},
		"range without name": {Ranges: []RangeFilter{{Min: decPtr("1")}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CompileFilter(req, []int{1})
			assert.ErrorIs(t, err, utils.ErrInvalidFilter)
			assert.True(t, utils.IsValidationError(err))
		})
	}
}

func TestCompileFilter_OmitsEmptyPredicates(t *testing.T) {
	q, err := CompileFilter(FilterRequest{Industries: []string{" ", ""}, SearchKeyword: " "}, []int{4, 5})
	require.NoError(t, err)
	require.Len(t, q.Clauses, 1)
	assert.Equal(t, ClauseMembership, q.Clauses[0].Kind)
	assert.Equal(t, "datasetId", q.Clauses[0].Field)
	assert.Equal(t, []any{4, 5}, q.Clauses[0].Values)
	assert.Equal(t, SortSpec{Field: DefaultSortBy, Desc: true}, q.Sort)
	assert.Equal(t, DefaultPageSize, q.Size)

	q, err = CompileFilter(FilterRequest{Ratings: []string{"bbb+"}}, []int{1})
	require.NoError(t, err)
	require.Len(t, q.Clauses, 2)
	assert.Equal(t, []any{"BBB_PLUS"}, q.Clauses[1].Values)
}

func TestRecordQueryMatches_AbsentValuesNeverMatch(t *testing.T) {
	q, err := CompileFilter(FilterRequest{
		Countries: []string{"US"},
		Ranges:    []RangeFilter{{Field: "debtToEbitda", Max: decPtr("3")}},
	}, []int{1})
	require.NoError(t, err)

	rec := &FinancialRecord{DatasetId: 1, Country: strPtr("US"), DebtToEbitda: decPtr("2.5")}
	assert.True(t, q.Matches(rec))

	rec.DebtToEbitda = nil
	assert.False(t, q.Matches(rec))

	rec.DebtToEbitda = decPtr("1")
	rec.Country = nil
	assert.False(t, q.Matches(rec))

	rec.Country = strPtr("US")
	rec.DatasetId = 2
	assert.False(t, q.Matches(rec))
}

func TestFilterRecords_RequiresUser(t *testing.T) {
	newTestDB(t)
	_, err := FilterRecords(context.Background(), FilterRequest{})
	assert.Error(t, err)
}
