package models

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/rating"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize      = 20
	MaxPageSize          = 200
	DefaultSortBy        = "calculatedAt"
	SortDirectionAsc     = "ASC"
	SortDirectionDesc    = "DESC"
	DefaultSortDirection = SortDirectionDesc
)

// FilterRequest is the body of POST /api/dashboard/filter.
type FilterRequest struct {
	Page          int              `json:"page" validate:"min=0"`
	Size          int              `json:"size" validate:"min=0,max=200"`
	Industries    []string         `json:"industries"`
	Countries     []string         `json:"countries"`
	Ratings       []string         `json:"ratings"`
	Categories    []string         `json:"categories"`
	SearchKeyword string           `json:"searchKeyword"`
	MinRevenue    *decimal.Decimal `json:"minRevenue"`
	MaxRevenue    *decimal.Decimal `json:"maxRevenue"`
	Ranges        []RangeFilter    `json:"ranges" validate:"dive"`
	SortBy        string           `json:"sortBy"`
	SortDirection string           `json:"sortDirection" validate:"omitempty,oneof=ASC DESC"`
}

// RangeFilter bounds a numeric field. Either end may be open.
type RangeFilter struct {
	Field string           `json:"field" validate:"required"`
	Min   *decimal.Decimal `json:"min"`
	Max   *decimal.Decimal `json:"max"`
}

type ClauseKind int

const (
	// field IN values
	ClauseMembership ClauseKind = iota + 1
	// lower(field) contains text
	ClauseSubstring
	// min <= field <= max
	ClauseRange
)

// Clause is one conjunct of a record query. Field is the API field name.
type Clause struct {
	Kind   ClauseKind
	Field  string
	Values []any
	Text   string
	Min    *decimal.Decimal
	Max    *decimal.Decimal
}

type SortSpec struct {
	Field string
	Desc  bool
}

// RecordQuery is a compiled FilterRequest: clauses combine with AND, then the sort
// and the page window apply.
type RecordQuery struct {
	Clauses []Clause
	Sort    SortSpec
	Page    int
	Size    int
}

func (q RecordQuery) Offset() int { return q.Page * q.Size }

type recordField struct {
	column  string
	value   func(*FinancialRecord) any
	numeric func(*FinancialRecord) *decimal.Decimal
}

func textValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func decimalField(column string, get func(*FinancialRecord) *decimal.Decimal) recordField {
	return recordField{
		column:  column,
		numeric: get,
		value: func(r *FinancialRecord) any {
			if d := get(r); d != nil {
				return d.String()
			}
			return nil
		},
	}
}

func ratingValue(r *FinancialRecord) any {
	if r.Rating == nil {
		return nil
	}
	return string(*r.Rating)
}

func categoryValue(r *FinancialRecord) any {
	if r.Category == nil {
		return nil
	}
	return string(*r.Category)
}

// recordFields whitelists the API names usable for membership, sort and range.
var recordFields = map[string]recordField{
	"id":                     {column: "id", value: func(r *FinancialRecord) any { return r.ID }},
	"datasetId":              {column: "dataset_id", value: func(r *FinancialRecord) any { return r.DatasetId }},
	"issuerName":             {column: "issuer_name", value: func(r *FinancialRecord) any { return textValue(r.IssuerName) }},
	"industry":               {column: "industry", value: func(r *FinancialRecord) any { return textValue(r.Industry) }},
	"country":                {column: "country", value: func(r *FinancialRecord) any { return textValue(r.Country) }},
	"rating":                 {column: "rating", value: ratingValue},
	"category":               {column: "category", value: categoryValue},
	"calculatedAt":           {column: "calculated_at", value: func(r *FinancialRecord) any { return r.CalculatedAt }},
	"revenue":                decimalField("revenue", func(r *FinancialRecord) *decimal.Decimal { return r.Revenue }),
	"ebitda":                 decimalField("ebitda", func(r *FinancialRecord) *decimal.Decimal { return r.Ebitda }),
	"totalDebt":              decimalField("total_debt", func(r *FinancialRecord) *decimal.Decimal { return r.TotalDebt }),
	"interestExpense":        decimalField("interest_expense", func(r *FinancialRecord) *decimal.Decimal { return r.InterestExpense }),
	"currentAssets":          decimalField("current_assets", func(r *FinancialRecord) *decimal.Decimal { return r.CurrentAssets }),
	"currentLiabilities":     decimalField("current_liabilities", func(r *FinancialRecord) *decimal.Decimal { return r.CurrentLiabilities }),
	"debtToEbitda":           decimalField("debt_to_ebitda", func(r *FinancialRecord) *decimal.Decimal { return r.DebtToEbitda }),
	"interestCoverageRatio":  decimalField("interest_coverage_ratio", func(r *FinancialRecord) *decimal.Decimal { return r.InterestCoverageRatio }),
	"liquidityCoverageRatio": decimalField("liquidity_coverage_ratio", func(r *FinancialRecord) *decimal.Decimal { return r.LiquidityCoverageRatio }),
}

var (
	filterValidator     *validator.Validate
	filterValidatorOnce sync.Once
)

func getFilterValidator() *validator.Validate {
	filterValidatorOnce.Do(func() {
		filterValidator = validator.New()
	})
	return filterValidator
}

// MaxPageIndex bounds the page index so that page*size stays within a 32-bit offset.
func MaxPageIndex(size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return math.MaxInt32 / size
}

func invalidFilter(format string, args ...any) error {
	return utils.NewValidationError(utils.ErrInvalidFilter, fmt.Sprintf(format, args...))
}

// Normalize validates the request and fills in defaults.
func (req *FilterRequest) Normalize() error {
	req.SortDirection = strings.ToUpper(strings.TrimSpace(req.SortDirection))
	if err := getFilterValidator().Struct(req); err != nil {
		fields := utils.ProcessValidationErrors(err)
		if len(fields) == 0 {
			return invalidFilter("%v", err)
		}
		var parts []string
		for field, tag := range fields {
			parts = append(parts, field+" "+tag)
		}
		return invalidFilter("%s", strings.Join(parts, ", "))
	}
	if req.Size == 0 {
		req.Size = DefaultPageSize
	}
	if strings.TrimSpace(req.SortBy) == "" {
		req.SortBy = DefaultSortBy
	}
	if req.SortDirection == "" {
		req.SortDirection = DefaultSortDirection
	}
	if req.Page > MaxPageIndex(req.Size) {
		return invalidFilter("page must be at most %d for size %d", MaxPageIndex(req.Size), req.Size)
	}
	if _, ok := recordFields[req.SortBy]; !ok {
		return invalidFilter("unknown sort field %q", req.SortBy)
	}
	for _, rf := range req.Ranges {
		f, ok := recordFields[rf.Field]
		if !ok || f.numeric == nil {
			return invalidFilter("range is not supported on field %q", rf.Field)
		}
		if rf.Min != nil && rf.Max != nil && rf.Min.GreaterThan(*rf.Max) {
			return invalidFilter("range on %q has min greater than max", rf.Field)
		}
	}
	if req.MinRevenue != nil && req.MaxRevenue != nil && req.MinRevenue.GreaterThan(*req.MaxRevenue) {
		return invalidFilter("minRevenue is greater than maxRevenue")
	}
	return nil
}

// CompileFilter turns a request into clauses scoped to datasetIds. The dataset
// scope is always the first clause.
func CompileFilter(req FilterRequest, datasetIds []int) (RecordQuery, error) {
	if err := req.Normalize(); err != nil {
		return RecordQuery{}, err
	}

	scope := make([]any, len(datasetIds))
	for i, id := range datasetIds {
		scope[i] = id
	}
	q := RecordQuery{
		Clauses: []Clause{{Kind: ClauseMembership, Field: "datasetId", Values: scope}},
		Sort:    SortSpec{Field: req.SortBy, Desc: req.SortDirection == SortDirectionDesc},
		Page:    req.Page,
		Size:    req.Size,
	}

	if strings.TrimSpace(req.SearchKeyword) != "" {
		q.Clauses = append(q.Clauses, Clause{Kind: ClauseSubstring, Field: "issuerName", Text: strings.ToLower(req.SearchKeyword)})
	}
	if c, ok := membership("industry", req.Industries); ok {
		q.Clauses = append(q.Clauses, c)
	}
	if c, ok := membership("country", req.Countries); ok {
		q.Clauses = append(q.Clauses, c)
	}

	ratings, err := normalizeAll(req.Ratings, func(s string) (string, error) {
		r, err := rating.ParseCreditRating(s)
		return string(r), err
	})
	if err != nil {
		return RecordQuery{}, invalidFilter("%v", err)
	}
	if c, ok := membership("rating", ratings); ok {
		q.Clauses = append(q.Clauses, c)
	}

	categories, err := normalizeAll(req.Categories, func(s string) (string, error) {
		c, err := rating.ParseCategory(s)
		return string(c), err
	})
	if err != nil {
		return RecordQuery{}, invalidFilter("%v", err)
	}
	if c, ok := membership("category", categories); ok {
		q.Clauses = append(q.Clauses, c)
	}

	if req.MinRevenue != nil || req.MaxRevenue != nil {
		q.Clauses = append(q.Clauses, Clause{Kind: ClauseRange, Field: "revenue", Min: req.MinRevenue, Max: req.MaxRevenue})
	}
	for _, rf := range req.Ranges {
		if rf.Min == nil && rf.Max == nil {
			continue
		}
		q.Clauses = append(q.Clauses, Clause{Kind: ClauseRange, Field: rf.Field, Min: rf.Min, Max: rf.Max})
	}
	return q, nil
}

// membership drops blank entries; an empty set yields no clause.
func membership(field string, values []string) (Clause, bool) {
	var vals []any
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return Clause{}, false
	}
	return Clause{Kind: ClauseMembership, Field: field, Values: vals}, true
}

func normalizeAll(values []string, parse func(string) (string, error)) ([]string, error) {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		n, err := parse(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, err)
		}
		out = append(out, n)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Where applies the clauses to db without sort or paging.
func (q RecordQuery) Where(db *gorm.DB) *gorm.DB {
	for _, c := range q.Clauses {
		col := recordFields[c.Field].column
		switch c.Kind {
		case ClauseMembership:
			db = db.Where(clause.IN{Column: clause.Column{Name: col}, Values: c.Values})
		case ClauseSubstring:
			db = db.Where("LOWER("+col+") LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(c.Text)+"%")
		case ClauseRange:
			if c.Min != nil {
				db = db.Where(clause.Gte{Column: clause.Column{Name: col}, Value: *c.Min})
			}
			if c.Max != nil {
				db = db.Where(clause.Lte{Column: clause.Column{Name: col}, Value: *c.Max})
			}
		}
	}
	return db
}

// Scope applies clauses, sort and page window. id breaks ties so pages are stable.
func (q RecordQuery) Scope(db *gorm.DB) *gorm.DB {
	db = q.Where(db)
	col := recordFields[q.Sort.Field].column
	db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Sort.Desc})
	if col != "id" {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.Sort.Desc})
	}
	return db.Offset(q.Offset()).Limit(q.Size)
}

// Matches evaluates the clauses against a record in memory.
func (q RecordQuery) Matches(r *FinancialRecord) bool {
	for _, c := range q.Clauses {
		f := recordFields[c.Field]
		switch c.Kind {
		case ClauseMembership:
			v := f.value(r)
			if v == nil {
				return false
			}
			found := false
			for _, want := range c.Values {
				if v == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case ClauseSubstring:
			s, ok := f.value(r).(string)
			if !ok || !strings.Contains(strings.ToLower(s), c.Text) {
				return false
			}
		case ClauseRange:
			d := f.numeric(r)
			if d == nil {
				return false
			}
			if c.Min != nil && d.LessThan(*c.Min) {
				return false
			}
			if c.Max != nil && d.GreaterThan(*c.Max) {
				return false
			}
		}
	}
	return true
}

type Page[T any] struct {
	Content       []*T  `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func emptyPage[T any](page, size int) *Page[T] {
	return &Page[T]{Content: []*T{}, Page: page, Size: size}
}

// FilterRecords returns one page of the caller's records matching req. A caller
// with no datasets gets an empty page and no record query runs.
func FilterRecords(ctx context.Context, req FilterRequest) (*Page[FinancialRecord], error) {
	userId, err := userIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	ids, err := userDatasetIds(ctx, db, userId)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return emptyPage[FinancialRecord](req.Page, req.Size), nil
	}

	q, err := CompileFilter(req, ids)
	if err != nil {
		return nil, err
	}
	return runRecordQuery(ctx, db, q)
}

// ListRecords is the unfiltered listing: newest calculation first.
func ListRecords(ctx context.Context, page, size int) (*Page[FinancialRecord], error) {
	return FilterRecords(ctx, FilterRequest{Page: page, Size: size})
}

func runRecordQuery(ctx context.Context, db *gorm.DB, q RecordQuery) (*Page[FinancialRecord], error) {
	var total int64
	if err := q.Where(db.WithContext(ctx).Model(&FinancialRecord{})).Count(&total).Error; err != nil {
		return nil, err
	}
	result := emptyPage[FinancialRecord](q.Page, q.Size)
	result.TotalElements = total
	result.TotalPages = int((total + int64(q.Size) - 1) / int64(q.Size))
	if total == 0 || int64(q.Offset()) >= total {
		return result, nil
	}
	if err := q.Scope(db.WithContext(ctx)).Find(&result.Content).Error; err != nil {
		return nil, err
	}
	return result, nil
}
