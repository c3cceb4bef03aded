// Package rating turns an issuer's monetary inputs into credit ratios, a score
// and a letter grade. Everything here is a pure function of its inputs.
package rating

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// RatioScale is the number of fractional digits kept on every ratio (half-up).
const RatioScale = 2

type CreditRating string

const (
	CreditRatingAAA      CreditRating = "AAA"
	CreditRatingAAPlus   CreditRating = "AA_PLUS"
	CreditRatingAA       CreditRating = "AA"
	CreditRatingAAMinus  CreditRating = "AA_MINUS"
	CreditRatingAPlus    CreditRating = "A_PLUS"
	CreditRatingA        CreditRating = "A"
	CreditRatingAMinus   CreditRating = "A_MINUS"
	CreditRatingBBBPlus  CreditRating = "BBB_PLUS"
	CreditRatingBBB      CreditRating = "BBB"
	CreditRatingBBBMinus CreditRating = "BBB_MINUS"
	CreditRatingBBPlus   CreditRating = "BB_PLUS"
	CreditRatingBB       CreditRating = "BB"
	CreditRatingBBMinus  CreditRating = "BB_MINUS"
	CreditRatingBPlus    CreditRating = "B_PLUS"
	CreditRatingB        CreditRating = "B"
	CreditRatingBMinus   CreditRating = "B_MINUS"
	CreditRatingCCCPlus  CreditRating = "CCC_PLUS"
	CreditRatingCCC      CreditRating = "CCC"
	CreditRatingCCCMinus CreditRating = "CCC_MINUS"
	CreditRatingCC       CreditRating = "CC"
	CreditRatingC        CreditRating = "C"
	CreditRatingD        CreditRating = "D"
)

// AllCreditRatings lists every symbol on the scale, best first. Several of them
// (AA_MINUS, A_MINUS, BBB_MINUS, ...) are never produced by Calculate.
var AllCreditRatings = []CreditRating{
	CreditRatingAAA, CreditRatingAAPlus, CreditRatingAA, CreditRatingAAMinus,
	CreditRatingAPlus, CreditRatingA, CreditRatingAMinus,
	CreditRatingBBBPlus, CreditRatingBBB, CreditRatingBBBMinus,
	CreditRatingBBPlus, CreditRatingBB, CreditRatingBBMinus,
	CreditRatingBPlus, CreditRatingB, CreditRatingBMinus,
	CreditRatingCCCPlus, CreditRatingCCC, CreditRatingCCCMinus,
	CreditRatingCC, CreditRatingC, CreditRatingD,
}

var ErrUnknownRating = errors.New("unknown credit rating")

// Symbol renders the conventional notation, e.g. AA_PLUS -> "AA+".
func (r CreditRating) Symbol() string {
	s := string(r)
	s = strings.Replace(s, "_PLUS", "+", 1)
	return strings.Replace(s, "_MINUS", "-", 1)
}

// ParseCreditRating accepts either the stored name ("BBB_PLUS") or the symbol ("BBB+").
func ParseCreditRating(s string) (CreditRating, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, r := range AllCreditRatings {
		if s == string(r) || s == r.Symbol() {
			return r, nil
		}
	}
	return "", ErrUnknownRating
}

type Category string

const (
	CategoryInvestmentGrade Category = "INVESTMENT_GRADE"
	CategorySpeculative     Category = "SPECULATIVE"
	CategoryDistressed      Category = "DISTRESSED"
)

var AllCategories = []Category{CategoryInvestmentGrade, CategorySpeculative, CategoryDistressed}

func ParseCategory(s string) (Category, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, c := range AllCategories {
		if s == string(c) {
			return c, nil
		}
	}
	return "", errors.New("unknown rating category")
}

// Inputs are the monetary values a rating depends on. Nil means absent.
type Inputs struct {
	Ebitda             *decimal.Decimal
	TotalDebt          *decimal.Decimal
	InterestExpense    *decimal.Decimal
	CurrentAssets      *decimal.Decimal
	CurrentLiabilities *decimal.Decimal
}

// Result always carries both Rating and Category.
type Result struct {
	DebtToEbitda           *decimal.Decimal
	InterestCoverageRatio  *decimal.Decimal
	LiquidityCoverageRatio *decimal.Decimal
	Score                  int
	Rating                 CreditRating
	Category               Category
}

type band struct {
	minScore int
	rating   CreditRating
	category Category
}

// scanned top-down; the first band whose minScore <= score wins.
var bands = []band{
	{90, CreditRatingAAA, CategoryInvestmentGrade},
	{85, CreditRatingAAPlus, CategoryInvestmentGrade},
	{80, CreditRatingAA, CategoryInvestmentGrade},
	{75, CreditRatingAPlus, CategoryInvestmentGrade},
	{70, CreditRatingA, CategoryInvestmentGrade},
	{65, CreditRatingBBBPlus, CategoryInvestmentGrade},
	{60, CreditRatingBBB, CategoryInvestmentGrade},
	{55, CreditRatingBBPlus, CategorySpeculative},
	{50, CreditRatingBB, CategorySpeculative},
	{45, CreditRatingBPlus, CategorySpeculative},
	{40, CreditRatingB, CategorySpeculative},
	{30, CreditRatingCCC, CategoryDistressed},
}

var (
	two        = decimal.NewFromInt(2)
	four       = decimal.NewFromInt(4)
	six        = decimal.NewFromInt(6)
	eight      = decimal.NewFromInt(8)
	one        = decimal.NewFromInt(1)
	oneAndHalf = decimal.RequireFromString("1.5")
)

// Calculate computes the ratios, the score and the verdict for one issuer.
func Calculate(in Inputs) Result {
	res := Result{
		DebtToEbitda:           Ratio(in.TotalDebt, in.Ebitda),
		InterestCoverageRatio:  Ratio(in.Ebitda, in.InterestExpense),
		LiquidityCoverageRatio: Ratio(in.CurrentAssets, in.CurrentLiabilities),
	}
	res.Score = Score(res.DebtToEbitda, res.InterestCoverageRatio, res.LiquidityCoverageRatio)
	res.Rating, res.Category = Grade(res.Score)
	return res
}

// Ratio divides numerator by denominator rounded half-up to RatioScale digits.
// It returns nil when either operand is absent or the denominator is not positive.
func Ratio(numerator, denominator *decimal.Decimal) *decimal.Decimal {
	if numerator == nil || denominator == nil || !denominator.IsPositive() {
		return nil
	}
	// half away from zero
	q := numerator.DivRound(*denominator, RatioScale)
	return &q
}

// Score adds the sub-scores of the three ratios; an absent ratio contributes 0.
func Score(debtToEbitda, interestCoverage, liquidityCoverage *decimal.Decimal) int {
	score := 0

	// lower is better
	if debtToEbitda != nil {
		switch {
		case debtToEbitda.LessThan(two):
			score += 40
		case debtToEbitda.LessThan(four):
			score += 30
		case debtToEbitda.LessThan(six):
			score += 20
		default:
			score += 10
		}
	}

	// higher is better
	if interestCoverage != nil {
		switch {
		case interestCoverage.GreaterThan(eight):
			score += 40
		case interestCoverage.GreaterThan(four):
			score += 30
		case interestCoverage.GreaterThan(two):
			score += 20
		default:
			score += 10
		}
	}

	if liquidityCoverage != nil {
		switch {
		case liquidityCoverage.GreaterThan(oneAndHalf):
			score += 20
		case liquidityCoverage.GreaterThan(one):
			score += 10
		}
	}

	return score
}

// Grade maps a score to its rating and category. Scores below 30 are D.
func Grade(score int) (CreditRating, Category) {
	for _, b := range bands {
		if score >= b.minScore {
			return b.rating, b.category
		}
	}
	return CreditRatingD, CategoryDistressed
}
