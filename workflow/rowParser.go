package workflow

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Column order of every source file, after the header row.
var RowColumns = []string{
	"issuerName", "industry", "country",
	"revenue", "ebitda", "totalDebt", "interestExpense", "currentAssets", "currentLiabilities",
}

const (
	colIssuerName = iota
	colIndustry
	colCountry
	colRevenue
	colEbitda
	colTotalDebt
	colInterestExpense
	colCurrentAssets
	colCurrentLiabilities
)

// RowFields holds the nine parsed slots of one source row. Nil means absent.
type RowFields struct {
	IssuerName         *string
	Industry           *string
	Country            *string
	Revenue            *decimal.Decimal
	Ebitda             *decimal.Decimal
	TotalDebt          *decimal.Decimal
	InterestExpense    *decimal.Decimal
	CurrentAssets      *decimal.Decimal
	CurrentLiabilities *decimal.Decimal
}

func (f *RowFields) numericSlot(col int) **decimal.Decimal {
	switch col {
	case colRevenue:
		return &f.Revenue
	case colEbitda:
		return &f.Ebitda
	case colTotalDebt:
		return &f.TotalDebt
	case colInterestExpense:
		return &f.InterestExpense
	case colCurrentAssets:
		return &f.CurrentAssets
	default:
		return &f.CurrentLiabilities
	}
}

// Record builds an unrated financial record for the dataset.
func (f RowFields) Record(datasetId int) *models.FinancialRecord {
	return &models.FinancialRecord{
		DatasetId:          datasetId,
		IssuerName:         f.IssuerName,
		Industry:           f.Industry,
		Country:            f.Country,
		Revenue:            f.Revenue,
		Ebitda:             f.Ebitda,
		TotalDebt:          f.TotalDebt,
		InterestExpense:    f.InterestExpense,
		CurrentAssets:      f.CurrentAssets,
		CurrentLiabilities: f.CurrentLiabilities,
	}
}

func textSlot(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ParseTextRow parses a delimited-text row. Numeric cells must be valid decimals or
// blank; anything else fails the row.
func ParseTextRow(cells []string) (RowFields, error) {
	var f RowFields
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	f.IssuerName = textSlot(cell(colIssuerName))
	f.Industry = textSlot(cell(colIndustry))
	f.Country = textSlot(cell(colCountry))

	for col := colRevenue; col <= colCurrentLiabilities; col++ {
		raw := strings.TrimSpace(cell(col))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return RowFields{}, fmt.Errorf("column %s: invalid number %q: %w", RowColumns[col], raw, err)
		}
		*f.numericSlot(col) = &d
	}
	return f, nil
}

// SheetCell is one spreadsheet cell with its native type resolved.
type SheetCell struct {
	Text    string
	Numeric bool
}

// ParseSheetRow maps typed spreadsheet cells. A numeric slot holding anything but a
// numeric cell is absent; it never fails.
func ParseSheetRow(cells []SheetCell) RowFields {
	var f RowFields
	cell := func(i int) SheetCell {
		if i < len(cells) {
			return cells[i]
		}
		return SheetCell{}
	}
	f.IssuerName = textSlot(cell(colIssuerName).Text)
	f.Industry = textSlot(cell(colIndustry).Text)
	f.Country = textSlot(cell(colCountry).Text)

	for col := colRevenue; col <= colCurrentLiabilities; col++ {
		c := cell(col)
		if !c.Numeric {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(c.Text))
		if err != nil {
			continue
		}
		*f.numericSlot(col) = &d
	}
	return f
}

// RowReader yields parsed data rows; the header row is already consumed. Next
// returns io.EOF after the last row.
type RowReader interface {
	Next() (RowFields, error)
	// Line is the 1-based source line or row number of the last row returned.
	Line() int
	Close() error
}

type csvRowReader struct {
	r    *csv.Reader
	line int
}

func NewCSVRowReader(src io.Reader) (RowReader, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return &csvRowReader{r: r, line: 1}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &csvRowReader{r: r, line: 1}, nil
}

func (c *csvRowReader) Next() (RowFields, error) {
	record, err := c.r.Read()
	if err != nil {
		return RowFields{}, err
	}
	c.line, _ = c.r.FieldPos(0)
	f, err := ParseTextRow(record)
	if err != nil {
		return RowFields{}, fmt.Errorf("line %d: %w", c.line, err)
	}
	return f, nil
}

func (c *csvRowReader) Line() int    { return c.line }
func (c *csvRowReader) Close() error { return nil }

type sheetRowReader struct {
	f     *excelize.File
	rows  *excelize.Rows
	kinds *sheetCellKinds
	row   int
}

// NewSheetRowReader reads the first worksheet of an xlsx workbook. Blank rows are
// skipped.
func NewSheetRowReader(src io.Reader) (RowReader, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errors.New("workbook has no sheets")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	kinds, err := openSheetCellKinds(zr, sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = kinds.Close()
		_ = f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	s := &sheetRowReader{f: f, rows: rows, kinds: kinds}
	// header
	if s.rows.Next() {
		s.row++
	}
	return s, nil
}

func (s *sheetRowReader) Next() (RowFields, error) {
	for s.rows.Next() {
		s.row++
		values, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return RowFields{}, fmt.Errorf("row %d: %w", s.row, err)
		}
		cells, blank, err := s.typedCells(values)
		if err != nil {
			return RowFields{}, fmt.Errorf("row %d: %w", s.row, err)
		}
		if blank {
			continue
		}
		return ParseSheetRow(cells), nil
	}
	if err := s.rows.Error(); err != nil {
		return RowFields{}, err
	}
	return RowFields{}, io.EOF
}

func (s *sheetRowReader) typedCells(values []string) ([]SheetCell, bool, error) {
	cells := make([]SheetCell, len(values))
	blank := true
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		blank = false
		cells[i].Text = v
	}
	if blank || len(values) <= colRevenue {
		return cells, blank, nil
	}

	kinds, err := s.kinds.row(s.row)
	if err != nil {
		return nil, false, err
	}
	for i := colRevenue; i < len(cells); i++ {
		if k, ok := kinds[i+1]; ok && cells[i].Text != "" {
			cells[i].Numeric = isNumericCell(k, cells[i].Text)
		}
	}
	return cells, false, nil
}

// Plain numbers carry no type attribute (or t="n"). A formula cell is never numeric,
// whatever its cached result.
func isNumericCell(k cellKind, raw string) bool {
	if k.formula {
		return false
	}
	switch k.typ {
	case "", "n":
		_, err := decimal.NewFromString(strings.TrimSpace(raw))
		return err == nil
	default:
		return false
	}
}

func (s *sheetRowReader) Line() int { return s.row }

func (s *sheetRowReader) Close() error {
	_ = s.rows.Close()
	_ = s.kinds.Close()
	return s.f.Close()
}

// NewRowReader picks the reader for the dataset's declared file kind.
func NewRowReader(fileType models.FileType, src io.Reader) (RowReader, error) {
	switch {
	case fileType == models.FileTypeCsv:
		return NewCSVRowReader(src)
	case fileType.IsSpreadsheet():
		return NewSheetRowReader(src)
	default:
		return nil, fmt.Errorf("%w: %q", utils.ErrUnsupportedFileType, fileType)
	}
}
