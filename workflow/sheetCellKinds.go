package workflow

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// cellKind is what the worksheet part stores about a cell besides its value.
type cellKind struct {
	typ     string // c/@t; empty for plain numbers
	formula bool
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type workbookXML struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type cellXML struct {
	R string    `xml:"r,attr"`
	T string    `xml:"t,attr"`
	F *struct{} `xml:"f"`
}

// sheetCellKinds streams one worksheet part next to excelize's row iterator, so
// every cell's type is read once instead of being looked up in the loaded sheet.
type sheetCellKinds struct {
	rc      io.ReadCloser
	dec     *xml.Decoder
	pending *xml.StartElement
	lastRow int
	done    bool
}

func openSheetCellKinds(zr *zip.Reader, sheetName string) (*sheetCellKinds, error) {
	wbPath := workbookPath(zr)
	var wb workbookXML
	if err := decodeZipXML(zr, wbPath, &wb); err != nil {
		return nil, fmt.Errorf("read %s: %w", wbPath, err)
	}
	rid := ""
	for _, s := range wb.Sheets {
		if s.Name == sheetName {
			rid = s.RID
			break
		}
	}
	if rid == "" {
		return nil, fmt.Errorf("sheet %q not listed in workbook", sheetName)
	}

	var rels relationshipsXML
	relsPath := path.Join(path.Dir(wbPath), "_rels", path.Base(wbPath)+".rels")
	if err := decodeZipXML(zr, relsPath, &rels); err != nil {
		return nil, fmt.Errorf("read %s: %w", relsPath, err)
	}
	target := ""
	for _, r := range rels.Relationships {
		if r.ID == rid {
			target = r.Target
			break
		}
	}
	if target == "" {
		return nil, fmt.Errorf("sheet %q has no part", sheetName)
	}
	if strings.HasPrefix(target, "/") {
		target = strings.TrimPrefix(target, "/")
	} else {
		target = path.Join(path.Dir(wbPath), target)
	}

	rc, err := zr.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	return &sheetCellKinds{rc: rc, dec: xml.NewDecoder(rc)}, nil
}

func workbookPath(zr *zip.Reader) string {
	var rels relationshipsXML
	if err := decodeZipXML(zr, "_rels/.rels", &rels); err == nil {
		for _, r := range rels.Relationships {
			if strings.HasSuffix(r.Type, "/officeDocument") {
				return strings.TrimPrefix(r.Target, "/")
			}
		}
	}
	return "xl/workbook.xml"
}

func decodeZipXML(zr *zip.Reader, name string, v any) error {
	f, err := zr.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return xml.NewDecoder(f).Decode(v)
}

// row returns the kinds of row n keyed by 1-based column. Rows must be asked for in
// ascending order; a row missing from the part has no kinds.
func (s *sheetCellKinds) row(n int) (map[int]cellKind, error) {
	for !s.done {
		start, err := s.nextRowStart()
		if err != nil {
			return nil, err
		}
		if start == nil {
			s.done = true
			break
		}
		r := s.lastRow + 1
		if v := attrValue(start, "r"); v != "" {
			if r, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("row number %q: %w", v, err)
			}
		}
		switch {
		case r < n:
			s.lastRow = r
			if err := s.dec.Skip(); err != nil {
				return nil, err
			}
		case r == n:
			s.lastRow = r
			return s.readCells()
		default:
			s.pending = start
			return nil, nil
		}
	}
	return nil, nil
}

func (s *sheetCellKinds) nextRowStart() (*xml.StartElement, error) {
	if s.pending != nil {
		start := s.pending
		s.pending = nil
		return start, nil
	}
	for {
		tok, err := s.dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "row" {
			se = se.Copy()
			return &se, nil
		}
	}
}

func (s *sheetCellKinds) readCells() (map[int]cellKind, error) {
	kinds := map[int]cellKind{}
	col := 0
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local != "c" {
				if err := s.dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			var c cellXML
			if err := s.dec.DecodeElement(&c, &el); err != nil {
				return nil, err
			}
			col++
			if c.R != "" {
				if col, _, err = excelize.CellNameToCoordinates(c.R); err != nil {
					return nil, err
				}
			}
			kinds[col] = cellKind{typ: c.T, formula: c.F != nil}
		case xml.EndElement:
			if el.Name.Local == "row" {
				return kinds, nil
			}
		}
	}
}

func (s *sheetCellKinds) Close() error {
	return s.rc.Close()
}

func attrValue(el *xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
