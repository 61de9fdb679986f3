package table

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the first worksheet of a workbook. The first non-empty row
// is the header row; fully empty rows after it are skipped.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var t *Table
	for _, rec := range rows {
		if blankRecord(rec) {
			continue
		}
		if t == nil {
			t = New(uniqueHeaders(rec))
			t.Source = Source{Format: "xlsx", Encoding: "utf-8"}
			continue
		}

		rec = trimTrailingBlanks(rec, len(t.Headers))
		if len(rec) > len(t.Headers) {
			return nil, fmt.Errorf("read sheet %q: row wider than header (%d > %d)", sheets[0], len(rec), len(t.Headers))
		}
		row := make([]any, len(t.Headers))
		for i, v := range rec {
			if v != "" {
				row[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}

	if t == nil {
		return nil, ErrEmptyInput
	}
	return t, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}
