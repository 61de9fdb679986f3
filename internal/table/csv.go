package table

// csv.go reads delimited text the way spreadsheet exports actually arrive:
//
//   - UTF-8 with or without a BOM
//   - UTF-16 (LE/BE), with a BOM or detected from NUL byte placement
//   - Windows-1252 when the bytes are not valid UTF-8
//   - comma, semicolon, tab or pipe delimited, sniffed from the header line
//   - Excel text-formula cells (="00123")
//
// Duplicate headers get ".1", ".2" suffixes and blank headers become
// "Unnamed: <index>", so every column keeps a distinct name.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrEmptyInput is returned when the input has no header row.
	ErrEmptyInput = errors.New("input has no header row")

	// ErrUnsupportedFormat is returned for file types no reader handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// delimiterCandidates are tried in order; ties keep the earlier one.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// Read dispatches on the file extension of name.
func Read(name string, r io.Reader) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		t, err = ReadXLSX(r)
	case ".tsv":
		t, err = ReadCSV(r, '\t')
	case ".csv", ".txt", "":
		t, err = ReadCSV(r, 0)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	t.Source.Name = name
	return t, nil
}

// ReadCSV reads delimited text. A zero delimiter is sniffed from the first line.
func ReadCSV(r io.Reader, delimiter rune) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("decode csv as %s: %w", enc, err)
	}

	if delimiter == 0 {
		delimiter = sniffDelimiter(text)
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := New(uniqueHeaders(header))
	t.Source = Source{Format: "csv", Encoding: enc, Delimiter: string(delimiter)}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		rec = trimTrailingBlanks(rec, len(t.Headers))
		if len(rec) > len(t.Headers) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("read csv line %d: expected %d fields, saw %d", line, len(t.Headers), len(rec))
		}

		row := make([]any, len(t.Headers))
		for i, v := range rec {
			if v == "" {
				continue
			}
			row[i] = unwrapExcelText(v)
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// decodeText converts raw bytes to UTF-8 and names the source encoding.
func decodeText(raw []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return raw[3:], "utf-8-sig", nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		out, err := decodeWith(raw, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM))
		return out, "utf-16le", err
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		out, err := decodeWith(raw, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM))
		return out, "utf-16be", err
	}

	if le, be := nulPlacement(raw); le {
		out, err := decodeWith(raw, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM))
		return out, "utf-16le", err
	} else if be {
		out, err := decodeWith(raw, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM))
		return out, "utf-16be", err
	}

	if utf8.Valid(raw) {
		return raw, "utf-8", nil
	}
	out, err := decodeWith(raw, charmap.Windows1252)
	return out, "cp1252", err
}

func decodeWith(raw []byte, enc encoding.Encoding) ([]byte, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	return out, err
}

// nulPlacement inspects a prefix for the NUL pattern of BOM-less UTF-16
// text that is mostly ASCII.
func nulPlacement(raw []byte) (littleEndian, bigEndian bool) {
	n := min(len(raw), 256)
	n -= n % 2
	if n < 4 {
		return false, false
	}
	var even, odd int
	for i := 0; i < n; i++ {
		if raw[i] != 0 {
			continue
		}
		if i%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	half := n / 2
	return odd*2 >= half && even == 0, even*2 >= half && odd == 0
}

// sniffDelimiter counts candidate delimiters outside quotes on the first line.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}

	counts := make(map[rune]int, len(delimiterCandidates))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := delimiterCandidates[0], 0
	for _, d := range delimiterCandidates {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

// uniqueHeaders names blank headers by position and suffixes duplicates.
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	next := make(map[string]int)

	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if seen[h] {
			base := h
			k := next[base]
			if k == 0 {
				k = 1
			}
			for seen[fmt.Sprintf("%s.%d", base, k)] {
				k++
			}
			h = fmt.Sprintf("%s.%d", base, k)
			next[base] = k + 1
		}
		seen[h] = true
		out[i] = h
	}
	return out
}

// trimTrailingBlanks drops empty cells past width, which some exporters
// emit as trailing delimiters.
func trimTrailingBlanks(rec []string, width int) []string {
	for len(rec) > width && strings.TrimSpace(rec[len(rec)-1]) == "" {
		rec = rec[:len(rec)-1]
	}
	return rec
}

// unwrapExcelText strips the ="..." wrapper Excel uses to force text cells.
func unwrapExcelText(s string) string {
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		return s[2 : len(s)-1]
	}
	return s
}

// WriteCSV writes the table as comma-separated UTF-8.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = FormatValue(row[i])
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
