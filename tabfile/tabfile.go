// Package tabfile reads uploaded tabular files (CSV or XLSX) as a stream of
// header-keyed rows. The file format is sniffed from content, not the filename:
// a PK zip header means XLSX, anything else is treated as delimited text.
package tabfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one data record. Ordinal is 1-based counting the header row, so the
// first data row has ordinal 2.
type Row struct {
	Ordinal int
	Fields  map[string]string
}

// Reader is a blocking-pull row iterator. Next returns io.EOF after the last
// row; any other error means the file is malformed and the job should abort.
type Reader interface {
	Headers() []string
	Next() (Row, error)
	Close() error
}

var errNoHeader = errors.New("file has no header row")

// Open sniffs data and returns a Reader for it.
func Open(data []byte) (Reader, error) {
	if len(data) == 0 {
		return nil, errNoHeader
	}
	if len(data) >= 2 && data[0] == 'P' && data[1] == 'K' {
		return openXLSX(data)
	}
	if len(data) >= 8 && bytes.Equal(data[:8], []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}) {
		return nil, errors.New("legacy .xls files are not supported; save as .xlsx or .csv")
	}
	return openCSV(data)
}

// normalizeHeaders trims and lowercases header cells, fills blanks with a
// positional name and dedupes repeats with a numeric suffix.
func normalizeHeaders(raw []string) []string {
	h := make([]string, len(raw))
	for i, v := range raw {
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			s = fmt.Sprintf("column_%d", i+1)
		}
		h[i] = s
	}
	seen := make(map[string]int, len(h))
	out := make([]string, len(h))
	for i, name := range h {
		if c, ok := seen[name]; ok {
			c++
			seen[name] = c
			out[i] = fmt.Sprintf("%s.%d", name, c)
		} else {
			seen[name] = 0
			out[i] = name
		}
	}
	return out
}

func padRow(cols []string, n int) []string {
	row := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(cols) {
			row[i] = strings.TrimSpace(cols[i])
		}
	}
	return row
}

func fieldsFor(headers, cols []string) map[string]string {
	m := make(map[string]string, len(headers))
	padded := padRow(cols, len(headers))
	for i, h := range headers {
		m[h] = padded[i]
	}
	return m
}

type csvReader struct {
	cr      *csv.Reader
	headers []string
	ordinal int
}

func openCSV(data []byte) (*csvReader, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rec, err := cr.Read()
	if err == io.EOF {
		return nil, errNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	return &csvReader{cr: cr, headers: normalizeHeaders(rec), ordinal: 1}, nil
}

func (r *csvReader) Headers() []string { return r.headers }

func (r *csvReader) Next() (Row, error) {
	rec, err := r.cr.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	if err != nil {
		return Row{}, fmt.Errorf("read row: %w", err)
	}
	r.ordinal++
	return Row{Ordinal: r.ordinal, Fields: fieldsFor(r.headers, rec)}, nil
}

func (r *csvReader) Close() error { return nil }

type xlsxReader struct {
	f       *excelize.File
	rows    *excelize.Rows
	headers []string
	ordinal int
}

func openXLSX(data []byte) (*xlsxReader, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errNoHeader
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open xlsx sheet: %w", err)
	}
	if !rows.Next() {
		_ = rows.Close()
		_ = f.Close()
		return nil, errNoHeader
	}
	rawHeader, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		_ = f.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}
	return &xlsxReader{f: f, rows: rows, headers: normalizeHeaders(rawHeader), ordinal: 1}, nil
}

func (r *xlsxReader) Headers() []string { return r.headers }

func (r *xlsxReader) Next() (Row, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return Row{}, fmt.Errorf("read row: %w", err)
		}
		return Row{}, io.EOF
	}
	cols, err := r.rows.Columns()
	if err != nil {
		return Row{}, fmt.Errorf("read row: %w", err)
	}
	r.ordinal++
	return Row{Ordinal: r.ordinal, Fields: fieldsFor(r.headers, cols)}, nil
}

func (r *xlsxReader) Close() error {
	_ = r.rows.Close()
	return r.f.Close()
}

// ReadAll drains rd into memory. Import jobs hold their full row set in memory
// so total_records can be fixed before any row is processed.
func ReadAll(rd Reader) ([]Row, error) {
	var out []Row
	for {
		row, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
}
