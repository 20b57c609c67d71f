// Package importer reads flat trend exports (CSV or XLSX) into a record set
// that the sync pipeline can write as a new generation.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"example.com/wellness/internal/dataset"
)

// Endpoint labels record sets produced from flat files.
const Endpoint = "export"

// DateColumn is the header that keys each row.
const DateColumn = "date"

// Format identifies a supported file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported import format")
	// ErrMissingDateColumn is returned when the header row has no date column.
	ErrMissingDateColumn = errors.New("header has no date column")
	// ErrEmptyFile is returned when the file has no header row.
	ErrEmptyFile = errors.New("file is empty")
)

// RowError describes a data row that was skipped.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Result is a parsed file.
type Result struct {
	Set     dataset.RecordSet
	Skipped []RowError
}

// missing lists cell spellings that mean "no value" in exported files.
var missing = map[string]struct{}{
	"":     {},
	"None": {},
	"nan":  {},
	"NaN":  {},
	"null": {},
}

// dateLayouts are tried in order for the date column. Spreadsheet tools
// often rewrite ISO dates when a file is re-saved.
var dateLayouts = []string{
	dataset.DayLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006",
	"01-02-06",
	"1/2/06",
}

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadFile opens path and parses it according to its extension.
func ReadFile(path string) (Result, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	if format == FormatXLSX {
		return ReadXLSX(f, "")
	}
	return ReadCSV(f)
}

// ReadCSV parses a comma separated file whose first record is the header.
func ReadCSV(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return fromRecords(records, lines)
}

// ReadXLSX parses one worksheet of a workbook. An empty sheet name selects
// the first sheet.
func ReadXLSX(r io.Reader, sheet string) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Result{}, ErrEmptyFile
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return fromRecords(rows, lines)
}

// fromRecords converts a header row and data rows. lines holds the source
// line of each record for error reporting.
func fromRecords(records [][]string, lines []int) (Result, error) {
	if len(records) == 0 {
		return Result{}, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	dateIdx := -1
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		header[i] = name
		if name == DateColumn && dateIdx < 0 {
			dateIdx = i
		}
	}
	if dateIdx < 0 {
		return Result{}, ErrMissingDateColumn
	}

	out := Result{Set: dataset.RecordSet{Endpoint: Endpoint}}
	for n, record := range records[1:] {
		line := lines[n+1]
		if blank(record) {
			continue
		}
		if dateIdx >= len(record) {
			out.Skipped = append(out.Skipped, RowError{Line: line, Err: errors.New("missing date")})
			continue
		}
		day, err := parseDate(record[dateIdx])
		if err != nil {
			out.Skipped = append(out.Skipped, RowError{Line: line, Err: err})
			continue
		}

		fields := make(map[string]any, len(header)-1)
		for i, name := range header {
			if i == dateIdx || name == "" {
				continue
			}
			fields[name] = cell(record, i)
		}
		out.Set.Rows = append(out.Set.Rows, dataset.Row{Day: day, Fields: fields})
	}
	return out, nil
}

func cell(record []string, i int) any {
	if i >= len(record) {
		return nil
	}
	v := strings.TrimSpace(record[i])
	if _, ok := missing[v]; ok {
		return nil
	}
	return v
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return dataset.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}
