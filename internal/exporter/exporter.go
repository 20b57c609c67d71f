// Package exporter writes stored trends to flat files in the layout the
// importer reads back.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/importer"
)

// DefaultSheet names the worksheet of XLSX exports.
const DefaultSheet = "oura_trends"

// WriteFile writes records to path, choosing the format from its extension.
// The file is written to a temporary sibling and renamed into place.
func WriteFile(path string, records []domain.DailyMetricRecord) (err error) {
	format, err := importer.DetectFormat(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	switch format {
	case importer.FormatXLSX:
		err = WriteXLSX(tmp, records, DefaultSheet)
	default:
		err = WriteCSV(tmp, records)
	}
	if err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteCSV writes a header of stored column names followed by one line per
// record. Absent values are empty cells.
func WriteCSV(w io.Writer, records []domain.DailyMetricRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.Columns); err != nil {
		return err
	}
	line := make([]string, len(domain.Columns))
	for _, rec := range records {
		for i, v := range rec.Values() {
			line[i] = format(v)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records to a single-sheet workbook.
func WriteXLSX(w io.Writer, records []domain.DailyMetricRecord, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = DefaultSheet
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	header := make([]any, len(domain.Columns))
	for i, name := range domain.Columns {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for n, rec := range records {
		values := rec.Values()
		row := make([]any, len(values))
		for i, v := range values {
			switch v := v.(type) {
			case nil:
				row[i] = ""
			case int64, float64:
				row[i] = v
			default:
				row[i] = format(v)
			}
		}
		cellRef, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", n+2, err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func format(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case interface{ Format(string) string }:
		return v.Format(dataset.DayLayout)
	default:
		return fmt.Sprint(v)
	}
}
