package importer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func june(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }

func TestReadCSV(t *testing.T) {
	input := "\ufeffdate,Steps,sleep_score, average_hrv\n" +
		"2024-06-01,9000,None,45.5\n" +
		"\n" +
		"2024-06-02,nan,80\n" +
		"not-a-date,1,2,3\n" +
		",1,2,3\n"

	res, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, Endpoint, res.Set.Endpoint)
	require.Len(t, res.Set.Rows, 2)

	first := res.Set.Rows[0]
	require.Equal(t, june(1), first.Day)
	require.Equal(t, "9000", first.Get("steps"))
	require.Contains(t, first.Fields, "sleep_score")
	require.Nil(t, first.Get("sleep_score"))
	require.Equal(t, "45.5", first.Get("average_hrv"))
	require.NotContains(t, first.Fields, "date")

	second := res.Set.Rows[1]
	require.Nil(t, second.Get("steps"))
	require.Equal(t, "80", second.Get("sleep_score"))
	require.Nil(t, second.Get("average_hrv"), "short rows leave trailing columns empty")

	require.Len(t, res.Skipped, 2)
	require.Equal(t, 5, res.Skipped[0].Line)
	require.Contains(t, res.Skipped[0].Error(), "not-a-date")
	require.Equal(t, 6, res.Skipped[1].Line)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = ReadCSV(strings.NewReader("day,steps\n2024-06-01,1\n"))
	require.ErrorIs(t, err, ErrMissingDateColumn)

	_, err = ReadCSV(strings.NewReader("date,steps\n\"2024-06-01,1\n"))
	require.Error(t, err)
}

func TestParseDateLayouts(t *testing.T) {
	for _, raw := range []string{"2024-06-01", "2024-06-01 07:30:00", "2024-06-01T07:30:00Z", "6/1/2024", "06-01-24"} {
		day, err := parseDate(raw)
		require.NoError(t, err, raw)
		require.Equal(t, june(1), day, raw)
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"date", "steps", "sleep_efficiency"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2024-06-01", 9000, 91.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"2024-06-02", "None", ""}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := ReadXLSX(&buf, "")
	require.NoError(t, err)
	require.Len(t, res.Set.Rows, 2)
	require.Equal(t, "9000", res.Set.Rows[0].Get("steps"))
	require.Equal(t, "91.5", res.Set.Rows[0].Get("sleep_efficiency"))
	require.Nil(t, res.Set.Rows[1].Get("steps"))
	require.Nil(t, res.Set.Rows[1].Get("sleep_efficiency"))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trends.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,steps\n2024-06-03,10\n"), 0o600))

	res, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, res.Set.Rows, 1)
	require.Equal(t, june(3), res.Set.Rows[0].Day)

	_, err = ReadFile(filepath.Join(dir, "trends.json"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	format, err := DetectFormat("EXPORT.XLSX")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, format)
}
