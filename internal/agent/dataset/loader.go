package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var invalidColumnChars = regexp.MustCompile(`[^0-9a-zA-Z_]`)

// SanitizeColumn turns a header into a safe identifier: every character
// outside [0-9a-zA-Z_] becomes '_', the result is lowercased and trimmed of '_'.
func SanitizeColumn(name string) string {
	s := invalidColumnChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(strings.ToLower(s), "_")
}

// ReadFile reads the first sheet of an .xlsx file or a .csv file.
func ReadFile(path string) (Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readSpreadsheet(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return Table{}, fmt.Errorf("dataset: open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f)
	default:
		return Table{}, fmt.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

func readSpreadsheet(path string) (Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("dataset: %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("dataset: read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(rows)
}

// ReadCSV reads a header row followed by data rows.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("dataset: read csv: %w", err)
	}
	return fromRecords(records)
}

// fromRecords keeps only the columns whose header is non-empty.
func fromRecords(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, fmt.Errorf("dataset: no header row")
	}

	var keep []int
	var headers []string
	for i, h := range records[0] {
		if strings.TrimSpace(h) == "" {
			continue
		}
		keep = append(keep, i)
		headers = append(headers, h)
	}
	if len(keep) == 0 {
		return Table{}, fmt.Errorf("dataset: header row is empty")
	}

	t := Table{Name: DefaultTable, Columns: headers}
	for _, rec := range records[1:] {
		row := make([]string, len(keep))
		for j, idx := range keep {
			if idx < len(rec) {
				row[j] = rec[idx]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// uniqueColumns sanitizes headers, naming empty results col_<i> and
// suffixing duplicates.
func uniqueColumns(headers []string) []string {
	seen := make(map[string]bool, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		base := SanitizeColumn(h)
		if base == "" {
			base = fmt.Sprintf("col_%d", i)
		}
		name := base
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

const (
	typeInteger = "INTEGER"
	typeReal    = "REAL"
	typeText    = "TEXT"
)

// inferTypes picks the narrowest affinity that fits every non-empty cell.
func inferTypes(n int, rows [][]string) []string {
	types := make([]string, n)
	for j := 0; j < n; j++ {
		types[j] = inferColumn(rows, j)
	}
	return types
}

func inferColumn(rows [][]string, j int) string {
	kind := typeInteger
	filled := false
	for _, r := range rows {
		if j >= len(r) {
			continue
		}
		v := strings.TrimSpace(r[j])
		if v == "" {
			continue
		}
		filled = true
		if kind == typeInteger {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			kind = typeReal
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return typeText
		}
	}
	if !filled {
		return typeText
	}
	return kind
}

func cellValue(r []string, j int, kind string) any {
	if j >= len(r) {
		return nil
	}
	v := strings.TrimSpace(r[j])
	if v == "" {
		return nil
	}
	switch kind {
	case typeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case typeReal:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return v
}

func isBlankRow(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
