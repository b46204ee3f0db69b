// Package leads loads the uploaded lead table into normalized records.
package leads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const utf8BOM = "\ufeff"

var (
	// ErrNoHeader is returned when the input has no header row.
	ErrNoHeader = errors.New("lead table has no header row")
	// ErrNoRows is returned when the header is not followed by any data row.
	ErrNoRows = errors.New("lead table has no data rows")
)

// Record maps a normalized column name to the row's value.
type Record map[string]string

// Get returns the value stored under field and whether the column exists.
func (r Record) Get(field string) (string, bool) {
	value, ok := r[field]

	return value, ok
}

// columnReplacer turns spaces and slashes into underscores.
var columnReplacer = strings.NewReplacer(" ", "_", "/", "_")

// NormalizeColumn lowercases a column name and replaces spaces and slashes
// with underscores. Repeated underscores are kept as they are.
func NormalizeColumn(name string) string {
	return columnReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// LoadFile opens path and parses it with Load.
func LoadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lead table '%s': %w", path, err)
	}
	defer file.Close()

	records, loadErr := Load(file)
	if loadErr != nil {
		return nil, fmt.Errorf("failed to load lead table '%s': %w", path, loadErr)
	}

	return records, nil
}

// Load parses a CSV table with a header row. Short rows are padded with empty
// values, extra cells are dropped, and rows with only empty cells are skipped.
func Load(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}

		columns[i] = NormalizeColumn(name)
	}

	var records []Record

	// Data rows are counted as read, so skipped blank rows keep their number.
	for dataRow := 1; ; dataRow++ {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", dataRow, readErr)
		}

		if isBlank(row) {
			continue
		}

		records = append(records, newRecord(columns, row))
	}

	if len(records) == 0 {
		return nil, ErrNoRows
	}

	return records, nil
}

func newRecord(columns, row []string) Record {
	record := make(Record, len(columns))

	for i, column := range columns {
		if column == "" {
			continue
		}

		value := ""
		if i < len(row) {
			value = strings.TrimSpace(row[i])
		}

		record[column] = value
	}

	return record
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}
