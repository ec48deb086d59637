package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"skuflow/src/core/catalog"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrMissingHeader is returned when the header row lacks a required column.
	ErrMissingHeader = errors.New("header row missing required columns")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// columns maps the recognized header names onto their positions in the file.
// Required: sku, name. Optional: description, is_active ("active" accepted as
// an alias). Unknown columns are ignored.
type columns struct {
	sku         int
	name        int
	description int
	isActive    int
}

type table struct {
	cols columns
	rows [][]string
}

func parseTable(fileName string, payload []byte) (table, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, errors.New("excel file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(records)
}

func normalizeTable(records [][]string) (table, error) {
	var header []string
	var dataRows [][]string

	for _, row := range records {
		if emptyRow(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if header == nil {
		return table{}, errors.New("no header row found in file")
	}

	cols, err := mapColumns(header)
	if err != nil {
		return table{}, err
	}
	return table{cols: cols, rows: dataRows}, nil
}

func mapColumns(header []string) (columns, error) {
	cols := columns{sku: -1, name: -1, description: -1, isActive: -1}
	for idx, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "sku":
			cols.sku = idx
		case "name":
			cols.name = idx
		case "description":
			cols.description = idx
		case "is_active", "active":
			cols.isActive = idx
		}
	}
	if cols.sku < 0 || cols.name < 0 {
		return cols, fmt.Errorf("%w: need sku and name", ErrMissingHeader)
	}
	return cols, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseRow validates one data row against the column map and builds the
// product it describes. Errors here are row-level: the caller skips the row
// and keeps going.
func (t table) parseRow(row []string) (catalog.Product, error) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	sku := cell(t.cols.sku)
	if sku == "" {
		return catalog.Product{}, errors.New("missing sku")
	}
	name := cell(t.cols.name)
	if name == "" {
		return catalog.Product{}, errors.New("missing name")
	}

	isActive := true
	if raw := cell(t.cols.isActive); raw != "" {
		parsed, err := parseBool(raw)
		if err != nil {
			return catalog.Product{}, fmt.Errorf("invalid is_active value %q", raw)
		}
		isActive = parsed
	}

	return catalog.Product{
		SKU:         sku,
		Name:        name,
		Description: cell(t.cols.description),
		IsActive:    isActive,
	}, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", raw)
	}
}
