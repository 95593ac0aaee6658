// Package dataset decodes uploaded spreadsheets into analysis datasets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format; upload .csv or .xlsx")

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("file contains no header row")

// Loader implements ports.DatasetLoader.
type Loader struct {
	// MaxRows caps the number of data rows read. Zero means unlimited.
	MaxRows int
}

var _ ports.DatasetLoader = Loader{}

// Load picks the decoder from the filename extension.
func (l Loader) Load(filename string, r io.Reader) (analysis.Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return l.loadCSV(r)
	case ".xlsx":
		return l.loadXLSX(r)
	default:
		return analysis.Dataset{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

func (l Loader) loadCSV(r io.Reader) (analysis.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return analysis.Dataset{}, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
		if l.MaxRows > 0 && len(records) > l.MaxRows {
			break
		}
	}
	return l.build(records)
}

func (l Loader) loadXLSX(r io.Reader) (analysis.Dataset, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return analysis.Dataset{}, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return analysis.Dataset{}, ErrEmptyFile
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return analysis.Dataset{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return l.build(rows)
}

// build treats the first record as the header and infers a type per cell.
// Short rows are padded with nulls; cells beyond the header are dropped.
func (l Loader) build(records [][]string) (analysis.Dataset, error) {
	if len(records) == 0 {
		return analysis.Dataset{}, ErrEmptyFile
	}

	header := records[0]
	columns := make([]string, len(header))
	for idx, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(idx)
		}
		columns[idx] = name
	}

	body := records[1:]
	if l.MaxRows > 0 && len(body) > l.MaxRows {
		body = body[:l.MaxRows]
	}

	rows := make([][]any, 0, len(body))
	for _, record := range body {
		if blank(record) {
			continue
		}
		row := make([]any, len(columns))
		for idx := range columns {
			if idx < len(record) {
				row[idx] = InferCell(record[idx])
			}
		}
		rows = append(rows, row)
	}

	dataset := analysis.Dataset{Columns: columns, Rows: rows}
	if err := dataset.Validate(); err != nil {
		return analysis.Dataset{}, err
	}
	return dataset, nil
}

// InferCell converts raw text into the narrowest cell type: null, integer,
// float, boolean or string.
func InferCell(raw string) any {
	value := strings.TrimSpace(raw)
	switch strings.ToLower(value) {
	case "", "nan", "null", "none", "n/a", "na":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return raw
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
