// Package ingest reads a loan tape workbook or CSV into typed records.
//
// Column headers are matched onto the schema by normalized name first and by
// canonical key second, so cosmetic header differences ("Total Nbr of
// Borrowers") still bind to the right field. Cells that cannot be parsed into
// the declared type become missing markers carrying the raw text; ingestion
// never fails a run over one bad cell, that is the rule catalogue's job.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tapecheck/internal/errors"
	"tapecheck/internal/tape"
)

// headerScanRows bounds how deep into a sheet the header row is searched
const headerScanRows = 10

// excelEpoch is day zero of the 1900 date system used by xlsx serials
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order when parsing a date cell as text
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02T15:04:05Z07:00",
	"01-02-06",
	"Jan 2, 2006",
}

// Reader ingests loan tapes against a fixed schema
type Reader struct {
	schema *tape.Schema
	logger *slog.Logger
}

// NewReader creates a tape reader for the given schema
func NewReader(schema *tape.Schema, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{schema: schema, logger: logger}
}

// ReadTape loads records from an xlsx workbook or a CSV file, dispatching on
// the file extension.
func (r *Reader) ReadTape(path string) ([]tape.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return r.readWorkbook(path)
	case ".csv":
		return r.readCSV(path)
	default:
		return nil, errors.NewIngestionError(
			fmt.Sprintf("unsupported tape format %q, expected .xlsx or .csv", filepath.Ext(path)), nil)
	}
}

// readWorkbook loads the tape from the first sheet containing a recognizable
// header row.
func (r *Reader) readWorkbook(path string) ([]tape.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewIngestionError(fmt.Sprintf("failed to open workbook %s", path), err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.NewIngestionError(fmt.Sprintf("failed to read sheet %q", sheet), err)
		}
		headerIdx, mapping := r.findHeader(rows)
		if mapping == nil {
			continue
		}
		r.logger.Info("tape sheet located",
			slog.String("sheet", sheet),
			slog.Int("header_row", headerIdx+1),
			slog.Int("mapped_columns", len(mapping)))
		return r.buildRecords(rows[headerIdx+1:], mapping)
	}
	return nil, errors.NewIngestionError(
		fmt.Sprintf("no sheet in %s has a header row with a loan number column", path), nil)
}

// readCSV loads the tape from a CSV file whose first row is the header
func (r *Reader) readCSV(path string) ([]tape.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIngestionError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	cr := csv.NewReader(file)
	cr.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewIngestionError(fmt.Sprintf("failed to parse CSV %s", path), err)
		}
		rows = append(rows, row)
	}

	headerIdx, mapping := r.findHeader(rows)
	if mapping == nil {
		return nil, errors.NewIngestionError(
			fmt.Sprintf("%s has no header row with a loan number column", path), nil)
	}
	return r.buildRecords(rows[headerIdx+1:], mapping)
}

// findHeader scans the leading rows for one that binds a loan_number column,
// returning the header row index and a column->field mapping.
func (r *Reader) findHeader(rows [][]string) (int, map[int]tape.Field) {
	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		mapping := r.mapColumns(rows[i])
		for _, field := range mapping {
			if field.Name == "loan_number" {
				return i, mapping
			}
		}
	}
	return 0, nil
}

// mapColumns binds header cells to schema fields. Exact normalized names win;
// canonical keys catch abbreviated or reworded headers. Unrecognized columns
// are ignored.
func (r *Reader) mapColumns(header []string) map[int]tape.Field {
	canonical := make(map[string]tape.Field, r.schema.Len())
	for _, f := range r.schema.Fields() {
		canonical[tape.CanonicalKey(f.Name)] = f
	}

	mapping := make(map[int]tape.Field)
	bound := make(map[string]bool)
	for col, cell := range header {
		name := tape.NormalizeColumn(cell)
		if name == "" {
			continue
		}
		field, ok := r.schema.Field(name)
		if !ok {
			field, ok = canonical[tape.CanonicalKey(cell)]
		}
		if !ok || bound[field.Name] {
			continue
		}
		mapping[col] = field
		bound[field.Name] = true
	}
	return mapping
}

// buildRecords converts data rows into typed records, skipping rows with a
// blank loan number (separator rows, totals rows).
func (r *Reader) buildRecords(rows [][]string, mapping map[int]tape.Field) ([]tape.Record, error) {
	var records []tape.Record
	skipped := 0
	for _, row := range rows {
		values := make(map[string]tape.Value, len(mapping))
		id := ""
		for col, field := range mapping {
			raw := ""
			if col < len(row) {
				raw = strings.TrimSpace(row[col])
			}
			v := parseCell(field, raw)
			values[field.Name] = v
			if field.Name == "loan_number" && !v.Missing {
				id = v.Str
			}
		}
		if id == "" {
			skipped++
			continue
		}
		records = append(records, tape.NewRecord(id, values))
	}
	if skipped > 0 {
		r.logger.Debug("skipped rows without a loan number", slog.Int("rows", skipped))
	}
	if len(records) == 0 {
		return nil, errors.NewIngestionError("tape contains no data rows", nil)
	}
	return records, nil
}

// parseCell converts one raw cell into a typed value. Unparseable cells
// become missing markers that preserve the raw text.
func parseCell(field tape.Field, raw string) tape.Value {
	if raw == "" {
		return tape.MissingValue(field.Type, "")
	}
	switch field.Type {
	case tape.TypeString:
		return tape.StringValue(raw)
	case tape.TypeInteger:
		f, err := parseNumber(raw)
		if err != nil || f != math.Trunc(f) {
			return tape.MissingValue(field.Type, raw)
		}
		return tape.IntValue(int64(f))
	case tape.TypeDecimal:
		f, err := parseNumber(raw)
		if err != nil {
			return tape.MissingValue(field.Type, raw)
		}
		return tape.DecimalValue(f)
	case tape.TypeDate:
		if t, ok := parseDate(raw); ok {
			return tape.DateValue(t)
		}
		return tape.MissingValue(field.Type, raw)
	case tape.TypeBoolean:
		if b, ok := parseBool(raw); ok {
			return tape.BoolValue(b)
		}
		return tape.MissingValue(field.Type, raw)
	}
	return tape.MissingValue(field.Type, raw)
}

// parseNumber parses a cell as a float, tolerating currency formatting:
// dollar signs, thousands separators, percent signs (divided out) and
// accounting-style parentheses for negatives.
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if percent {
		f /= 100
	}
	if negative {
		f = -f
	}
	return f, nil
}

// parseDate parses a cell as a date: known text layouts first, then a raw
// xlsx serial number.
func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// serial dates survive GetRows on unformatted cells
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 59 && serial < 200000 {
		return excelEpoch.AddDate(0, 0, int(serial)), true
	}
	return time.Time{}, false
}

// parseBool parses a cell as a yes/no indicator
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "t", "1":
		return true, true
	case "n", "no", "false", "f", "0":
		return false, true
	}
	return false, false
}
