package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Accepted header names, matched case-insensitively.
var (
	productHeaders   = []string{"product_id", "productid", "product", "product_code"}
	quantityHeaders  = []string{"quantity", "qty", "sales", "demand"}
	timestampHeaders = []string{"created_at", "createdat", "date", "timestamp"}
)

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01-02-06",
	"2006/01/02",
}

// FileSource reads demand records from a spreadsheet export (.xlsx) or a CSV file.
// The first row is a header naming the product, quantity and timestamp columns.
type FileSource struct {
	// Path to the .xlsx or .csv file (required)
	Path string

	// Sheet selects the worksheet for .xlsx files. Empty means the first sheet.
	Sheet string
}

func (f *FileSource) Name() string { return "file" }

// Collect reads the file and returns its records sorted by timestamp.
func (f *FileSource) Collect(ctx context.Context) (*DemandFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := f.readRows()
	if err != nil {
		return nil, err
	}
	return parseRows(rows)
}

func (f *FileSource) readRows() ([][]string, error) {
	if f.Path == "" {
		return nil, errors.New("file source: path is required")
	}

	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".xlsx":
		wb, err := excelize.OpenFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer wb.Close()

		sheet := f.Sheet
		if sheet == "" {
			sheet = wb.GetSheetName(0)
		}
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		return rows, nil

	case ".csv":
		file, err := os.Open(f.Path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		defer file.Close()

		r := csv.NewReader(file)
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		return rows, nil

	default:
		return nil, fmt.Errorf("unsupported file type %q (must be .xlsx or .csv)", filepath.Ext(f.Path))
	}
}

func parseRows(rows [][]string) (*DemandFrame, error) {
	if len(rows) == 0 {
		return nil, errors.New("file has no header row")
	}

	header := rows[0]
	productIdx := findColumn(header, productHeaders...)
	quantityIdx := findColumn(header, quantityHeaders...)
	timestampIdx := findColumn(header, timestampHeaders...)

	var missing []string
	if productIdx < 0 {
		missing = append(missing, "product_id")
	}
	if quantityIdx < 0 {
		missing = append(missing, "quantity")
	}
	if timestampIdx < 0 {
		missing = append(missing, "created_at")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	records := make([]DemandRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if isBlank(row) {
			continue
		}

		product := cell(row, productIdx)
		if product == "" {
			return nil, fmt.Errorf("row %d: empty product id", line)
		}
		qty, err := strconv.ParseFloat(cell(row, quantityIdx), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid quantity %q", line, cell(row, quantityIdx))
		}
		ts, err := parseFileTimestamp(cell(row, timestampIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		records = append(records, DemandRecord{ProductID: product, Quantity: qty, CreatedAt: ts})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return &DemandFrame{Records: records}, nil
}

func findColumn(header []string, names ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseFileTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
