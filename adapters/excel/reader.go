package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"xelimit/domain/sample"
	"xelimit/ports"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, sheet: defaultSheet}
}

// WithSheet selects the worksheet read from xlsx files.
func (r *DataReader) WithSheet(sheet string) *DataReader {
	if sheet != "" {
		r.sheet = sheet
	}
	return r
}

// ReadData reads data from Excel or CSV files into structured format
func (r *DataReader) ReadData() (*ExcelData, error) {
	log.Printf("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	// Check if file exists
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads Excel data from the selected sheet into structured format
func (r *DataReader) readExcelData() (*ExcelData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.sheet, err)
	}
	log.Printf("[DataReader] %s read in %.2fms (%d rows)", r.sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, fmt.Errorf("Excel file must have at least a header row")
	}

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comment = '#'
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	if len(rows) < 1 {
		return nil, fmt.Errorf("CSV file must have at least a header row")
	}

	return r.processRows(rows)
}

// processRows converts raw string rows into ExcelData format
func (r *DataReader) processRows(rows [][]string) (*ExcelData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		rowData := make(RawRowData)
		for j, cell := range rows[i] {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		dataRows = append(dataRows, rowData)
	}

	log.Printf("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &ExcelData{Headers: headers, Rows: dataRows}, nil
}

// SampleReader reads event samples from xlsx or CSV files.
type SampleReader struct{}

func NewSampleReader() *SampleReader { return &SampleReader{} }

var _ ports.SampleReader = (*SampleReader)(nil)

// ReadSample converts the x, y and optional weight columns into events.
// Blank rows are skipped; a non-numeric cell is an error naming the row.
func (s *SampleReader) ReadSample(ctx context.Context, src ports.SampleSource) (*sample.DataSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := NewDataReader(src.Path).WithSheet(src.Sheet).ReadData()
	if err != nil {
		return nil, err
	}
	return ToSample(data, src)
}

// ToSample converts already read rows.
func ToSample(data *ExcelData, src ports.SampleSource) (*sample.DataSample, error) {
	for _, col := range []string{src.XColumn, src.YColumn, src.WeightColumn} {
		if col != "" && !hasHeader(data.Headers, col) {
			return nil, fmt.Errorf("sample %s: column %q not found in %s", src.Name, col, src.Path)
		}
	}

	d := sample.New(src.Name, src.Role)
	for i, row := range data.Rows {
		if isBlank(row) {
			continue
		}
		x, err := parseCell(row, src.XColumn)
		if err != nil {
			return nil, fmt.Errorf("sample %s row %d: %w", src.Name, i+2, err)
		}
		y, err := parseCell(row, src.YColumn)
		if err != nil {
			return nil, fmt.Errorf("sample %s row %d: %w", src.Name, i+2, err)
		}
		w := defaultWeight
		if src.WeightColumn != "" {
			if w, err = parseCell(row, src.WeightColumn); err != nil {
				return nil, fmt.Errorf("sample %s row %d: %w", src.Name, i+2, err)
			}
		}
		d.Add(x, y, w)
	}
	return d, nil
}

func hasHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

func isBlank(row RawRowData) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func parseCell(row RawRowData, col string) (float64, error) {
	v, err := strconv.ParseFloat(row[col], 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q is not a number", col, row[col])
	}
	return v, nil
}
