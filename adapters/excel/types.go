package excel

// RawRowData represents a row of raw Excel data as string key-value pairs
type RawRowData map[string]string

// ExcelData represents the complete Excel dataset
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// Sheet names of the result workbook.
const (
	SheetSummary  = "Summary"
	SheetBand     = "ExpectedBand"
	SheetAsimov   = "AsimovScan"
	SheetData     = "DataScan"
	SheetSigma    = "SigmaScan"
	SheetPulls    = "Pulls"
	defaultSheet  = "Sheet1"
	defaultWeight = 1.0
)
