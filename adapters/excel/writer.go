package excel

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"xelimit/domain/limits"
	"xelimit/ports"
)

// ResultWriter writes one xlsx workbook per mass point.
type ResultWriter struct {
	dir string
}

func NewResultWriter(dir string) *ResultWriter {
	return &ResultWriter{dir: dir}
}

var _ ports.ResultWriter = (*ResultWriter)(nil)

// FileName is the workbook name for a result.
func FileName(res *limits.Result) string {
	return fmt.Sprintf("%s_m%g_%s.xlsx", res.ModelName, res.Mass, res.ID)
}

// WriteResult stores the band, the observed limits, the scans and the pulls,
// returning the workbook path.
func (w *ResultWriter) WriteResult(ctx context.Context, res *limits.Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummary(f, res); err != nil {
		return "", err
	}
	if err := writeBand(f, res); err != nil {
		return "", err
	}
	scans := []struct {
		sheet  string
		points []limits.ScanPoint
	}{
		{SheetAsimov, res.AsimovScan},
		{SheetData, res.DataScan},
		{SheetSigma, res.SigmaScan},
	}
	for _, s := range scans {
		if err := writeScan(f, s.sheet, s.points); err != nil {
			return "", err
		}
	}
	if err := writePulls(f, res.Pulls); err != nil {
		return "", err
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return "", fmt.Errorf("failed to drop default sheet: %w", err)
	}

	path := filepath.Join(w.dir, FileName(res))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save result workbook: %w", err)
	}
	log.Printf("[ResultWriter] Wrote %s", path)
	return path, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, res *limits.Result) error {
	rows := [][]interface{}{
		{"key", "value"},
		{"id", res.ID.String()},
		{"model", res.ModelName},
		{"mass", res.Mass},
		{"alt_x", res.AltX},
		{"confidence_level", res.CL},
		{"sigma0", res.Sensitivity.Sigma0},
		{"median_mu", res.Sensitivity.MedianMu},
		{"created_at", res.CreatedAt.Format("2006-01-02T15:04:05Z07:00")},
	}
	if res.HasObserved {
		o := res.Observed
		rows = append(rows,
			[]interface{}{"mu_hat", o.MuHat},
			[]interface{}{"observed_cls", o.CLs},
			[]interface{}{"observed_cls_found", o.CLsFound},
			[]interface{}{"observed_no_cls", o.NoCLs},
			[]interface{}{"observed_no_cls_found", o.NoCLsFound},
		)
	}
	return writeRows(f, SheetSummary, rows)
}

// writeBand stores the band as median with asymmetric errors, one row per
// mass, so several workbooks can be stacked into a limit curve.
func writeBand(f *excelize.File, res *limits.Result) error {
	b := res.Sensitivity.Band
	return writeRows(f, SheetBand, [][]interface{}{
		{"mass", "alt_x", "median", "err_low_1", "err_high_1", "err_low_2", "err_high_2", "observed_cls", "observed_no_cls"},
		{res.Mass, res.AltX, b.Median, b.Median - b.Minus1, b.Plus1 - b.Median, b.Median - b.Minus2, b.Plus2 - b.Median, res.Observed.CLs, res.Observed.NoCLs},
	})
}

func writeScan(f *excelize.File, sheet string, points []limits.ScanPoint) error {
	rows := [][]interface{}{{"mu", "q", "p_sb", "p_b", "sigma"}}
	for _, p := range points {
		rows = append(rows, []interface{}{p.Mu, p.Q, p.PSB, p.PB, p.Sigma})
	}
	return writeRows(f, sheet, rows)
}

func writePulls(f *excelize.File, pulls []limits.Pulls) error {
	rows := [][]interface{}{{"label", "parameter", "before", "after"}}
	for _, p := range pulls {
		after := make(map[string]float64, len(p.After))
		for _, v := range p.After {
			after[v.Name] = v.Value
		}
		for _, v := range p.Before {
			rows = append(rows, []interface{}{p.Label, v.Name, v.Value, after[v.Name]})
		}
	}
	return writeRows(f, SheetPulls, rows)
}
