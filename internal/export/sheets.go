// Package export copies billing reports into a Google Sheets tab.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/kalambet/gastos/internal/report"
)

const defaultSheetName = "Reporte"

// SheetsConfig selects the target spreadsheet and tab.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

// SheetsExporter overwrites one tab with the rows of a report.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsExporter creates an exporter authenticated with a service
// account file. Extra options are appended (tests point it at a fake endpoint).
func NewSheetsExporter(ctx context.Context, cfg SheetsConfig, opts ...goption.ClientOption) (*SheetsExporter, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing sheets.spreadsheet_id")
	}

	var clientOpts []goption.ClientOption
	if cfg.CredentialsFile != "" {
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		clientOpts = append(clientOpts, goption.WithCredentialsJSON(credentialsJSON))
	}
	clientOpts = append(clientOpts, goption.WithScopes(gsheet.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = defaultSheetName
	}
	return &SheetsExporter{svc: svc, spreadsheetID: id, sheetName: name}, nil
}

// quoteSheet returns the A1-notation form of a tab name.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// sheetCell keeps USER_ENTERED from evaluating extracted text as a formula.
// Numbers pass through so amounts stay numeric.
func sheetCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '@':
		return "'" + v
	case '+', '-':
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "'" + v
		}
	}
	return v
}

// Export clears the tab and writes the report rows from A1.
func (e *SheetsExporter) Export(ctx context.Context, s report.Summary) error {
	tab := quoteSheet(e.sheetName)

	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, tab, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", e.sheetName, err)
	}

	rows := report.Rows(s)
	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = make([]any, len(row))
		for j, cell := range row {
			values[i][j] = sheetCell(cell)
		}
	}

	rng := tab + "!A1"
	_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write sheet %s: %w", e.sheetName, err)
	}

	slog.Info("report exported to sheets", "spreadsheet_id", e.spreadsheetID, "sheet", e.sheetName, "rows", len(rows))
	return nil
}
