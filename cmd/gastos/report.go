package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/gastos/internal/export"
	"github.com/kalambet/gastos/internal/report"
)

var reportNow = time.Now

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a client's billing report",
	Long: `Generate a client's billing report.

Examples:
  gastos report --client Ana
  gastos report --client Ana --project Cocina --format pdf
  gastos report --client Ana --sheets`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientRef, _ := cmd.Flags().GetString("client")
		project, _ := cmd.Flags().GetString("project")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		toSheets, _ := cmd.Flags().GetBool("sheets")

		if format != "html" && format != "pdf" {
			return fmt.Errorf("--format must be html or pdf")
		}

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := resolveClient(a.ledger, clientRef)
		if err != nil {
			return err
		}
		doc, err := a.ledger.Document()
		if err != nil {
			return err
		}
		s := report.Build(doc, c.ID, project, reportNow())

		if toSheets {
			exp, err := export.NewSheetsExporter(cmd.Context(), export.SheetsConfig{
				SpreadsheetID:   cfg.Sheets.SpreadsheetID,
				SheetName:       cfg.Sheets.SheetName,
				CredentialsFile: cfg.Sheets.CredentialsFile,
			})
			if err != nil {
				return err
			}
			if err := exp.Export(cmd.Context(), s); err != nil {
				return err
			}
			printSuccess("Report exported to spreadsheet %s", cfg.Sheets.SpreadsheetID)
			return nil
		}

		var buf bytes.Buffer
		if format == "pdf" {
			err = report.RenderPDF(&buf, s)
		} else {
			err = report.RenderHTML(&buf, s)
		}
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}

		if output == "" {
			output = report.FileName(s, format)
		}
		if output == "-" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		printSuccess("Report saved to %s", output)
		printStatus("Pendiente", "%s", report.Money(s.TotalPending))
		printStatus("Pagado", "%s", report.Money(s.TotalPaid))
		printStatus("Total", "%s", report.Money(s.TotalGeneral))
		return nil
	},
}

func init() {
	reportCmd.Flags().String("client", "", "client id or name")
	reportCmd.Flags().String("project", "", "only include this project")
	reportCmd.Flags().String("format", "html", "html or pdf")
	reportCmd.Flags().StringP("output", "o", "", "output path, - for stdout (default: Reporte_<client>_<date>.<format>)")
	reportCmd.Flags().Bool("sheets", false, "write the report to the configured Google Sheets tab instead")
}
