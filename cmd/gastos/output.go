package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kalambet/gastos/internal/intake"
	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/report"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printClients(w io.Writer, clients []ledger.Client) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOMBRE\tEMAIL\tTELÉFONO")
	for _, c := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Email, c.Phone)
	}
	tw.Flush()
}

// printInvoices writes one row per invoice. Ledger rows show the paid
// state and project; inbox rows have neither.
func printInvoices(w io.Writer, invoices []ledger.Invoice, inbox bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if inbox {
		fmt.Fprintln(tw, "ID\tFECHA\tTIENDA\tTOTAL\tNÚMERO\tARCHIVO")
	} else {
		fmt.Fprintln(tw, "ID\tFECHA\tTIENDA\tTOTAL\tNÚMERO\tPROYECTO\tESTADO")
	}
	for _, inv := range invoices {
		total := report.Money(inv.Total.Decimal())
		if inbox {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", inv.ID, report.ShortDate(inv.Date), inv.Store, total, inv.Number, inv.FileName)
			continue
		}
		state := colorize(colorYellow, "Pendiente")
		if inv.Paid {
			state = colorize(colorGreen, "Pagada")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", inv.ID, report.ShortDate(inv.Date), inv.Store, total, inv.Number, inv.Project, state)
	}
	tw.Flush()
}

// printResults reports each file of a submission. Failures only show the
// generic alert; the detail goes to the log.
func printResults(results []intake.Result) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			printError("%s: %s", r.FileName, intake.UserMessage)
			continue
		}
		items := ""
		if len(r.Invoice.Items) > 0 {
			items = " (" + strings.Join(r.Invoice.Items, ", ") + ")"
		}
		printSuccess("%s: %s %s %s%s [%s]", r.FileName, r.Invoice.Store, report.ShortDate(r.Invoice.Date),
			report.Money(r.Invoice.Total.Decimal()), items, r.Invoice.ID)
	}
	return failed
}
