package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/kalambet/gastos/internal/ledger"
)

//go:embed report.html.tmpl
var reportHTML string

type tableData struct {
	Invoices []ledger.Invoice
	Class    string
	Label    string
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"money":     Money,
	"longDate":  LongDate,
	"shortDate": ShortDate,
	"join":      strings.Join,
	"rows": func(invs []ledger.Invoice, class, label string) tableData {
		return tableData{Invoices: invs, Class: class, Label: label}
	},
}).Parse(reportHTML))

// RenderHTML writes the standalone HTML report. Every field is escaped.
func RenderHTML(w io.Writer, s Summary) error {
	if err := htmlTmpl.Execute(w, s); err != nil {
		return fmt.Errorf("rendering html report: %w", err)
	}
	return nil
}
