// Package report builds the per-client billing report.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kalambet/gastos/internal/ledger"
)

// Summary is everything a rendered report shows.
type Summary struct {
	Client      *ledger.Client
	Project     string
	GeneratedAt time.Time

	Pending []ledger.Invoice
	Paid    []ledger.Invoice

	TotalPending decimal.Decimal
	TotalPaid    decimal.Decimal
	TotalGeneral decimal.Decimal
}

// Build selects the client's invoices (narrowed to project when set),
// partitions them by paid state and sums each side. Totals coerce
// non-numeric amounts to zero.
func Build(doc ledger.Document, clientID ledger.ID, project string, now time.Time) Summary {
	s := Summary{
		Project:      project,
		GeneratedAt:  now,
		TotalPending: decimal.Zero,
		TotalPaid:    decimal.Zero,
	}
	for _, c := range doc.Clients {
		if c.ID == clientID {
			c := c
			s.Client = &c
			break
		}
	}

	for _, inv := range ledger.FilterInvoices(doc.Invoices, clientID, project) {
		if inv.Paid {
			s.Paid = append(s.Paid, inv)
			s.TotalPaid = s.TotalPaid.Add(inv.Total.Decimal())
		} else {
			s.Pending = append(s.Pending, inv)
			s.TotalPending = s.TotalPending.Add(inv.Total.Decimal())
		}
	}
	s.TotalGeneral = s.TotalPending.Add(s.TotalPaid)
	return s
}

// ClientName returns the client's name, or a placeholder for unknown clients.
func (s Summary) ClientName() string {
	if s.Client == nil || s.Client.Name == "" {
		return "Cliente"
	}
	return s.Client.Name
}

// FileName returns Reporte_<client>_<YYYY-MM-DD>.<ext>.
func FileName(s Summary, ext string) string {
	name := strings.NewReplacer("/", "-", `\`, "-").Replace(s.ClientName())
	return fmt.Sprintf("Reporte_%s_%s.%s", name, s.GeneratedAt.Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}

// Money formats an amount as $x.xx.
func Money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

var months = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// LongDate formats t as "14 de marzo de 2025".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d", t.Day(), months[t.Month()-1], t.Year())
}

// ShortDate turns an invoice date (YYYY-MM-DD) into d/m/yyyy. Anything
// unparsable is shown as stored.
func ShortDate(s string) string {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d/%d/%d", t.Day(), int(t.Month()), t.Year())
}

// Rows flattens the summary into a sheet: header, pending then paid
// invoices, a blank line and the three totals.
func Rows(s Summary) [][]string {
	rows := [][]string{{"Fecha", "Tienda", "Factura", "Items", "Notas", "Categoría", "Proyecto", "Monto", "Estado"}}
	add := func(inv ledger.Invoice, state string) {
		rows = append(rows, []string{
			inv.Date,
			inv.Store,
			inv.Number,
			strings.Join(inv.Items, ", "),
			inv.Notes,
			inv.Category,
			inv.Project,
			inv.Total.Decimal().StringFixed(2),
			state,
		})
	}
	for _, inv := range s.Pending {
		add(inv, "PENDIENTE")
	}
	for _, inv := range s.Paid {
		add(inv, "PAGADA")
	}
	rows = append(rows,
		[]string{},
		[]string{"Total Pagado", s.TotalPaid.StringFixed(2)},
		[]string{"Total Pendiente", s.TotalPending.StringFixed(2)},
		[]string{"TOTAL GENERAL", s.TotalGeneral.StringFixed(2)},
	)
	return rows
}
