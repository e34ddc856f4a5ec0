package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/kalambet/gastos/internal/ledger"
)

const (
	pageMargin = 15.0
	lineHeight = 6.0
)

// Column widths in mm for an A4 portrait page (180mm usable).
var pdfColumns = []struct {
	title string
	width float64
}{
	{"Fecha", 22},
	{"Tienda", 38},
	{"Items", 58},
	{"Categoría", 24},
	{"Monto", 20},
	{"Estado", 18},
}

// RenderPDF writes the report as a printable A4 PDF with the same sections
// as the HTML version.
func RenderPDF(w io.Writer, s Summary) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCreationDate(s.GeneratedAt)
	pdf.SetTitle("Reporte de Gastos - "+s.ClientName(), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(37, 99, 235)
	pdf.CellFormat(0, 10, tr("Reporte de Gastos - Servicios de Remodelación"), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(0, lineHeight, tr("Fecha del reporte: "+LongDate(s.GeneratedAt)), "B", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Client
	pdf.SetTextColor(31, 41, 55)
	if c := s.Client; c != nil {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, lineHeight+1, "Cliente", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, lineHeight, tr(c.Name), "", 1, "L", false, 0, "")
		if c.Email != "" {
			pdf.CellFormat(0, lineHeight, tr("Email: "+c.Email), "", 1, "L", false, 0, "")
		}
		if c.Phone != "" {
			pdf.CellFormat(0, lineHeight, tr("Teléfono: "+c.Phone), "", 1, "L", false, 0, "")
		}
		if s.Project != "" {
			pdf.CellFormat(0, lineHeight, tr("Proyecto: "+s.Project), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	// Summary
	pdf.SetFillColor(254, 243, 199)
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(146, 64, 14)
	pdf.CellFormat(0, lineHeight+2, "Resumen de Gastos", "", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(31, 41, 55)
	summaryLine(pdf, "Total Pagado:", Money(s.TotalPaid))
	summaryLine(pdf, "Total Pendiente:", Money(s.TotalPending))
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(220, 38, 38)
	summaryLine(pdf, "TOTAL GENERAL:", Money(s.TotalGeneral))
	pdf.Ln(6)

	invoiceTable(pdf, tr, "Detalle de Facturas Pendientes", s.Pending, "PENDIENTE")
	if len(s.Paid) > 0 {
		pdf.Ln(6)
		invoiceTable(pdf, tr, "Facturas Pagadas", s.Paid, "PAGADA")
	}

	// Footer
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(0, 5, tr("Este reporte fue generado automáticamente."), "T", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, tr("Para cualquier consulta o aclaración, por favor contacte a su proveedor de servicios."), "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering pdf report: %w", err)
	}
	return nil
}

func summaryLine(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(120, lineHeight+1, label, "", 0, "L", true, 0, "")
	pdf.CellFormat(0, lineHeight+1, value, "", 1, "R", true, 0, "")
}

func invoiceTable(pdf *gofpdf.Fpdf, tr func(string) string, title string, invoices []ledger.Invoice, state string) {
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(31, 41, 55)
	pdf.CellFormat(0, lineHeight+2, title, "", 1, "L", false, 0, "")

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(37, 99, 235)
		pdf.SetTextColor(255, 255, 255)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, lineHeight+1, tr(col.title), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(31, 41, 55)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for _, inv := range invoices {
		if pdf.GetY()+lineHeight > pageHeight-pageMargin-lineHeight {
			pdf.AddPage()
			header()
		}
		store := inv.Store
		if inv.Number != "" {
			store += " #" + inv.Number
		}
		items := strings.Join(inv.Items, ", ")
		if inv.Notes != "" {
			if items != "" {
				items += " / "
			}
			items += inv.Notes
		}
		category := inv.Category
		if category == "" {
			category = "-"
		}
		cells := []string{ShortDate(inv.Date), store, items, category, Money(inv.Total.Decimal()), state}
		for i, col := range pdfColumns {
			align := "L"
			if i == 4 {
				align = "R"
			}
			pdf.CellFormat(col.width, lineHeight, fit(pdf, tr(cells[i]), col.width-2), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// fit truncates s so it renders within width at the current font.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
