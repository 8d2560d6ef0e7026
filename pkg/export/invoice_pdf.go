package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

// InvoicePDFRenderer renders a single invoice document with seller/buyer
// blocks, an items table and a totals block.
type InvoicePDFRenderer struct{}

// NewInvoicePDFRenderer constructs an invoice renderer.
func NewInvoicePDFRenderer() *InvoicePDFRenderer {
	return &InvoicePDFRenderer{}
}

// Render produces the PDF bytes for an invoice and its items.
func (r *InvoicePDFRenderer) Render(invoice *models.Invoice) ([]byte, error) {
	if invoice == nil {
		return nil, fmt.Errorf("invoice nil")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(16, 16, 16)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle(fmt.Sprintf("Invoice %s", invoice.InvoiceNo), false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, fmt.Sprintf("Invoice %s", invoice.InvoiceNo), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	meta := fmt.Sprintf("Date: %s    Status: %s    Type: %s",
		invoice.InvoiceDate.Format("2006-01-02"), invoice.Status, invoice.InvoiceType)
	pdf.CellFormat(0, 6, meta, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	r.renderParties(pdf, invoice)
	pdf.Ln(6)
	r.renderItems(pdf, invoice.Items)
	pdf.Ln(4)
	r.renderTotals(pdf, invoice)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *InvoicePDFRenderer) renderParties(pdf *gofpdf.Fpdf, invoice *models.Invoice) {
	colWidth := (210.0 - 32.0) / 2

	pdf.SetFillColor(245, 245, 245)
	pdf.SetDrawColor(211, 211, 211)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(colWidth, 7, "Seller", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colWidth, 7, "Buyer", "1", 1, "L", true, 0, "")

	sellerLines := []string{invoice.SellerName, "VAT: " + invoice.SellerVATNumber}
	if invoice.SellerCRNumber != "" {
		sellerLines = append(sellerLines, "CR: "+invoice.SellerCRNumber)
	}
	if invoice.SellerAddress != "" {
		sellerLines = append(sellerLines, invoice.SellerAddress)
	}
	city := strings.TrimSpace(invoice.SellerCity)
	postal := strings.TrimSpace(invoice.SellerPostalCode)
	switch {
	case city != "" && postal != "":
		sellerLines = append(sellerLines, city+", "+postal)
	case city != "":
		sellerLines = append(sellerLines, city)
	case postal != "":
		sellerLines = append(sellerLines, postal)
	}
	if invoice.SellerPhone != "" {
		sellerLines = append(sellerLines, "Phone: "+invoice.SellerPhone)
	}
	if invoice.SellerEmail != "" {
		sellerLines = append(sellerLines, "Email: "+invoice.SellerEmail)
	}

	buyerLines := []string{invoice.BuyerName}
	if invoice.BuyerVATNumber != "" {
		buyerLines = append(buyerLines, "VAT: "+invoice.BuyerVATNumber)
	}
	if invoice.BuyerNationalAddress != "" {
		buyerLines = append(buyerLines, strings.Split(invoice.BuyerNationalAddress, "\n")...)
	}

	rows := len(sellerLines)
	if len(buyerLines) > rows {
		rows = len(buyerLines)
	}
	blockHeight := float64(rows)*4.5 + 4

	x, y := pdf.GetX(), pdf.GetY()
	pdf.Rect(x, y, colWidth, blockHeight, "D")
	pdf.Rect(x+colWidth, y, colWidth, blockHeight, "D")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(x+2, y+2)
	pdf.MultiCell(colWidth-4, 4.5, strings.Join(sellerLines, "\n"), "", "L", false)
	pdf.SetXY(x+colWidth+2, y+2)
	pdf.MultiCell(colWidth-4, 4.5, strings.Join(buyerLines, "\n"), "", "L", false)
	pdf.SetXY(x, y+blockHeight)
}

func (r *InvoicePDFRenderer) renderItems(pdf *gofpdf.Fpdf, items []models.InvoiceItem) {
	headers := []string{"Student", "Description", "Qty", "Unit", "Subtotal", "VAT", "Total"}
	widths := []float64{32, 64, 10, 16, 18, 18, 20}

	pdf.SetFillColor(241, 245, 249)
	pdf.SetDrawColor(211, 211, 211)
	pdf.SetFont("Helvetica", "B", 9)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range items {
		studentLabel := item.StudentRegNo
		if studentLabel == "" {
			studentLabel = item.StudentID
		}
		rowHeight := 9.0

		x, y := pdf.GetX(), pdf.GetY()
		for i := range headers {
			pdf.Rect(x, y, widths[i], rowHeight, "D")
			x += widths[i]
		}

		x = pdf.GetX()
		pdf.SetXY(x+1, y+1)
		pdf.SetFont("Helvetica", "B", 8)
		pdf.CellFormat(widths[0]-2, 3.5, studentLabel, "", 2, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(widths[0]-2, 3.5, item.StudentName, "", 0, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)

		pdf.SetFont("Helvetica", "", 9)
		pdf.SetXY(x+widths[0]+1, y+1)
		pdf.CellFormat(widths[1]-2, 7, item.Description, "", 0, "L", false, 0, "")

		offset := widths[0] + widths[1]
		values := []string{
			fmt.Sprintf("%d", item.Qty),
			item.UnitPrice.StringFixed(2),
			item.LineSubtotal.StringFixed(2),
			item.LineVAT.StringFixed(2),
			item.LineTotal.StringFixed(2),
		}
		for i, value := range values {
			pdf.SetXY(x+offset, y+1)
			pdf.CellFormat(widths[i+2]-1, 7, value, "", 0, "R", false, 0, "")
			offset += widths[i+2]
		}

		pdf.SetXY(x, y+rowHeight)
	}
}

func (r *InvoicePDFRenderer) renderTotals(pdf *gofpdf.Fpdf, invoice *models.Invoice) {
	labelWidth, valueWidth := 40.0, 30.0
	left := 210.0 - 16.0 - labelWidth - valueWidth

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetX(left)
	pdf.CellFormat(labelWidth, 7, "Subtotal", "", 0, "L", false, 0, "")
	pdf.CellFormat(valueWidth, 7, invoice.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetX(left)
	pdf.CellFormat(labelWidth, 7, "VAT", "", 0, "L", false, 0, "")
	pdf.CellFormat(valueWidth, 7, invoice.VATAmount.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.Line(left, pdf.GetY(), left+labelWidth+valueWidth, pdf.GetY())

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetX(left)
	pdf.CellFormat(labelWidth, 7, "Grand Total (SAR)", "", 0, "L", false, 0, "")
	pdf.CellFormat(valueWidth, 7, invoice.Total.StringFixed(2), "", 1, "R", false, 0, "")
}
