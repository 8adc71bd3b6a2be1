package snapshot

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	fontFamily = "Arial"
	lineHeight = 5.0
)

// WritePDF draws l as an A4 PDF. The document creation date is pinned to
// generatedAt so identical input produces identical bytes.
func WritePDF(l *Layout, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New(l.Orientation, "mm", "A4", "")
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(true)
	pdf.SetTitle(l.Title, true)
	pdf.SetCreator("approvals", true)
	pdf.AliasNbPages("{nb}")

	margin := 15.0
	if l.Orientation == "L" {
		margin = 10
	}
	pdf.SetMargins(margin, 15, margin)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if len(l.Letterhead) > 0 {
		pdf.SetHeaderFunc(func() {
			pdf.SetFont(fontFamily, "B", 16)
			pdf.CellFormat(0, 10, tr(l.Letterhead[0]), "", 1, "C", false, 0, "")
			pdf.SetFont(fontFamily, "", 10)
			for _, line := range l.Letterhead[1:] {
				pdf.CellFormat(0, 6, tr(line), "", 1, "C", false, 0, "")
			}
			pdf.Ln(5)
		})
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 5, "Generated: "+l.Generated, "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*margin
	half := contentWidth / 2

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 8, tr(l.Title), "", 1, "C", false, 0, "")
	if l.Subtitle != "" {
		pdf.SetFont(fontFamily, "B", 12)
		pdf.CellFormat(0, 6, tr(l.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	if l.Section != "" {
		pdf.SetFont(fontFamily, "B", 11)
		pdf.CellFormat(0, 6, tr(l.Section), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	for _, f := range l.Fields {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(l.LabelWidth, lineHeight, tr(f.Label), "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.CellFormat(0, lineHeight, tr(l.FieldSeparator+f.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	var tableWidth float64
	pdf.SetFont(fontFamily, "B", 7)
	for _, col := range l.Columns {
		tableWidth += col.Width
		pdf.CellFormat(col.Width, 4, tr(fit(pdf, col.Title, col.Width)), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(fontFamily, "", 7)
	for _, row := range l.Rows {
		for i, col := range l.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(col.Width, 4, tr(fit(pdf, cell, col.Width)), "1", 0, col.Align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont(fontFamily, "B", 8)
	if l.TotalLabel != "" {
		labelWidth := tableWidth
		if n := len(l.Columns); n > 0 {
			labelWidth -= l.Columns[n-1].Width
		}
		pdf.CellFormat(labelWidth, 5, tr(l.TotalLabel), "1", 0, "L", false, 0, "")
		pdf.CellFormat(tableWidth-labelWidth, 5, l.Total, "1", 1, "R", false, 0, "")
		pdf.SetFont(fontFamily, "", 8)
		pdf.MultiCell(tableWidth, 4, tr(l.AmountInWords), "1", "L", false)
	} else {
		pdf.CellFormat(tableWidth, 5, l.Total, "1", 1, "R", false, 0, "")
		pdf.Ln(2)
		pdf.SetFont(fontFamily, "B", 10)
		pdf.MultiCell(0, 6, tr(l.AmountInWords), "", "L", false)
	}
	pdf.Ln(3)

	for _, b := range l.Blocks {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(0, 6, tr(b.Label), "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.MultiCell(0, 6, tr(b.Value), "", "L", false)
	}
	pdf.Ln(3)

	for _, s := range l.Signatures {
		pdf.SetFont(fontFamily, "B", 9)
		pdf.CellFormat(half, 6, tr(fit(pdf, s.Left.Label, half)), "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 6, tr(fit(pdf, s.Right.Label, half)), "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.CellFormat(half, 6, tr(s.Left.Value), "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 6, tr(s.Right.Value), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fit shortens s until it fits a cell of width w at the current font.
func fit(pdf *fpdf.Fpdf, s string, w float64) string {
	const padding = 2
	if pdf.GetStringWidth(s) <= w-padding {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > w-padding {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
