package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont      = "Arial"
	pdfFontSize  = 9.0
	pdfPageWidth = 190.0 // A4 portrait minus margins
	pdfPageLimit = 297.0 - 15.0
)

// WritePDF renders the markdown summary as an A4 document
func WritePDF(w io.Writer, summary string, meta Meta) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Runner Usage Report - %s", meta.Org), true)
	pdf.SetSubject(meta.ID, true)
	pdf.SetCreator("runner-usage", true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont(pdfFont, "", pdfFontSize)

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	source := []byte(summary)
	doc := md.Parser().Parse(text.NewReader(source))

	r := &pdfRenderer{
		pdf:    pdf,
		source: source,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, r.walk); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}

	return pdf.Output(w)
}

// pdfRenderer walks a goldmark AST and draws the nodes the summary uses
type pdfRenderer struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
	depth  int
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, pdfFontSize)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 10.0
			switch node.Level {
			case 1:
				size = 14
			case 2:
				size = 12
			}
			r.pdf.SetFont(pdfFont, "B", size)
			r.pdf.Write(6, r.tr(nodeText(node, r.source)))
			r.pdf.Ln(8)
			r.updateFont()
		}
		return ast.WalkSkipChildren, nil
	case *ast.Paragraph:
		if !entering && r.depth == 0 {
			r.pdf.Ln(6)
		}
	case *ast.TextBlock:
		// list item content; the item handles line breaks
	case *ast.Text:
		if entering {
			txt := string(node.Segment.Value(r.source))
			if node.SoftLineBreak() {
				txt += " "
			}
			r.pdf.Write(5, r.tr(txt))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", pdfFontSize)
			r.pdf.Write(5, r.tr(nodeText(node, r.source)))
			r.updateFont()
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.depth++
		} else {
			r.depth--
			r.pdf.Ln(7)
		}
	case *ast.ListItem:
		if entering {
			if node.PreviousSibling() != nil {
				r.pdf.Ln(5)
			}
			r.pdf.SetX(12 + float64(r.depth)*4)
			r.pdf.Write(5, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(10, r.pdf.GetY(), 200, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	case *extast.Table:
		if entering {
			r.renderTable(tableRows(node, r.source))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func tableRows(table *extast.Table, source []byte) [][]string {
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		var row []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if _, ok := cell.(*extast.TableCell); ok {
				row = append(row, nodeText(cell, source))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// renderTable draws rows with the first row as header; cells are truncated to fit
func (r *pdfRenderer) renderTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	const (
		fontSize   = 7.0
		lineHeight = 5.0
	)

	widths := r.columnWidths(rows, fontSize)
	r.pdf.Ln(2)

	for i, row := range rows {
		if r.pdf.GetY()+lineHeight > pdfPageLimit {
			r.pdf.AddPage()
		}
		if i == 0 {
			r.pdf.SetFont(pdfFont, "B", fontSize)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont(pdfFont, "", fontSize)
			r.pdf.SetFillColor(255, 255, 255)
		}
		for j := range widths {
			cell := ""
			if j < len(row) {
				cell = r.fit(r.tr(row[j]), widths[j]-2)
			}
			r.pdf.CellFormat(widths[j], lineHeight, cell, "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(-1)
	}

	r.pdf.Ln(3)
	r.updateFont()
}

// columnWidths sizes columns by content, scaled down to the page width
func (r *pdfRenderer) columnWidths(rows [][]string, fontSize float64) []float64 {
	widths := make([]float64, len(rows[0]))
	r.pdf.SetFont(pdfFont, "B", fontSize)
	for _, row := range rows {
		for j, cell := range row {
			if j >= len(widths) {
				break
			}
			if w := r.pdf.GetStringWidth(r.tr(cell)) + 4; w > widths[j] {
				widths[j] = w
			}
		}
	}

	total := 0.0
	for j := range widths {
		if widths[j] < 12 {
			widths[j] = 12
		}
		total += widths[j]
	}
	if total > pdfPageWidth {
		scale := pdfPageWidth / total
		for j := range widths {
			widths[j] *= scale
		}
	}
	return widths
}

// fit truncates s with an ellipsis until it fits width
func (r *pdfRenderer) fit(s string, width float64) string {
	if r.pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && r.pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// nodeText concatenates the text segments below n
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
