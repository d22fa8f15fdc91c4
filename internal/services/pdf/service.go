package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Service renders report PDFs. Reports are single-page: rendering is
// stopped with a logged warning once the content runs past the first
// page.
type Service struct {
	logger arbor.ILogger
}

func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// pageBottom is the usable A4 height in mm before content is cut off.
const pageBottom = 287.0

// RenderMarkdown renders a Markdown document to a one-page PDF. The
// supported subset covers headings H1-H3, paragraphs, inline code, code
// blocks, lists, tables, blockquotes, thematic breaks and hard breaks.
func (s *Service) RenderMarkdown(markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &pdfRenderer{
		pdf:    pdf,
		source: source,
		logger: s.logger,
		font:   "Arial",
		size:   9,
	}
	if err := renderer.render(doc); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	if renderer.truncated {
		s.logger.Warn().Msg("Report content exceeds one page and was truncated")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPlain draws pre-serialized text on a single page. Used as the
// fallback when no template is configured or template rendering fails.
func (s *Service) RenderPlain(content string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(0, 5, content, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf        *fpdf.Fpdf
	source     []byte
	logger     arbor.ILogger
	font       string
	size       float64
	bold       bool
	italic     bool
	inList     bool
	listLevel  int
	quoteLevel int
	truncated  bool
}

func (r *pdfRenderer) render(node ast.Node) error {
	return ast.Walk(node, r.walk)
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic || r.quoteLevel > 0 {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

// overflow marks the renderer truncated once the cursor leaves the
// first page; all remaining nodes are skipped.
func (r *pdfRenderer) overflow() bool {
	if r.pdf.GetY() >= pageBottom {
		r.truncated = true
	}
	return r.truncated
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if r.truncated {
		return ast.WalkStop, nil
	}

	switch n.Kind() {
	case ast.KindHeading:
		return r.handleHeading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		return r.handleParagraph(entering)
	case ast.KindText:
		return r.handleText(n.(*ast.Text), entering)
	case ast.KindEmphasis:
		return r.handleEmphasis(n.(*ast.Emphasis), entering)
	case ast.KindCodeSpan:
		return r.handleCodeSpan(n.(*ast.CodeSpan), entering)
	case ast.KindFencedCodeBlock:
		if entering {
			r.renderCodeBlock(n.(*ast.FencedCodeBlock).Lines())
			return ast.WalkSkipChildren, nil
		}
	case ast.KindCodeBlock:
		if entering {
			r.renderCodeBlock(n.(*ast.CodeBlock).Lines())
			return ast.WalkSkipChildren, nil
		}
	case ast.KindList:
		return r.handleList(entering)
	case ast.KindListItem:
		return r.handleListItem(entering)
	case ast.KindBlockquote:
		return r.handleBlockquote(entering)
	case ast.KindThematicBreak:
		if entering && !r.overflow() {
			r.pdf.Ln(2)
			r.pdf.Line(15, r.pdf.GetY(), 195, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	case extast.KindTable:
		return r.handleTable(n.(*extast.Table), entering)
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleHeading(n *ast.Heading, entering bool) (ast.WalkStatus, error) {
	if entering {
		if r.overflow() {
			return ast.WalkStop, nil
		}
		r.pdf.Ln(6)
		size := 10.0
		switch n.Level {
		case 1:
			size = 14
		case 2:
			size = 12
		case 3:
			size = 11
		}
		r.pdf.SetFont(r.font, "B", size)
	} else {
		r.pdf.Ln(6)
		r.updateFont()
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleParagraph(entering bool) (ast.WalkStatus, error) {
	if entering {
		if r.overflow() {
			return ast.WalkStop, nil
		}
		if r.quoteLevel > 0 {
			r.pdf.SetX(10 + float64(r.quoteLevel)*5)
		}
	} else {
		r.pdf.Ln(7)
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleText(n *ast.Text, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.Write(5, string(n.Text(r.source)))
		if n.HardLineBreak() || n.SoftLineBreak() {
			r.pdf.Ln(5)
			if r.quoteLevel > 0 {
				r.pdf.SetX(10 + float64(r.quoteLevel)*5)
			}
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleEmphasis(n *ast.Emphasis, entering bool) (ast.WalkStatus, error) {
	if n.Level == 2 {
		r.bold = entering
	} else {
		r.italic = entering
	}
	r.updateFont()
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleCodeSpan(n *ast.CodeSpan, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.SetFont("Courier", "", r.size)
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if textNode, ok := c.(*ast.Text); ok {
				r.pdf.Write(5, string(textNode.Segment.Value(r.source)))
			}
		}
	} else {
		r.updateFont()
	}
	return ast.WalkSkipChildren, nil
}

func (r *pdfRenderer) renderCodeBlock(lines *text.Segments) {
	if r.overflow() {
		return
	}
	r.pdf.Ln(2)
	r.pdf.SetFont("Courier", "", 9)
	r.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		if r.overflow() {
			break
		}
		line := lines.At(i)
		r.pdf.MultiCell(0, 5, string(line.Value(r.source)), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.updateFont()
	r.pdf.Ln(2)
}

func (r *pdfRenderer) handleList(entering bool) (ast.WalkStatus, error) {
	if entering {
		r.inList = true
		r.listLevel++
	} else {
		r.listLevel--
		if r.listLevel == 0 {
			r.inList = false
			r.pdf.Ln(2)
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleListItem(entering bool) (ast.WalkStatus, error) {
	if entering {
		if r.overflow() {
			return ast.WalkStop, nil
		}
		r.pdf.Ln(5)
		indent := float64(r.listLevel) * 5.0
		r.pdf.SetX(15 + indent)
		r.pdf.Write(5, "- ")
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleBlockquote(entering bool) (ast.WalkStatus, error) {
	if entering {
		if r.overflow() {
			return ast.WalkStop, nil
		}
		r.quoteLevel++
		r.pdf.Ln(2)
	} else {
		r.quoteLevel--
		r.pdf.Ln(2)
	}
	r.updateFont()
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleTable(n *extast.Table, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	if r.overflow() {
		return ast.WalkStop, nil
	}

	var rows [][]string
	var findRows func(node ast.Node)
	findRows = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			if tr, ok := child.(*extast.TableRow); ok {
				rows = append(rows, r.extractRow(tr))
			} else if _, ok := child.(*extast.TableHeader); ok {
				findRows(child)
			}
		}
	}
	findRows(n)

	r.renderTable(rows)
	return ast.WalkSkipChildren, nil
}

func (r *pdfRenderer) extractRow(n *extast.TableRow) []string {
	var row []string
	for cell := n.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); ok {
			row = append(row, string(cell.Text(r.source)))
		}
	}
	return row
}

func (r *pdfRenderer) renderTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	r.pdf.Ln(2)

	pageWidth := 190.0
	numCols := len(rows[0])
	colWidth := pageWidth / float64(numCols)
	fontSize := 8.0
	rowHeight := 6.0

	for i, row := range rows {
		if r.pdf.GetY()+rowHeight > pageBottom {
			r.truncated = true
			break
		}
		if i == 0 {
			r.pdf.SetFont(r.font, "B", fontSize)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont(r.font, "", fontSize)
			r.pdf.SetFillColor(255, 255, 255)
		}

		startY := r.pdf.GetY()
		startX := 10.0
		for j := 0; j < numCols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			x := startX + float64(j)*colWidth
			if i == 0 {
				r.pdf.Rect(x, startY, colWidth, rowHeight, "FD")
			} else {
				r.pdf.Rect(x, startY, colWidth, rowHeight, "D")
			}
			r.pdf.SetXY(x+1, startY+1)
			r.pdf.CellFormat(colWidth-2, rowHeight-2, r.fitCell(cell, colWidth-2), "", 0, "L", false, 0, "")
		}
		r.pdf.SetXY(startX, startY+rowHeight)
	}

	r.pdf.Ln(3)
	r.updateFont()
}

// fitCell truncates cell text to the column width with an ellipsis.
func (r *pdfRenderer) fitCell(cell string, width float64) string {
	if r.pdf.GetStringWidth(cell) <= width {
		return cell
	}
	for len(cell) > 3 && r.pdf.GetStringWidth(cell+"...") > width {
		cell = cell[:len(cell)-1]
	}
	return cell + "..."
}
