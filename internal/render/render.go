// Package render turns tables and markdown into text for chat answers and the
// terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Markdown renders up to maxRows rows of t as a markdown table. Numbers get
// thousands separators and no decimals; nulls are blank. maxRows <= 0 means all.
func Markdown(t *table.Table, maxRows int) string {
	if t == nil || t.Len() == 0 {
		return ""
	}
	return writer(t, maxRows).RenderMarkdown()
}

// Box writes t as a box-drawn table followed by a row count.
func Box(w io.Writer, t *table.Table, maxRows int) {
	if t == nil || t.Len() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}
	tw := writer(t, maxRows)
	tw.SetOutputMirror(w)
	tw.SetStyle(prettytable.StyleLight)
	tw.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", t.Len())
}

// Pairs writes two-column key/value rows as a box table.
func Pairs(w io.Writer, header [2]string, rows [][2]string) {
	grid := make([][]string, len(rows))
	for i, r := range rows {
		grid[i] = []string{r[0], r[1]}
	}
	Rows(w, header[:], grid)
}

// Rows writes string rows under header as a box table.
func Rows(w io.Writer, header []string, rows [][]string) {
	tw := prettytable.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(prettytable.StyleLight)
	h := make(prettytable.Row, len(header))
	for i, c := range header {
		h[i] = c
	}
	tw.AppendHeader(h)
	for _, r := range rows {
		row := make(prettytable.Row, len(r))
		for i, c := range r {
			row[i] = cell(c)
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func writer(t *table.Table, maxRows int) prettytable.Writer {
	cols := t.Columns()
	tw := prettytable.NewWriter()
	header := make(prettytable.Row, len(cols))
	for i, c := range cols {
		header[i] = cell(c)
	}
	tw.AppendHeader(header)
	n := t.Len()
	if maxRows > 0 && maxRows < n {
		n = maxRows
	}
	for i := 0; i < n; i++ {
		row := make(prettytable.Row, len(cols))
		for j, c := range cols {
			row[j] = cell(t.At(i, c).Display())
		}
		tw.AppendRow(row)
	}
	return tw
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/")
}

// Terminal renders markdown for a terminal of the given width. On renderer
// failure the markdown is returned unchanged.
func Terminal(md string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
