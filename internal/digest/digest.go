// Package digest turns a processed batch into the table sent to recipients.
package digest

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/ryosukesatoh/daily-digest/internal/item"
)

// Column is the presentation of one field.
type Column struct {
	Width string
	Align string
}

// Layout maps field names to their presentation. Fields without an entry use
// a 10vw left-aligned column.
type Layout map[string]Column

// DefaultLayout returns the presentation used for notification emails.
func DefaultLayout() Layout {
	return Layout{
		item.FieldThumbnailURL: {Width: "15vw", Align: "center"},
		item.FieldSummary:      {Width: "55vw", Align: "left"},
		item.FieldAuthor:       {Width: "5vw", Align: "left"},
		item.FieldDate:         {Width: "5vw", Align: "left"},
		item.FieldDescription:  {Width: "30vw", Align: "left"},
	}
}

// Override returns a copy of l with the columns of cols applied on top. An
// empty width or alignment keeps the value l had for that field.
func (l Layout) Override(cols Layout) Layout {
	out := make(Layout, len(l)+len(cols))
	for f, c := range l {
		out[f] = c
	}
	for f, c := range cols {
		base := out.column(f)
		if c.Width != "" {
			base.Width = c.Width
		}
		if c.Align != "" {
			base.Align = c.Align
		}
		out[f] = base
	}
	return out
}

func (l Layout) column(field string) Column {
	c, ok := l[field]
	if !ok {
		c = Column{Width: "10vw", Align: "left"}
	}
	if c.Width == "" {
		c.Width = "10vw"
	}
	if c.Align == "" {
		c.Align = "left"
	}
	return c
}

// Cell is one value of a row.
type Cell struct {
	Field string
	Value string
	Null  bool
}

// Row is one processed item.
type Row struct {
	// Link is the item link, kept even when the link column is ignored so
	// thumbnails can point at the item.
	Link  string
	Cells []Cell
}

// Value returns the cell of field, if the field is a column.
func (r Row) Value(field string) (string, bool) {
	for _, c := range r.Cells {
		if c.Field == field {
			return c.Value, !c.Null
		}
	}
	return "", false
}

// Digest is the tabular view of a batch.
type Digest struct {
	Header []string
	Rows   []Row
	layout Layout
}

// Render projects items into a digest. The columns are the fields of the
// first item, in order, minus ignore; every row uses the same columns.
func Render(items []item.Item, ignore []string, layout Layout) *Digest {
	if layout == nil {
		layout = DefaultLayout()
	}
	d := &Digest{layout: layout}
	if len(items) == 0 {
		return d
	}

	skip := make(map[string]bool, len(ignore))
	for _, f := range ignore {
		skip[f] = true
	}
	for _, f := range items[0].Fields() {
		if !skip[f.Name] {
			d.Header = append(d.Header, f.Name)
		}
	}

	for _, it := range items {
		fields := make(map[string]item.Field)
		for _, f := range it.Fields() {
			fields[f.Name] = f
		}
		row := Row{Link: it.Link}
		for _, name := range d.Header {
			f := fields[name]
			row.Cells = append(row.Cells, Cell{Field: name, Value: f.Value, Null: f.Null})
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

// Len returns the number of rows.
func (d *Digest) Len() int {
	return len(d.Rows)
}

// Text renders the digest as plain text, one block per row.
func (d *Digest) Text() string {
	var sb strings.Builder
	for i, row := range d.Rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d.\n", i+1)
		for _, c := range row.Cells {
			if c.Null || c.Value == "" {
				continue
			}
			fmt.Fprintf(&sb, "   %s: %s\n", c.Field, c.Value)
		}
	}
	return sb.String()
}

//go:embed email.html.tmpl
var emailTemplate string

var page = template.Must(template.New("digest").Parse(emailTemplate))

const (
	headerStyle = "padding:0;text-align:center;border:1px solid #ccc;background-color:#f2f2f2"
	cellStyle   = "padding:8px;border:1px solid #ccc"
)

type htmlHeader struct {
	Name  string
	Style template.CSS
}

type htmlCell struct {
	Style     template.CSS
	Text      string
	Markup    template.HTML
	Thumbnail string
	Link      string
}

// HTML renders the digest as an email body. Cell text is escaped; summaries
// are rendered from Markdown.
func (d *Digest) HTML(title string) (string, error) {
	headers := make([]htmlHeader, len(d.Header))
	for i, name := range d.Header {
		c := d.layout.column(name)
		headers[i] = htmlHeader{Name: name, Style: template.CSS(fmt.Sprintf("%s;width:%s", headerStyle, c.Width))}
	}

	rows := make([][]htmlCell, len(d.Rows))
	for i, row := range d.Rows {
		for _, cell := range row.Cells {
			c := d.layout.column(cell.Field)
			hc := htmlCell{Style: template.CSS(fmt.Sprintf("%s;text-align:%s;width:%s", cellStyle, c.Align, c.Width))}
			switch {
			case cell.Field == item.FieldThumbnailURL && cell.Value != "":
				hc.Thumbnail = cell.Value
				hc.Link = row.Link
			case cell.Field == item.FieldSummary && !cell.Null:
				markup, err := markdown(cell.Value)
				if err != nil {
					return "", err
				}
				hc.Markup = markup
			default:
				hc.Text = cell.Value
			}
			rows[i] = append(rows[i], hc)
		}
	}

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title   string
		Headers []htmlHeader
		Rows    [][]htmlCell
	}{title, headers, rows})
	if err != nil {
		return "", fmt.Errorf("digest: render html: %w", err)
	}
	return buf.String(), nil
}

var md = goldmark.New()

// markdown converts s to HTML. Raw HTML in s is not passed through.
func markdown(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return "", fmt.Errorf("digest: render summary: %w", err)
	}
	return template.HTML(buf.String()), nil
}
