// Package item defines the content item harvested from a source and the
// outcome of summarizing it.
package item

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Stable field names of a persisted item.
const (
	FieldID           = "id"
	FieldTitle        = "title"
	FieldAuthors      = "authors"
	FieldAuthor       = "author"
	FieldChannelName  = "channelName"
	FieldThumbnailURL = "thumbnailUrl"
	FieldDate         = "date"
	FieldLink         = "link"
	FieldDescription  = "description"
	FieldTranscript   = "transcript"
	FieldContent      = "content"
	FieldPDFPath      = "pdf_path"
	FieldSummary      = "summary"
)

// Item is one harvested unit (paper, article or video).
//
// Adapters create items with an empty Outcome; the summarization stage sets
// it exactly once.
type Item struct {
	ID           string
	Title        string
	Link         string
	Date         string
	ThumbnailURL string
	Payload      Payload
	Outcome      *Outcome
}

// Field is a named value of an item, in persisted order.
type Field struct {
	Name  string
	Value string
	// Null marks a field persisted as JSON null (a skipped summary).
	Null bool
}

// Fields returns the item's fields in their persisted order. Empty optional
// fields are left out; title and link are always present.
func (it Item) Fields() []Field {
	var fields []Field
	add := func(name, value string, always bool) {
		if value == "" && !always {
			return
		}
		fields = append(fields, Field{Name: name, Value: value})
	}

	switch p := it.Payload.(type) {
	case Document:
		add(FieldID, it.ID, false)
		add(FieldTitle, it.Title, true)
		add(FieldAuthors, p.Authors, false)
		add(FieldDate, it.Date, false)
		add(FieldLink, it.Link, true)
		add(FieldPDFPath, p.Path, false)
	case Text:
		add(FieldID, it.ID, false)
		add(FieldTitle, it.Title, true)
		add(FieldAuthor, p.Author, false)
		add(FieldThumbnailURL, it.ThumbnailURL, false)
		add(FieldDate, it.Date, false)
		add(FieldLink, it.Link, true)
		add(FieldContent, p.Content, false)
	case Transcript:
		add(FieldChannelName, p.ChannelName, false)
		add(FieldTitle, it.Title, true)
		add(FieldDescription, p.Description, false)
		add(FieldDate, it.Date, false)
		add(FieldThumbnailURL, it.ThumbnailURL, false)
		add(FieldID, it.ID, false)
		add(FieldLink, it.Link, true)
		add(FieldTranscript, p.Transcript, false)
	default:
		add(FieldID, it.ID, false)
		add(FieldTitle, it.Title, true)
		add(FieldDate, it.Date, false)
		add(FieldLink, it.Link, true)
	}

	if it.Outcome != nil {
		f := Field{Name: FieldSummary, Value: it.Outcome.Text}
		if it.Outcome.Kind == Skipped {
			f.Null = true
		}
		fields = append(fields, f)
	}
	return fields
}

// Value returns the value bound to the named field, if the item has a
// non-empty one.
func (it Item) Value(name string) (string, bool) {
	for _, f := range it.Fields() {
		if f.Name == name {
			return f.Value, !f.Null && f.Value != ""
		}
	}
	return "", false
}

// MarshalJSON writes the item as a flat object with stable field names.
func (it Item) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range it.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		buf.Write(name)
		buf.WriteByte(':')
		if f.Null {
			buf.WriteString("null")
			continue
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("item: marshal %s: %w", f.Name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
