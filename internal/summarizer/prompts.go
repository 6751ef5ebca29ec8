package summarizer

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/ryosukesatoh/daily-digest/internal/item"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// Template names, one per modality (videos by category).
const (
	TemplatePaper   = "paper.tmpl"
	TemplateArticle = "article.tmpl"
)

// VideoTemplate returns the template name for a video category.
func VideoTemplate(c item.Category) string {
	if c == "" {
		c = item.CategoryTechno
	}
	return "video_" + string(c) + ".tmpl"
}

// promptData is the value prompt templates are executed with.
type promptData struct {
	Title       string
	Date        string
	Link        string
	Authors     string
	Author      string
	Content     string
	ChannelName string
	Description string
	Transcript  string
}

// Prompts renders item prompts from the built-in templates, optionally
// overridden by files.
type Prompts struct {
	set *template.Template
}

// LoadPrompts parses the built-in templates, then every *.tmpl file in dir,
// which replaces the built-in template of the same name.
func LoadPrompts(dir string) (*Prompts, error) {
	set, err := template.New("prompts").ParseFS(builtinTemplates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("summarizer: parse built-in templates: %w", err)
	}
	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
		if err != nil {
			return nil, fmt.Errorf("summarizer: list templates in %s: %w", dir, err)
		}
		if len(matches) > 0 {
			if set, err = set.ParseFiles(matches...); err != nil {
				return nil, fmt.Errorf("summarizer: parse templates in %s: %w", dir, err)
			}
		}
	}
	return &Prompts{set: set}, nil
}

// Add registers the template file at path under its path, for use as a
// per-source override.
func (p *Prompts) Add(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("summarizer: read template %s: %w", path, err)
	}
	if _, err := p.set.New(path).Parse(string(src)); err != nil {
		return fmt.Errorf("summarizer: parse template %s: %w", path, err)
	}
	return nil
}

// Build renders the prompt for it. override names a template registered with
// Add; empty selects the template for the item's modality. Document items
// carry their PDF as an attachment.
func (p *Prompts) Build(it item.Item, override string) (Prompt, error) {
	data := promptData{Title: it.Title, Date: it.Date, Link: it.Link}
	var name string
	var attachment *Attachment

	switch pl := it.Payload.(type) {
	case item.Document:
		name = TemplatePaper
		data.Authors = pl.Authors
		pdf, err := os.ReadFile(pl.Path)
		if err != nil {
			return Prompt{}, fmt.Errorf("read document: %w", err)
		}
		attachment = &Attachment{MIMEType: "application/pdf", Data: pdf}
	case item.Text:
		name = TemplateArticle
		data.Author = pl.Author
		data.Content = pl.Content
	case item.Transcript:
		name = VideoTemplate(pl.Category)
		data.ChannelName = pl.ChannelName
		data.Description = pl.Description
		data.Transcript = pl.Transcript
	default:
		return Prompt{}, fmt.Errorf("unsupported payload %T", it.Payload)
	}
	if override != "" {
		name = override
	}

	t := p.set.Lookup(name)
	if t == nil {
		return Prompt{}, fmt.Errorf("no prompt template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Prompt{Text: buf.String(), Document: attachment}, nil
}
