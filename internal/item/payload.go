package item

// Payload is the modality-specific content of an item. It is one of
// Document, Text or Transcript.
type Payload interface {
	modality() string
}

// Document is a paper stored locally as a PDF.
type Document struct {
	Authors string
	Path    string
}

// Text is an article with a plain-text body.
type Text struct {
	Author  string
	Content string
}

// Transcript is a video with its transcript and descriptive metadata.
type Transcript struct {
	ChannelName string
	Description string
	Transcript  string
	Category    Category
}

func (Document) modality() string   { return "document" }
func (Text) modality() string       { return "text" }
func (Transcript) modality() string { return "transcript" }

// Modality names the payload variant ("document", "text" or "transcript").
func Modality(p Payload) string {
	if p == nil {
		return ""
	}
	return p.modality()
}

// Category selects the prompt used for a video transcript.
type Category string

const (
	CategoryTechno        Category = "techno"
	CategoryDebate        Category = "debate"
	CategoryEntertainment Category = "entertainment"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTechno, CategoryDebate, CategoryEntertainment:
		return true
	}
	return false
}
