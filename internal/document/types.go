// Package document implements the document import workflow: select a
// local file, validate its type by content, and stream it into the
// attachment store on confirmation.
package document

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/notetaker/internal/apperr"
)

// sniffLen is how many leading bytes content detection looks at.
const sniffLen = 512

// Type is an accepted document kind.
type Type struct {
	Name string
	MIME string
	// Text is true when the payload is readable as UTF-8 text and can
	// feed textContent.
	Text bool
}

var (
	TypePDF      = Type{Name: "pdf", MIME: "application/pdf"}
	TypeRTF      = Type{Name: "rtf", MIME: "application/rtf"}
	TypeXML      = Type{Name: "xml", MIME: "application/xml", Text: true}
	TypeCSV      = Type{Name: "csv", MIME: "text/csv", Text: true}
	TypeMarkdown = Type{Name: "markdown", MIME: "text/markdown", Text: true}
	TypePlain    = Type{Name: "text", MIME: "text/plain", Text: true}
)

// family groups types whose content sniffs the same way.
type family int

const (
	familyPDF family = iota + 1
	familyRTF
	familyText
)

// byExtension maps known extensions to the type they promise. Text-family
// extensions only select among text types; the content still decides
// the family.
var byExtension = map[string]Type{
	".pdf":      TypePDF,
	".rtf":      TypeRTF,
	".xml":      TypeXML,
	".csv":      TypeCSV,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".txt":      TypePlain,
	".text":     TypePlain,
}

func (t Type) family() family {
	switch t {
	case TypePDF:
		return familyPDF
	case TypeRTF:
		return familyRTF
	}
	return familyText
}

// Detect classifies a file from its leading bytes and name. Content
// decides the family (PDF, RTF or text); the extension only refines text
// and must not contradict the content.
func Detect(name string, head []byte) (Type, error) {
	ext := strings.ToLower(filepath.Ext(name))
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))

	var sniffed Type
	contentType := http.DetectContentType(head)
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		sniffed = TypePDF
	case bytes.HasPrefix(head, []byte(`{\rtf`)):
		sniffed = TypeRTF
	case strings.HasPrefix(contentType, "text/xml"):
		sniffed = TypeXML
	case strings.HasPrefix(contentType, "text/plain"):
		sniffed = TypePlain
	default:
		return Type{}, apperr.UnsupportedType(contentType)
	}

	want, known := byExtension[ext]
	if !known {
		return sniffed, nil
	}
	if want.family() != sniffed.family() {
		return Type{}, apperr.UnsupportedType(sniffed.MIME + " content with " + ext + " extension")
	}
	if sniffed.family() == familyText {
		return want, nil
	}
	return sniffed, nil
}
