package document

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/starford/notetaker/internal/parser"
)

// DefaultExtractLimit caps the text copied into textContent.
const DefaultExtractLimit = 1 << 20

// Extractor turns a committed document into text for textContent. An
// empty result leaves textContent empty.
type Extractor interface {
	Extract(ctx context.Context, t Type, r io.Reader) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, t Type, r io.Reader) (string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, t Type, r io.Reader) (string, error) {
	return f(ctx, t, r)
}

// TextExtractor reads text-family documents verbatim, minus Markdown
// frontmatter. Binary formats (PDF, RTF) yield no text.
type TextExtractor struct {
	Limit int64
}

// Extract implements Extractor.
func (e TextExtractor) Extract(_ context.Context, t Type, r io.Reader) (string, error) {
	if !t.Text {
		return "", nil
	}
	limit := e.Limit
	if limit <= 0 {
		limit = DefaultExtractLimit
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return "", err
	}
	text := string(data)
	if t == TypeMarkdown {
		res, err := parser.Parse(data)
		if err != nil {
			return "", err
		}
		text = res.Body
	}
	// A cut at the limit may split a rune.
	text = strings.ToValidUTF8(text, string(utf8.RuneError))
	return strings.TrimSpace(text), nil
}
