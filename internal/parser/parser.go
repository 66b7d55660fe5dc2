// Package parser handles Markdown content: YAML frontmatter, title
// derivation for imported documents, and HTML rendering of note bodies.
package parser

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var (
	md       = goldmark.New(goldmark.WithExtensions(extension.GFM))
	sanitize = bluemonday.UGCPolicy()
	fence    = []byte("---")
)

// Result is a Markdown document split into its parts.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
}

// Parse splits frontmatter from the body and derives a title: the
// frontmatter title when set, else the first level-one heading. Invalid
// or unterminated frontmatter is treated as body.
func Parse(data []byte) (*Result, error) {
	res := &Result{Body: string(data)}
	if fm, body, ok := frontmatter(data); ok {
		res.Frontmatter = fm
		res.Body = body
	}
	res.Title = fmTitle(res.Frontmatter)
	if res.Title == "" {
		res.Title = headingTitle([]byte(res.Body))
	}
	return res, nil
}

func frontmatter(data []byte) (map[string]interface{}, string, bool) {
	doc := bytes.TrimLeft(data, "\r\n")
	if !bytes.HasPrefix(doc, fence) {
		return nil, "", false
	}
	rest := doc[len(fence):]
	end := bytes.Index(rest, append([]byte("\n"), fence...))
	if end < 0 {
		return nil, "", false
	}

	var fm map[string]interface{}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, "", false
	}
	body := rest[end+1+len(fence):]
	return fm, strings.TrimLeft(string(body), "\r\n"), true
}

func fmTitle(fm map[string]interface{}) string {
	s, _ := fm["title"].(string)
	return strings.TrimSpace(s)
}

// headingTitle returns the text of the first level-one heading, ATX or
// setext, or "" when there is none.
func headingTitle(src []byte) string {
	doc := md.Parser().Parse(text.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Level == 1 {
			title = strings.TrimSpace(inlineText(h, src))
			if title != "" {
				return ast.WalkStop, nil
			}
		}
		return ast.WalkSkipChildren, nil
	})
	return title
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// RenderHTML converts Markdown (GitHub flavored) to sanitized HTML. Raw
// HTML in the source never reaches the output. On a render error the
// escaped source is returned.
func RenderHTML(src string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "<pre>" + html.EscapeString(src) + "</pre>"
	}
	return string(sanitize.SanitizeBytes(buf.Bytes()))
}
