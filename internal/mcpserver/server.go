// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notetaker tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/index"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/noteservice"
)

const kindsURI = "notetaker://note-kinds"

// Server wraps the MCP server with notetaker tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all notetaker tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Notetaker",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes newest first, optionally of a single kind."),
		mcp.WithString("kind", mcp.Description("Optional kind: audio, text, document or webLink")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 50)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its metadata and text."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_text_note",
		mcp.WithDescription("Create a text note. Title and content are both required."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text")),
	), s.createTextNote)

	s.mcp.AddTool(mcp.NewTool("capture_web_link",
		mcp.WithDescription("Save a web link. With fetch=true the page is fetched once and its "+
			"readable text stored; otherwise (or when nothing readable is found) the text is a placeholder."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http or https URL")),
		mcp.WithBoolean("fetch", mcp.Description("Fetch the page text once")),
	), s.captureWebLink)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Import a PDF, RTF, XML, CSV, Markdown or plain-text document, either from "+
			"a local path or from a base64 data URI."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("path", mcp.Description("Local file path")),
		mcp.WithString("data", mcp.Description("data:<mime>;base64,<payload>")),
		mcp.WithString("filename", mcp.Description("File name for data imports (e.g. report.pdf)")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note and its attachment."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddResource(
		mcp.NewResource(kindsURI, "Note Kinds",
			mcp.WithResourceDescription("The four note kinds and what each one stores."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readKindsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if code := apperr.CodeOf(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var opts index.ListOptions
	if raw := req.GetString("kind", ""); raw != "" {
		k, err := models.ParseKind(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Kind = k
	}
	opts.Limit = req.GetInt("limit", 50)

	notes, total, err := s.svc.List(ctx, opts)
	if err != nil {
		return toolError(err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	lines := make([]string, 0, len(notes)+1)
	lines = append(lines, fmt.Sprintf("%d of %d notes", len(notes), total))
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s\t%s",
			n.ID, n.Kind, n.CreatedAt.Format("2006-01-02 15:04"), n.Title))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) createTextNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Capture(ctx, noteservice.TextInput{Title: title, Content: content})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) captureWebLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Capture(ctx, noteservice.WebLinkInput{
		Title: title,
		URL:   rawURL,
		Fetch: req.GetBool("fetch", false),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) readKindsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      kindsURI,
			MIMEType: "text/markdown",
			Text:     NoteKindsGuide,
		},
	}, nil
}
