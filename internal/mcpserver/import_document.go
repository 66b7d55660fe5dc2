package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notetaker/internal/noteservice"
)

const maxDocumentSize = 20 << 20 // 20 MB

var (
	mimeToExt = map[string]string{
		"application/pdf": ".pdf",
		"application/rtf": ".rtf",
		"text/rtf":        ".rtf",
		"application/xml": ".xml",
		"text/xml":        ".xml",
		"text/csv":        ".csv",
		"text/markdown":   ".md",
		"text/plain":      ".txt",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._ -]`)
)

func (s *Server) importDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := req.GetString("path", "")
	dataURI := req.GetString("data", "")

	var in noteservice.DocumentInput
	switch {
	case path != "" && dataURI != "":
		return mcp.NewToolResultError("pass either path or data, not both"), nil
	case path != "":
		in = noteservice.DocumentInput{Title: title, Path: path}
	case dataURI != "":
		data, ext, err := decodeDataURI(dataURI)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(data) > maxDocumentSize {
			return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxDocumentSize)), nil
		}
		name := sanitizeFilename(req.GetString("filename", ""))
		if name == "" {
			name = "document" + ext
		}
		staged, err := stageData(data)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to stage document: %v", err)), nil
		}
		defer os.Remove(staged)
		in = noteservice.DocumentInput{Title: title, Path: staged, DisplayName: name}
	default:
		return mcp.NewToolResultError("path or data is required"), nil
	}

	n, err := s.svc.Capture(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing data: prefix")
	}
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.ToLower(strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0])
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

func stageData(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "notetaker-mcp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// sanitizeFilename keeps the base name and replaces unsafe characters.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + name)))
	if name == "/" || name == "." {
		return ""
	}
	return safeFilenameRe.ReplaceAllString(name, "_")
}
