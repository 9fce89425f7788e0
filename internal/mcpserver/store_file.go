package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/plansync/internal/models"
)

const maxFileSize = 10 << 20 // 10 MB

var (
	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"application/pdf": ".pdf",
		"text/plain":      ".txt",
		"text/csv":        ".csv",
		"application/zip": ".zip",
	}

	unsafeFilenameRe = regexp.MustCompile(`[\x00-\x1f/\\:*?"<>|]`)
)

func (s *Server) storeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := optionalString(req, "filename")

	var (
		data        []byte
		detectedExt string
	)
	if strings.HasPrefix(content, "data:") {
		data, detectedExt, err = decodeDataURI(content)
	} else {
		data, err = decodeBase64(content)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(data) > maxFileSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxFileSize)), nil
	}

	if filename == "" {
		ext := detectedExt
		if ext == "" {
			ext = ".bin"
		}
		filename = uuid.New().String() + ext
	}
	filename = sanitizeFilename(filename)

	var folderID *models.ID
	if v := optionalString(req, "folder_id"); v != "" {
		folderID = models.IDPtr(models.ID(v))
	}

	rec, err := s.eng.StoreFile(ctx, folderID, filename, data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store file: %v", err)), nil
	}
	return jsonResult(rec)
}

func decodeBase64(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI. Unknown
// media types are accepted and yield no extension.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}
	data, err := decodeBase64(rest[commaIdx+1:])
	if err != nil {
		return nil, "", err
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return data, mimeToExt[mime], nil
}

// sanitizeFilename strips path components and characters that are unsafe in
// file names. Non-ASCII names are kept.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeFilenameRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = uuid.New().String()
	}
	return name
}
