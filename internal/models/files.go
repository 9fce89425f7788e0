package models

import (
	"math"
	"path"
	"strconv"
	"strings"
)

var fileTypes = map[string]string{
	"doc": "document", "docx": "document",
	"xls": "spreadsheet", "xlsx": "spreadsheet",
	"jpg": "image", "jpeg": "image", "png": "image", "gif": "image",
	"pdf": "pdf",
	"mp4": "video", "avi": "video", "mov": "video",
	"mp3": "audio", "wav": "audio",
	"zip": "archive", "rar": "archive",
	"js": "code", "html": "code", "css": "code", "py": "code",
}

func ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// FileType maps a file name to its display type.
func FileType(name string) string {
	if t, ok := fileTypes[ext(name)]; ok {
		return t
	}
	return "document"
}

// FileCategory maps a file name to its filter category.
func FileCategory(name string) string {
	switch ext(name) {
	case "jpg", "jpeg", "png", "gif":
		return "images"
	case "xls", "xlsx", "csv":
		return "data"
	case "doc", "docx", "pdf", "txt":
		return "documents"
	}
	return "others"
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count as "1.5 KB" (base 1024, at most two decimals).
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i, v := 0, float64(n)
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// NewFileRecord builds a record for a file named name with n bytes.
func NewFileRecord(name string, n int64, folderID *ID, uploadDate string) FileRecord {
	return FileRecord{
		ID:         NewID(),
		Name:       name,
		Type:       FileType(name),
		Size:       FormatSize(n),
		SizeBytes:  n,
		UploadDate: uploadDate,
		Category:   FileCategory(name),
		FolderID:   cloneIDPtr(folderID),
		SyncState:  SyncUnsynced,
	}
}

// SizeMatches reports whether the record's size agrees with n bytes.
// Records from older clients only carry the label.
func (f *FileRecord) SizeMatches(n int64) bool {
	if f.SizeBytes > 0 {
		return f.SizeBytes == n
	}
	return f.Size == FormatSize(n)
}
