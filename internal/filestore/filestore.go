// Package filestore is the hierarchical file store the service reads device
// files from and writes annotation logs to: named folders holding named
// files with a declared content type.
package filestore

import (
	"context"
	"errors"
	"mime"
	"path"
	"sort"
	"strings"
	"time"
)

// Driver identifies a store backend.
type Driver string

const (
	DriverFS       Driver = "fs"
	DriverMemory   Driver = "memory"
	DriverS3       Driver = "s3"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Declared content types understood by the reader.
const (
	ContentTypeXLSX   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeSheets = "application/vnd.google-apps.spreadsheet"
	ContentTypeCSV    = "text/csv"
	ContentTypeText   = "text/plain"
)

var (
	// ErrNotFound is returned when a folder or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by create operations when the target exists.
	ErrExists = errors.New("already exists")
)

// Kind is the representation of a file's content.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSpreadsheet is a structured grid (workbook).
	KindSpreadsheet
	// KindDelimited is flat comma-delimited text.
	KindDelimited
)

func (k Kind) String() string {
	switch k {
	case KindSpreadsheet:
		return "spreadsheet"
	case KindDelimited:
		return "delimited"
	default:
		return "unknown"
	}
}

// KindOf maps a declared content type to a Kind. Parameters such as charset
// are ignored.
func KindOf(contentType string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case ContentTypeXLSX, ContentTypeSheets:
		return KindSpreadsheet
	case ContentTypeCSV, ContentTypeText, "application/csv":
		return KindDelimited
	default:
		return KindUnknown
	}
}

var extContentTypes = map[string]string{
	".xlsx": ContentTypeXLSX,
	".csv":  ContentTypeCSV,
	".txt":  ContentTypeText,
}

// ContentTypeFor guesses a content type from a file name extension. It is
// used only when a backend has no declared type for a file.
func ContentTypeFor(name string) string {
	if ct, ok := extContentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Folder is a named container of files.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// File describes a stored file.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FolderID     string    `json:"folder_id"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
	Trashed      bool      `json:"trashed,omitempty"`
}

// Kind is the representation declared by the file's content type.
func (f File) Kind() Kind {
	return KindOf(f.ContentType)
}

// Store is the file store consumed by the locator and the annotation log.
// SearchFiles and FindFile enumerate in ascending name order. SearchFiles
// includes trashed files; FindFile never returns one.
type Store interface {
	FindFolder(ctx context.Context, name string) (Folder, error)
	CreateFolder(ctx context.Context, name string) (Folder, error)
	SearchFiles(ctx context.Context, folder Folder, nameContains string) ([]File, error)
	FindFile(ctx context.Context, folder Folder, name string) (File, error)
	ReadFile(ctx context.Context, file File) ([]byte, error)
	WriteFile(ctx context.Context, file File, content []byte) (File, error)
	CreateFile(ctx context.Context, folder Folder, name string, content []byte, contentType string) (File, error)
	Driver() Driver
}

// GetOrCreateFolder returns the folder called name, creating it if absent.
func GetOrCreateFolder(ctx context.Context, s Store, name string) (Folder, error) {
	f, err := s.FindFolder(ctx, name)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Folder{}, err
	}
	f, err = s.CreateFolder(ctx, name)
	if errors.Is(err, ErrExists) {
		return s.FindFolder(ctx, name)
	}
	return f, err
}

// ValidName reports whether name is usable as a folder or file name: it must
// not be empty, a dot entry, or contain a path separator.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// SortFiles orders files by name, then id, which is the enumeration order
// of every Store.
func SortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].Name != files[j].Name {
			return files[i].Name < files[j].Name
		}
		return files[i].ID < files[j].ID
	})
}
