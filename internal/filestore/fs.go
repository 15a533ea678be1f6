package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const metaSuffix = ".meta"

// Filesystem is a Store rooted at a local directory. Each folder is a
// subdirectory; each file may carry a JSON sidecar (name + ".meta") holding
// its declared content type and trashed flag. Files dropped in without a
// sidecar are typed by extension.
// Not safe for concurrent writers to the same file.
type Filesystem struct {
	root string
}

type metaFile struct {
	ContentType string    `json:"content_type,omitempty"`
	Trashed     bool      `json:"trashed,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewFilesystem returns a filesystem store rooted at root, creating it if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./filedata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFS }

func (s *Filesystem) FindFolder(_ context.Context, name string) (Folder, error) {
	if !ValidName(name) {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	st, err := os.Stat(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !st.IsDir()) {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Folder{}, err
	}
	return Folder{ID: name, Name: name}, nil
}

func (s *Filesystem) CreateFolder(_ context.Context, name string) (Folder, error) {
	if !ValidName(name) {
		return Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	err := os.Mkdir(filepath.Join(s.root, name), 0o755)
	if errors.Is(err, fs.ErrExist) {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrExists)
	}
	if err != nil {
		return Folder{}, err
	}
	return Folder{ID: name, Name: name}, nil
}

func (s *Filesystem) SearchFiles(_ context.Context, folder Folder, nameContains string) ([]File, error) {
	dir := filepath.Join(s.root, folder.ID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("folder %q: %w", folder.Name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	// ReadDir returns entries sorted by filename.
	var out []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, metaSuffix) {
			continue
		}
		if !strings.Contains(name, nameContains) {
			continue
		}
		f, err := s.stat(folder, name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Filesystem) FindFile(_ context.Context, folder Folder, name string) (File, error) {
	if !ValidName(name) || strings.HasSuffix(name, metaSuffix) {
		return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	f, err := s.stat(folder, name)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return File{}, err
	}
	if f.Trashed {
		return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	return f, nil
}

func (s *Filesystem) ReadFile(_ context.Context, file File) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(file.ID)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %q: %w", file.Name, ErrNotFound)
	}
	return b, err
}

func (s *Filesystem) WriteFile(_ context.Context, file File, content []byte) (File, error) {
	dataPath := filepath.Join(s.root, filepath.FromSlash(file.ID))
	if _, err := os.Stat(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("file %q: %w", file.Name, ErrNotFound)
		}
		return File{}, err
	}
	if err := writeAtomic(dataPath, content); err != nil {
		return File{}, err
	}
	mf, err := readMeta(dataPath + metaSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return File{}, err
	}
	now := time.Now().UTC()
	if mf.CreatedAt.IsZero() {
		mf.CreatedAt = now
		mf.ContentType = file.ContentType
	}
	mf.UpdatedAt = now
	if err := writeMeta(dataPath+metaSuffix, mf); err != nil {
		return File{}, err
	}
	folder := Folder{ID: file.FolderID, Name: file.FolderID}
	return s.stat(folder, file.Name)
}

func (s *Filesystem) CreateFile(_ context.Context, folder Folder, name string, content []byte, contentType string) (File, error) {
	if !ValidName(name) || strings.HasSuffix(name, metaSuffix) {
		return File{}, fmt.Errorf("invalid file name %q", name)
	}
	dir := filepath.Join(s.root, folder.ID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("folder %q: %w", folder.Name, ErrNotFound)
		}
		return File{}, err
	}
	dataPath := filepath.Join(dir, name)
	if _, err := os.Stat(dataPath); err == nil {
		return File{}, fmt.Errorf("file %q: %w", name, ErrExists)
	}
	if err := writeAtomic(dataPath, content); err != nil {
		return File{}, err
	}
	now := time.Now().UTC()
	mf := metaFile{ContentType: contentType, CreatedAt: now, UpdatedAt: now}
	if err := writeMeta(dataPath+metaSuffix, mf); err != nil {
		return File{}, err
	}
	return s.stat(folder, name)
}

// Trash marks a file as deleted in its sidecar.
func (s *Filesystem) Trash(_ context.Context, file File) error {
	dataPath := filepath.Join(s.root, filepath.FromSlash(file.ID))
	mf, err := readMeta(dataPath + metaSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if mf.ContentType == "" {
		mf.ContentType = file.ContentType
	}
	mf.Trashed = true
	mf.UpdatedAt = time.Now().UTC()
	return writeMeta(dataPath+metaSuffix, mf)
}

func (s *Filesystem) stat(folder Folder, name string) (File, error) {
	dataPath := filepath.Join(s.root, folder.ID, name)
	st, err := os.Stat(dataPath)
	if err != nil {
		return File{}, err
	}
	f := File{
		ID:           folder.ID + "/" + name,
		Name:         name,
		FolderID:     folder.ID,
		ContentType:  ContentTypeFor(name),
		Size:         st.Size(),
		LastModified: st.ModTime().UTC(),
	}
	mf, err := readMeta(dataPath + metaSuffix)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return File{}, err
	default:
		if mf.ContentType != "" {
			f.ContentType = mf.ContentType
		}
		f.Trashed = mf.Trashed
		if !mf.UpdatedAt.IsZero() {
			f.LastModified = mf.UpdatedAt
		}
	}
	return f, nil
}

// writeAtomic writes content to a temp file beside path and renames it into place.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readMeta(path string) (metaFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return mf, nil
}

func writeMeta(path string, mf metaFile) error {
	b, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
