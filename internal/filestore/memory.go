package filestore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memFile struct {
	info File
	data []byte
}

// Memory is a Store backed by process memory. Intended for tests and the
// `memory` driver.
type Memory struct {
	mu      sync.RWMutex
	folders map[string]Folder   // by name
	files   map[string]*memFile // by id
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		folders: make(map[string]Folder),
		files:   make(map[string]*memFile),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) FindFolder(_ context.Context, name string) (Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[name]
	if !ok {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	return f, nil
}

func (m *Memory) CreateFolder(_ context.Context, name string) (Folder, error) {
	if !ValidName(name) {
		return Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[name]; ok {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrExists)
	}
	f := Folder{ID: uuid.New().String(), Name: name}
	m.folders[name] = f
	return f, nil
}

func (m *Memory) SearchFiles(_ context.Context, folder Folder, nameContains string) ([]File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []File
	for _, f := range m.files {
		if f.info.FolderID == folder.ID && strings.Contains(f.info.Name, nameContains) {
			out = append(out, f.info)
		}
	}
	SortFiles(out)
	return out, nil
}

func (m *Memory) FindFile(_ context.Context, folder Folder, name string) (File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []File
	for _, f := range m.files {
		if f.info.FolderID == folder.ID && f.info.Name == name && !f.info.Trashed {
			matches = append(matches, f.info)
		}
	}
	if len(matches) == 0 {
		return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	SortFiles(matches)
	return matches[0], nil
}

func (m *Memory) ReadFile(_ context.Context, file File) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[file.ID]
	if !ok {
		return nil, fmt.Errorf("file %q: %w", file.Name, ErrNotFound)
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (m *Memory) WriteFile(_ context.Context, file File, content []byte) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[file.ID]
	if !ok {
		return File{}, fmt.Errorf("file %q: %w", file.Name, ErrNotFound)
	}
	f.data = append([]byte(nil), content...)
	f.info.Size = int64(len(content))
	f.info.LastModified = m.now()
	return f.info, nil
}

func (m *Memory) CreateFile(_ context.Context, folder Folder, name string, content []byte, contentType string) (File, error) {
	if !ValidName(name) {
		return File{}, fmt.Errorf("invalid file name %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.info.FolderID == folder.ID && f.info.Name == name && !f.info.Trashed {
			return File{}, fmt.Errorf("file %q: %w", name, ErrExists)
		}
	}
	info := File{
		ID:           uuid.New().String(),
		Name:         name,
		FolderID:     folder.ID,
		ContentType:  contentType,
		Size:         int64(len(content)),
		LastModified: m.now(),
	}
	m.files[info.ID] = &memFile{info: info, data: append([]byte(nil), content...)}
	return info, nil
}

// Trash marks a file as deleted. Trashed files stay visible to SearchFiles.
func (m *Memory) Trash(_ context.Context, file File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[file.ID]
	if !ok {
		return fmt.Errorf("file %q: %w", file.Name, ErrNotFound)
	}
	f.info.Trashed = true
	return nil
}
