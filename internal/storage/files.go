package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/deepskin/internal/filestore"
)

const fileColumns = "id, folder_id, name, content_type, size, trashed, updated_at"

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// --- Folders ---

func (s *Store) FindFolder(ctx context.Context, name string) (filestore.Folder, error) {
	var f filestore.Folder
	err := s.db.QueryRowContext(ctx, s.d.rebind("SELECT id, name FROM folders WHERE name = ?"), name).Scan(&f.ID, &f.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return filestore.Folder{}, fmt.Errorf("folder %q: %w", name, filestore.ErrNotFound)
	}
	if err != nil {
		return filestore.Folder{}, fmt.Errorf("finding folder %q: %w", name, err)
	}
	return f, nil
}

func (s *Store) CreateFolder(ctx context.Context, name string) (filestore.Folder, error) {
	if !filestore.ValidName(name) {
		return filestore.Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	if _, err := s.FindFolder(ctx, name); err == nil {
		return filestore.Folder{}, fmt.Errorf("folder %q: %w", name, filestore.ErrExists)
	}
	f := filestore.Folder{ID: uuid.New().String(), Name: name}
	_, err := s.db.ExecContext(ctx,
		s.d.rebind("INSERT INTO folders (id, name, created_at) VALUES (?, ?, ?)"),
		f.ID, f.Name, nowString(),
	)
	if err != nil {
		return filestore.Folder{}, fmt.Errorf("creating folder %q: %w", name, err)
	}
	return f, nil
}

// --- Files ---

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (filestore.File, error) {
	var (
		f         filestore.File
		trashed   int
		updatedAt string
	)
	if err := row.Scan(&f.ID, &f.FolderID, &f.Name, &f.ContentType, &f.Size, &trashed, &updatedAt); err != nil {
		return filestore.File{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return filestore.File{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	f.Trashed = trashed != 0
	f.LastModified = t
	return f, nil
}

func (s *Store) SearchFiles(ctx context.Context, folder filestore.Folder, nameContains string) ([]filestore.File, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.rebind("SELECT "+fileColumns+" FROM files WHERE folder_id = ? AND "+s.d.contains),
		folder.ID, nameContains,
	)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", folder.Name, err)
	}
	defer rows.Close()

	var out []filestore.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	filestore.SortFiles(out)
	return out, nil
}

func (s *Store) FindFile(ctx context.Context, folder filestore.Folder, name string) (filestore.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx,
		s.d.rebind("SELECT "+fileColumns+" FROM files WHERE folder_id = ? AND name = ? AND trashed = 0 ORDER BY id LIMIT 1"),
		folder.ID, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return filestore.File{}, fmt.Errorf("file %q: %w", name, filestore.ErrNotFound)
	}
	if err != nil {
		return filestore.File{}, fmt.Errorf("finding file %q: %w", name, err)
	}
	return f, nil
}

func (s *Store) ReadFile(ctx context.Context, file filestore.File) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, s.d.rebind("SELECT content FROM files WHERE id = ?"), file.ID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %q: %w", file.Name, filestore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", file.Name, err)
	}
	return content, nil
}

func (s *Store) WriteFile(ctx context.Context, file filestore.File, content []byte) (filestore.File, error) {
	now := nowString()
	res, err := s.db.ExecContext(ctx,
		s.d.rebind("UPDATE files SET content = ?, size = ?, updated_at = ? WHERE id = ?"),
		content, len(content), now, file.ID,
	)
	if err != nil {
		return filestore.File{}, fmt.Errorf("writing %q: %w", file.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return filestore.File{}, err
	}
	if n == 0 {
		return filestore.File{}, fmt.Errorf("file %q: %w", file.Name, filestore.ErrNotFound)
	}
	return s.get(ctx, file.ID)
}

func (s *Store) CreateFile(ctx context.Context, folder filestore.Folder, name string, content []byte, contentType string) (filestore.File, error) {
	if !filestore.ValidName(name) {
		return filestore.File{}, fmt.Errorf("invalid file name %q", name)
	}
	if _, err := s.FindFile(ctx, folder, name); err == nil {
		return filestore.File{}, fmt.Errorf("file %q: %w", name, filestore.ErrExists)
	} else if !errors.Is(err, filestore.ErrNotFound) {
		return filestore.File{}, err
	}

	id := uuid.New().String()
	now := nowString()
	_, err := s.db.ExecContext(ctx,
		s.d.rebind(`INSERT INTO files (id, folder_id, name, content_type, content, size, trashed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`),
		id, folder.ID, name, contentType, content, len(content), now, now,
	)
	if err != nil {
		return filestore.File{}, fmt.Errorf("creating %q: %w", name, err)
	}
	return s.get(ctx, id)
}

// Trash marks a file as deleted. Trashed files stay visible to SearchFiles.
func (s *Store) Trash(ctx context.Context, file filestore.File) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind("UPDATE files SET trashed = 1 WHERE id = ?"), file.ID)
	if err != nil {
		return fmt.Errorf("trashing %q: %w", file.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file %q: %w", file.Name, filestore.ErrNotFound)
	}
	return nil
}

func (s *Store) get(ctx context.Context, id string) (filestore.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, s.d.rebind("SELECT "+fileColumns+" FROM files WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return filestore.File{}, fmt.Errorf("file %s: %w", id, filestore.ErrNotFound)
	}
	return f, err
}

var _ filestore.Store = (*Store)(nil)
