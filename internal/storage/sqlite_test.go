package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/kalambet/deepskin/internal/filestore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) != 2 {
		t.Fatalf("applied migrations = %v, want [1 2]", versions)
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_files_folder_name", "idx_files_live_name"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("checking index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("002_live_file_names.sql")
	if err != nil || v != 2 {
		t.Errorf("parseMigrationVersion = %d, %v", v, err)
	}
	if _, err := parseMigrationVersion("files.sql"); err == nil {
		t.Error("expected error for unnumbered migration")
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q", got)
	}
	if got, want := postgresDialect.rebind(q), "SELECT a FROM t WHERE x = $1 AND y = $2"; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestFolders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.FindFolder(ctx, "sensors"); !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("FindFolder missing: err = %v", err)
	}
	f, err := filestore.GetOrCreateFolder(ctx, s, "sensors")
	if err != nil {
		t.Fatalf("GetOrCreateFolder: %v", err)
	}
	again, err := filestore.GetOrCreateFolder(ctx, s, "sensors")
	if err != nil || again.ID != f.ID {
		t.Errorf("second GetOrCreateFolder = %+v, %v", again, err)
	}
	if _, err := s.CreateFolder(ctx, "sensors"); !errors.Is(err, filestore.ErrExists) {
		t.Errorf("duplicate CreateFolder: err = %v", err)
	}
	if _, err := s.CreateFolder(ctx, "a/b"); err == nil {
		t.Error("CreateFolder accepted a path separator")
	}
}

func TestFileLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	folder, err := s.CreateFolder(ctx, "sensors")
	if err != nil {
		t.Fatal(err)
	}

	created, err := s.CreateFile(ctx, folder, "DEV1", []byte("one"), filestore.ContentTypeXLSX)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if created.Size != 3 || created.FolderID != folder.ID || created.Kind() != filestore.KindSpreadsheet {
		t.Errorf("created = %+v", created)
	}
	if created.LastModified.IsZero() {
		t.Error("LastModified not set")
	}
	if _, err := s.CreateFile(ctx, folder, "DEV1", nil, filestore.ContentTypeXLSX); !errors.Is(err, filestore.ErrExists) {
		t.Errorf("duplicate CreateFile: err = %v", err)
	}

	found, err := s.FindFile(ctx, folder, "DEV1")
	if err != nil || found.ID != created.ID {
		t.Fatalf("FindFile = %+v, %v", found, err)
	}

	updated, err := s.WriteFile(ctx, found, []byte("one,two"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if updated.Size != 7 || updated.LastModified.Before(created.LastModified) {
		t.Errorf("updated = %+v", updated)
	}
	content, err := s.ReadFile(ctx, updated)
	if err != nil || !bytes.Equal(content, []byte("one,two")) {
		t.Errorf("ReadFile = %q, %v", content, err)
	}

	if _, err := s.ReadFile(ctx, filestore.File{ID: "missing", Name: "missing"}); !errors.Is(err, filestore.ErrNotFound) {
		t.Errorf("ReadFile missing: err = %v", err)
	}
	if _, err := s.WriteFile(ctx, filestore.File{ID: "missing", Name: "missing"}, nil); !errors.Is(err, filestore.ErrNotFound) {
		t.Errorf("WriteFile missing: err = %v", err)
	}
}

func TestSearchFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	folder, _ := s.CreateFolder(ctx, "sensors")
	other, _ := s.CreateFolder(ctx, "other")

	for _, name := range []string{"DEV10", "DEV1_2024.csv", "DEV1", "OTHER", "dev1"} {
		if _, err := s.CreateFile(ctx, folder, name, []byte(name), filestore.ContentTypeFor(name)); err != nil {
			t.Fatalf("CreateFile(%s): %v", name, err)
		}
	}
	if _, err := s.CreateFile(ctx, other, "DEV1", nil, filestore.ContentTypeXLSX); err != nil {
		t.Fatal(err)
	}

	found, err := s.SearchFiles(ctx, folder, "DEV1")
	if err != nil {
		t.Fatalf("SearchFiles: %v", err)
	}
	var names []string
	for _, f := range found {
		names = append(names, f.Name)
	}
	want := []string{"DEV1", "DEV10", "DEV1_2024.csv"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestTrash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	folder, _ := s.CreateFolder(ctx, "sensors")
	f, _ := s.CreateFile(ctx, folder, "DEV1", []byte("x"), filestore.ContentTypeXLSX)

	if err := s.Trash(ctx, f); err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if _, err := s.FindFile(ctx, folder, "DEV1"); !errors.Is(err, filestore.ErrNotFound) {
		t.Errorf("FindFile trashed: err = %v", err)
	}
	found, err := s.SearchFiles(ctx, folder, "DEV1")
	if err != nil || len(found) != 1 || !found[0].Trashed {
		t.Errorf("SearchFiles = %+v, %v; want the trashed file", found, err)
	}

	// A trashed name can be reused.
	if _, err := s.CreateFile(ctx, folder, "DEV1", []byte("y"), filestore.ContentTypeXLSX); err != nil {
		t.Errorf("CreateFile after trash: %v", err)
	}
	if err := s.Trash(ctx, filestore.File{ID: "missing"}); !errors.Is(err, filestore.ErrNotFound) {
		t.Errorf("Trash missing: err = %v", err)
	}
}

func TestDriver(t *testing.T) {
	if got := openTestStore(t).Driver(); got != filestore.DriverSQLite {
		t.Errorf("Driver() = %q", got)
	}
}
