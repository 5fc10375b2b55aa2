package storage_test

import (
	"path/filepath"
	"testing"

	"scadenze/internal/storage"
	"scadenze/internal/storage/storagetest"
)

func TestSQLiteRepositoryContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "scadenze.db"))
		if err != nil {
			t.Fatalf("NewSQLiteRepository() error = %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestMigrationsRollBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scadenze.db")
	if err := storage.RunMigrations(path); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if err := storage.RollbackMigrations(path, 1); err != nil {
		t.Fatalf("RollbackMigrations() error = %v", err)
	}
	if err := storage.RunMigrations(path); err != nil {
		t.Fatalf("RunMigrations() after rollback error = %v", err)
	}
}
