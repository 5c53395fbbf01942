package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/taxonomia/internal/models"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "analyses.db")
	for name, content := range map[string]string{
		"analyses.db":     "12345",
		"analyses.db-wal": "123",
		"analyses.db-shm": "1",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	index := filepath.Join(dir, "bleve")
	if err := os.MkdirAll(filepath.Join(index, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "store", "seg"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsage(db, index)
	if err != nil {
		t.Fatal(err)
	}
	if got != 11 {
		t.Errorf("DiskUsage = %d, want 11", got)
	}
}

func TestDiskUsage_MissingPaths(t *testing.T) {
	dir := t.TempDir()
	got, err := DiskUsage(filepath.Join(dir, "none.db"), filepath.Join(dir, "no-index"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("missing paths: got %d", got)
	}
	if got, _ := DiskUsage("", ""); got != 0 {
		t.Errorf("empty paths: got %d", got)
	}
}

func TestDiskUsage_LiveDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "analyses.db")
	store, err := NewSQLiteStorage(db)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	a := &models.InstrumentAnalysis{InstrumentTitle: "Quiz", Subject: models.SubjectArts, GradeLevel: models.Grade1}
	if err := store.CreateAnalysis(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsage(db, "")
	if err != nil {
		t.Fatal(err)
	}
	if got == 0 {
		t.Error("a live database should use disk space")
	}
}
