package backend

import (
	"path/filepath"
	"testing"

	"tally/internal/config"
	"tally/internal/storage"
)

func TestOpenSelectsBackend(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		repo, err := Open(&config.Config{DataBackend: "memory"})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer repo.Close()
		if _, ok := repo.(*storage.MemoryRepository); !ok {
			t.Errorf("repo type = %T", repo)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		repo, err := Open(&config.Config{
			DataBackend:  "sqlite",
			SQLiteDBPath: filepath.Join(t.TempDir(), "tally.db"),
		})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer repo.Close()
		if _, ok := repo.(*storage.SQLiteRepository); !ok {
			t.Errorf("repo type = %T", repo)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := Open(&config.Config{DataBackend: "postgres"}); err == nil {
			t.Error("unknown backend accepted")
		}
	})
}

func TestTypeIsValid(t *testing.T) {
	for _, tc := range []struct {
		t     Type
		valid bool
	}{
		{SQLiteBackend, true},
		{MemoryBackend, true},
		{Type("sheets"), false},
		{Type(""), false},
	} {
		if got := tc.t.IsValid(); got != tc.valid {
			t.Errorf("IsValid(%q) = %v, want %v", tc.t, got, tc.valid)
		}
	}
}
