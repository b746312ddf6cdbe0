package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsFS(t *testing.T) {
	migFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS() failed: %v", err)
	}
	entries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		t.Fatalf("failed to read migrations: %v", err)
	}

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		default:
			t.Errorf("unexpected file %s", e.Name())
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("got %d up and %d down migrations, want matching non-zero counts", ups, downs)
	}

	latest, err := LatestMigrationVersion(migFS)
	if err != nil {
		t.Fatalf("LatestMigrationVersion: %v", err)
	}
	if int(latest) != ups {
		t.Errorf("latest version = %d, want %d", latest, ups)
	}
}
