//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/bptrack/bptrack/internal/platform/db"
)

func TestMigrator_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := db.NewMigrator(globalPool, db.EmbeddedMigrations())

	count, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if count != 0 {
		t.Errorf("second Up applied %d migrations, want 0", count)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("migration %d %s not applied", s.Version, s.Name)
		}
	}
}
