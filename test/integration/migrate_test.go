//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/medbook/medbook/internal/platform/db"
)

func TestMigrator_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := db.NewMigrator(globalPool, migrationsDir())

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing pending, applied %d", n)
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
			t.Errorf("migration %s not applied", s.Name)
		}
	}
}
