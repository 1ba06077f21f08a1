package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	ms, err := source().FindMigrations()
	if err != nil {
		t.Fatalf("find migrations: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(ms))
	}
	if ms[0].Id != "0001_call_records.sql" {
		t.Fatalf("unexpected first migration %q", ms[0].Id)
	}
	joined := strings.Join(ms[0].Up, "\n")
	if !strings.Contains(joined, "call_records_call_sid_idx") {
		t.Fatalf("expected unique call_sid index in first migration")
	}
	if len(ms[1].Down) == 0 {
		t.Fatalf("expected down statements for call_events")
	}
}
