//go:build postgres_integration

package store

import (
	"os"
	"testing"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewSQL(t.Context(), DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	defer p.Close()
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate twice: %v", err)
	}
	if _, _, err := p.ListResults(t.Context(), "t_demo", "", 1); err != nil {
		t.Fatalf("ListResults: %v", err)
	}
}
