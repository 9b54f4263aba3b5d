package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calebreyes/stockpilot-backend/pkg/migrate"
)

func TestSaleTransactionsMigrationContainsSchemas(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_sale_transactions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no sale transactions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE sale_status_enum AS ENUM",
		"CREATE TABLE IF NOT EXISTS sale_transactions",
		"CREATE TABLE IF NOT EXISTS sale_items",
		"FOREIGN KEY (transaction_id) REFERENCES sale_transactions(id) ON DELETE CASCADE",
		"FOREIGN KEY (variant_id) REFERENCES product_variants(id) ON DELETE SET NULL",
		"CHECK (refunded_quantity >= 0 AND refunded_quantity <= quantity)",
		"DROP TABLE IF EXISTS sale_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir failed: %v", err)
	}
}
