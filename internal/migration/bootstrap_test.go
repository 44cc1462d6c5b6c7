package migration

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/vidra-ai/vidra/internal/seed"
	"gorm.io/gorm"
)

func openBootstrapDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return db
}

func TestBootstrapCreatesSchemaForSeeding(t *testing.T) {
	db := openBootstrapDB(t)

	if err := Bootstrap(db); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := seed.EnsureModels(db); err != nil {
		t.Fatalf("seed models: %v", err)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM models`).Scan(&count).Error; err != nil {
		t.Fatalf("count models: %v", err)
	}
	if count == 0 {
		t.Fatal("expected seeded model rows")
	}

	for _, table := range []string{"users", "credit_ledger", "purchases", "jobs", "predictions", "webhook_events"} {
		if err := db.Exec(fmt.Sprintf(`SELECT 1 FROM %s LIMIT 1`, table)).Error; err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	db := openBootstrapDB(t)

	if err := Bootstrap(db); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if err := seed.EnsureModels(db); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := Bootstrap(db); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if err := seed.EnsureModels(db); err != nil {
		t.Fatalf("second seed: %v", err)
	}
}
