package db

import (
	"strings"
	"testing"

	"github.com/zulandar/plandala/internal/config"
	"github.com/zulandar/plandala/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.DatabaseConfig
		wantPrefix string
	}{
		{
			name:       "default local",
			cfg:        config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Name: "plandala"},
			wantPrefix: "root@tcp(127.0.0.1:3306)/plandala?",
		},
		{
			name:       "with password",
			cfg:        config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, User: "plandala", Password: "s3cret", Name: "boards"},
			wantPrefix: "plandala:s3cret@tcp(10.0.0.5:3307)/boards?",
		},
		{
			name:       "no database selected",
			cfg:        config.DatabaseConfig{Host: "db.internal", Port: 3306, User: "root"},
			wantPrefix: "root@tcp(db.internal:3306)/?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("DSN() = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

func TestDSN_Params(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "localhost", Port: 3306, User: "root", Name: "test"})
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Errorf("DSN missing charset: %s", dsn)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := SQLiteDSN(":memory:"); got != ":memory:" {
		t.Errorf("SQLiteDSN(:memory:) = %q", got)
	}
	if got := SQLiteDSN("plandala.db"); !strings.HasPrefix(got, "plandala.db?") || !strings.Contains(got, "_busy_timeout") {
		t.Errorf("SQLiteDSN(plandala.db) = %q", got)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestMigrate_SQLiteMemory(t *testing.T) {
	gdb, err := Migrate(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
	if !gdb.Migrator().HasColumn(&models.Task{}, "sort_order") {
		t.Error("tasks.sort_order column missing")
	}
	if !gdb.Migrator().HasColumn(&models.Task{}, "meta_comment_count") {
		t.Error("tasks.meta_comment_count column missing")
	}
}

func TestMigrate_SQLiteFile(t *testing.T) {
	path := t.TempDir() + "/plandala.db"
	gdb, err := Migrate(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := gdb.Create(&models.Task{ID: "t1", Title: "x", Status: models.StatusDone, Page: models.PageDone}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	var n int64
	gdb.Model(&models.Task{}).Count(&n)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
