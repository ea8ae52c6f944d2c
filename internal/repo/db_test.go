package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/tbourn/doktorai-backend/internal/config"
	"github.com/tbourn/doktorai-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "doktorai.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want error", bad, db, err)
	}
	if os.IsNotExist(err) {
		return
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"unable to open database file", "no such file or directory", "out of memory"} {
		if strings.Contains(msg, hint) {
			return
		}
	}
	t.Fatalf("unexpected error: %v", err)
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "doktorai.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		var got string
		if err := db.Raw("PRAGMA " + pragma).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if strings.ToLower(got) != want {
			t.Errorf("PRAGMA %s = %q, want %q", pragma, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections = %d", n)
	}
}

func TestAutoMigrate_SessionWithMessage(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "doktorai.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, model := range allModels() {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := db.Create(&domain.ChatSession{ID: "s1", UserID: "u1", Title: "Nane", CreatedAt: at, UpdatedAt: at}).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}
	m := &domain.ChatMessage{ID: "m1", SessionID: "s1", UserID: "u1", Role: domain.RoleUser, InputType: domain.InputText, Content: "nane çayı?", CreatedAt: at}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	orphan := &domain.ChatMessage{ID: "m2", SessionID: "ghost", UserID: "u1", Role: domain.RoleUser, InputType: domain.InputText, Content: "x", CreatedAt: at}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("message without session should violate the foreign key")
	}
}

func TestOpen_SQLite_MigratesAndInstruments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if !db.Migrator().HasTable(&domain.ChatMessage{}) {
		t.Fatalf("expected chat_messages after Open")
	}
	if _, ok := db.Config.Plugins["otelgorm"]; !ok {
		t.Fatalf("expected tracing plugin to be registered, got %v", db.Config.Plugins)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.DBConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestRunMigrations_BadURL(t *testing.T) {
	fsys := fstest.MapFS{
		"000001_x.up.sql":   {Data: []byte("SELECT 1;")},
		"000001_x.down.sql": {Data: []byte("SELECT 1;")},
	}
	if err := RunMigrations("unknown://nowhere", fsys); err == nil {
		t.Fatalf("expected error for unsupported migration url scheme")
	}
}
