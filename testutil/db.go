package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/storage/database"
)

func init() {
	goose.SetLogger(goose.NopLogger())
}

// Config returns the app config with test defaults and a sqlite database in `t`'s temp dir.
func Config(t *testing.T) *core.Config {
	t.Helper()
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Name = filepath.Join(t.TempDir(), "shule.db")
	return conf
}

// PrepareDB opens a migrated sqlite database, closed at the end of the test.
func PrepareDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	t.Helper()
	var c *core.Config
	if len(conf) > 0 {
		c = conf[0]
	} else {
		c = Config(t)
	}

	db, err := database.Open(c)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, c.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}
