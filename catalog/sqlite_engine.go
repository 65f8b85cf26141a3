package catalog

import (
	_ "modernc.org/sqlite"

	"github.com/nlds-storage/nlds/internal/sqlstore"
)

func init() {
	RegisterEngine("sqlite", newSQLiteEngine)
}

func newSQLiteEngine(options map[string]string) (Store, error) {
	path := options["path"]
	if path == "" {
		path = "nlds-catalog.db"
	}
	db, err := sqlstore.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(db, schemaStatements); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlStore{db: db, defaultTenancy: options["default_tenancy"]}, nil
}
