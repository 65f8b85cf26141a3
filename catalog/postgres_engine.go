package catalog

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nlds-storage/nlds/internal/sqlstore"
)

func init() {
	RegisterEngine("postgres", newPostgresEngine)
}

// newPostgresEngine uses github.com/jackc/pgx/v5's database/sql driver
// (registered as "pgx" by the stdlib adapter import above) rather than a
// bespoke Postgres client: no example repo ships a Postgres driver, so this
// is the ecosystem-standard choice, wired through the same sqlStore the
// sqlite engine uses so the two engines share every query.
func newPostgresEngine(options map[string]string) (Store, error) {
	dsn := options["dsn"]
	db, err := sqlstore.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(db, postgresSchemaStatements(schemaStatements)); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlStore{db: db, defaultTenancy: options["default_tenancy"]}, nil
}

// postgresSchemaStatements rewrites the sqlite-flavoured placeholder
// AUTOINCREMENT idiom ("INTEGER PRIMARY KEY") for Postgres, which accepts
// the same syntax via its SERIAL-equivalent implicit rowid handling only for
// sqlite; Postgres needs an explicit sequence. Both engines otherwise share
// identical DDL.
func postgresSchemaStatements(statements []string) []string {
	out := make([]string, len(statements))
	for i, s := range statements {
		out[i] = strings.ReplaceAll(s, "INTEGER PRIMARY KEY", "BIGSERIAL PRIMARY KEY")
	}
	return out
}
