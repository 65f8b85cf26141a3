package monitor

import (
	"context"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func init() {
	RegisterEngine("sqlite", newSQLiteStore)
}

const schema = `
CREATE TABLE IF NOT EXISTS transaction_record (
	id INTEGER PRIMARY KEY,
	transaction_id TEXT UNIQUE NOT NULL,
	job_label TEXT,
	user TEXT NOT NULL,
	"group" TEXT NOT NULL,
	api_action TEXT NOT NULL,
	creation_time INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sub_record (
	id INTEGER PRIMARY KEY,
	sub_id TEXT UNIQUE NOT NULL,
	transaction_id TEXT NOT NULL,
	state INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS failed_file (
	id INTEGER PRIMARY KEY,
	filepath TEXT NOT NULL,
	reason TEXT NOT NULL,
	sub_record_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS warning (
	id INTEGER PRIMARY KEY,
	warning TEXT NOT NULL,
	transaction_record_id INTEGER NOT NULL
);
`

// sqliteStore implements Store directly against zombiezen.com/go/sqlite's
// native API (as opposed to catalog's database/sql-mediated engines): the
// Monitor has a much narrower write pattern (single-row upserts keyed by
// sub_id under the ratchet) that doesn't need relational joins across many
// tables, so talking to SQLite directly avoids the database/sql indirection
// catalog needs for its richer query surface.
//
// The teacher's go.mod lists zombiezen.com/go/sqlite as a dependency but no
// teacher file imports it; this wires it to an actual component instead of
// leaving it unused.
type sqliteStore struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

func newSQLiteStore(options map[string]string) (Store, error) {
	path := options["path"]
	if path == "" {
		path = "nlds-monitor.db"
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, err
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &sqliteStore{conn: conn}, nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *sqliteStore) CreateTransaction(_ context.Context, tr TransactionRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing int64
	err := sqlitex.Execute(s.conn,
		`SELECT id FROM transaction_record WHERE transaction_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{tr.TransactionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				existing = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return existing, nil
	}

	creation := tr.CreationTime
	if creation.IsZero() {
		creation = time.Unix(0, 0)
	}
	err = sqlitex.Execute(s.conn,
		`INSERT INTO transaction_record (transaction_id, job_label, user, "group", api_action, creation_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{tr.TransactionID, tr.JobLabel, tr.User, tr.Group, tr.APIAction, creation.Unix()},
		})
	if err != nil {
		return 0, err
	}
	return s.conn.LastInsertRowID(), nil
}

func (s *sqliteStore) UpsertSubRecord(_ context.Context, sub SubRecord) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var currentRank int64 = -1
	err := sqlitex.Execute(s.conn,
		`SELECT state FROM sub_record WHERE sub_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sub.SubID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				currentRank = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, false, err
	}

	now := time.Now().Unix()
	if currentRank < 0 {
		err = sqlitex.Execute(s.conn,
			`INSERT INTO sub_record (sub_id, transaction_id, state, retry_count, last_updated)
			 VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{sub.SubID, sub.TransactionID, int64(sub.State), sub.RetryCount, now},
			})
		return sub.State, true, err
	}

	next, changed := Ratchet(State(currentRank), sub.State)
	if !changed {
		return State(currentRank), false, nil
	}
	err = sqlitex.Execute(s.conn,
		`UPDATE sub_record SET state = ?, retry_count = ?, last_updated = ? WHERE sub_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(next), sub.RetryCount, now, sub.SubID},
		})
	return next, true, err
}

func (s *sqliteStore) RecordFailure(_ context.Context, subID string, failures []FailedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subRecordID int64
	err := sqlitex.Execute(s.conn,
		`SELECT id FROM sub_record WHERE sub_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{subID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				subRecordID = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	err = sqlitex.Execute(s.conn,
		`UPDATE sub_record SET state = ?, last_updated = ? WHERE sub_id = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(StateFailed), now, subID}})
	if err != nil {
		return err
	}

	for _, f := range failures {
		err = sqlitex.Execute(s.conn,
			`INSERT INTO failed_file (filepath, reason, sub_record_id) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{f.FilePath, f.Reason, subRecordID}})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) RecordWarning(_ context.Context, transactionID, warning string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transactionRecordID int64
	err := sqlitex.Execute(s.conn,
		`SELECT id FROM transaction_record WHERE transaction_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{transactionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				transactionRecordID = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return err
	}
	return sqlitex.Execute(s.conn,
		`INSERT INTO warning (warning, transaction_record_id) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{warning, transactionRecordID}})
}

func (s *sqliteStore) TransactionStatus(_ context.Context, transactionID string) (TransactionRecord, []SubRecord, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tr TransactionRecord
	found := false
	err := sqlitex.Execute(s.conn,
		`SELECT id, transaction_id, job_label, user, "group", api_action, creation_time
		 FROM transaction_record WHERE transaction_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{transactionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				tr = TransactionRecord{
					ID:            stmt.ColumnInt64(0),
					TransactionID: stmt.ColumnText(1),
					JobLabel:      stmt.ColumnText(2),
					User:          stmt.ColumnText(3),
					Group:         stmt.ColumnText(4),
					APIAction:     stmt.ColumnText(5),
					CreationTime:  time.Unix(stmt.ColumnInt64(6), 0),
				}
				return nil
			},
		})
	if err != nil {
		return TransactionRecord{}, nil, 0, err
	}
	if !found {
		return TransactionRecord{}, nil, 0, &NotFoundError{Kind: "transaction", Key: transactionID}
	}

	var subs []SubRecord
	err = sqlitex.Execute(s.conn,
		`SELECT id, sub_id, transaction_id, state, retry_count, last_updated
		 FROM sub_record WHERE transaction_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{transactionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				subs = append(subs, SubRecord{
					ID:            stmt.ColumnInt64(0),
					SubID:         stmt.ColumnText(1),
					TransactionID: stmt.ColumnText(2),
					State:         State(stmt.ColumnInt64(3)),
					RetryCount:    int(stmt.ColumnInt64(4)),
					LastUpdated:   time.Unix(stmt.ColumnInt64(5), 0),
				})
				return nil
			},
		})
	if err != nil {
		return TransactionRecord{}, nil, 0, err
	}

	states := make([]State, len(subs))
	for i, sub := range subs {
		states[i] = sub.State
	}
	return tr, subs, Rollup(states), nil
}
