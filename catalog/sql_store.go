package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/nlds-storage/nlds/core"
	"github.com/nlds-storage/nlds/internal/sqlstore"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS holding (
		id INTEGER PRIMARY KEY, label TEXT NOT NULL,
		user TEXT NOT NULL, "group" TEXT NOT NULL,
		UNIQUE(user, label)
	)`,
	`CREATE TABLE IF NOT EXISTS tag (
		id INTEGER PRIMARY KEY, key TEXT NOT NULL, value TEXT NOT NULL,
		holding_id INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS "transaction" (
		id INTEGER PRIMARY KEY, uuid TEXT UNIQUE NOT NULL,
		ingest_time INTEGER NOT NULL, holding_id INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS file (
		id INTEGER PRIMARY KEY, original_path TEXT NOT NULL, path_type TEXT NOT NULL,
		link_path TEXT, size INTEGER NOT NULL, user TEXT NOT NULL, "group" TEXT NOT NULL,
		permissions INTEGER NOT NULL, transaction_id INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS location (
		id INTEGER PRIMARY KEY, storage_type TEXT NOT NULL,
		url_scheme TEXT, url_netloc TEXT, root TEXT, path TEXT,
		access_time INTEGER, file_id INTEGER NOT NULL, aggregation_id INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS aggregation (
		id INTEGER PRIMARY KEY, tarname TEXT NOT NULL,
		checksum TEXT, algorithm TEXT, failed_flag INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS checksum (
		id INTEGER PRIMARY KEY, value TEXT NOT NULL, algorithm TEXT NOT NULL, file_id INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quota (
		id INTEGER PRIMARY KEY, "group" TEXT UNIQUE NOT NULL, size INTEGER NOT NULL, used INTEGER NOT NULL
	)`,
}

// sqlStore implements Store against database/sql, shared by the sqlite and
// postgres engines (SPEC_FULL §4.4): both register a database/sql driver
// (modernc.org/sqlite, github.com/jackc/pgx/v5/stdlib) and hand this type
// their *sql.DB plus the default tenancy.
type sqlStore struct {
	db            *sql.DB
	defaultTenancy string
}

func (s *sqlStore) Close() error { return s.db.Close() }

func objectNameFor(transactionID, originalPath string) string {
	h := sha256.Sum256([]byte(originalPath))
	return transactionID + "-" + hex.EncodeToString(h[:])
}

func (s *sqlStore) resolveOrCreateHolding(ctx context.Context, tx *sql.Tx, user, group, label string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM holding WHERE user = ? AND label = ?`, user, label).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO holding (label, user, "group") VALUES (?, ?, ?)`, label, user, group)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqlStore) CatalogPut(ctx context.Context, req PutRequest) (completed, failed []core.PathDetails, err error) {
	label := req.HoldingLabel
	if label == "" {
		label = req.TransactionID
	}
	err = sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		holdingID, err := s.resolveOrCreateHolding(ctx, tx, req.User, req.Group, label)
		if err != nil {
			return err
		}
		var transactionID int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM "transaction" WHERE uuid = ?`, req.TransactionID).Scan(&transactionID)
		if err == sql.ErrNoRows {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO "transaction" (uuid, ingest_time, holding_id) VALUES (?, ?, ?)`,
				req.TransactionID, time.Now().Unix(), holdingID)
			if err != nil {
				return err
			}
			transactionID, err = res.LastInsertId()
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		for _, pd := range req.Files {
			var dupeCount int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM file f JOIN "transaction" t ON f.transaction_id = t.id
				 WHERE t.holding_id = ? AND f.original_path = ?`, holdingID, pd.OriginalPath).Scan(&dupeCount)
			if err != nil {
				return err
			}
			if dupeCount > 0 {
				pd.Fail(fmt.Sprintf("%q already exists in this holding", pd.OriginalPath))
				failed = append(failed, pd)
				continue
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO file (original_path, path_type, link_path, size, user, "group", permissions, transaction_id)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				pd.OriginalPath, string(pd.PathType), pd.LinkTarget, pd.Size, req.User, req.Group, pd.Permissions, transactionID)
			if err != nil {
				return err
			}
			pd.ObjectName = objectNameFor(req.TransactionID, pd.OriginalPath)
			completed = append(completed, pd)
		}
		return nil
	})
	return completed, failed, err
}

func (s *sqlStore) CatalogUpdate(ctx context.Context, transactionID, tenancy string, files []core.PathDetails) error {
	if tenancy == "" {
		tenancy = s.defaultTenancy
	}
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, pd := range files {
			var fileID int64
			err := tx.QueryRowContext(ctx,
				`SELECT f.id FROM file f JOIN "transaction" t ON f.transaction_id = t.id
				 WHERE t.uuid = ? AND f.original_path = ?`, transactionID, pd.OriginalPath).Scan(&fileID)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO location (storage_type, url_scheme, url_netloc, root, path, access_time, file_id)
				 VALUES (?, 's3', ?, ?, ?, ?, ?)`,
				string(StorageTypeObjectStore), tenancy, transactionID, pd.ObjectName, time.Now().Unix(), fileID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// privilegedRole reports whether role (resolved by the caller's
// RoleChecker) may delete a file it doesn't itself own, per spec §4.4's
// group-based access model.
func privilegedRole(role string) bool {
	return role == "deputy" || role == "manager"
}

func (s *sqlStore) CatalogDel(ctx context.Context, transactionID, user, group, role string, files []core.PathDetails) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, pd := range files {
			var ownerUser, ownerGroup string
			err := tx.QueryRowContext(ctx,
				`SELECT user, "group" FROM file WHERE original_path = ? AND transaction_id IN
				 (SELECT id FROM "transaction" WHERE uuid = ?)`, pd.OriginalPath, transactionID).Scan(&ownerUser, &ownerGroup)
			if err == sql.ErrNoRows {
				continue
			} else if err != nil {
				return err
			}
			if ownerGroup != group || (ownerUser != user && !privilegedRole(role)) {
				return &ForbiddenError{Reason: fmt.Sprintf("%s is not permitted to delete %q", user, pd.OriginalPath)}
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM file WHERE original_path = ? AND transaction_id IN
				 (SELECT id FROM "transaction" WHERE uuid = ?)`, pd.OriginalPath, transactionID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqlStore) CatalogRemove(ctx context.Context, transactionID string, files []core.PathDetails) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, pd := range files {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM location WHERE path = '' AND storage_type = ? AND file_id IN (
					SELECT f.id FROM file f JOIN "transaction" t ON f.transaction_id = t.id
					WHERE t.uuid = ? AND f.original_path = ?)`,
				string(StorageTypeObjectStore), transactionID, pd.OriginalPath)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqlStore) CatalogGet(ctx context.Context, req GetRequest) (GetResult, error) {
	var result GetResult
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		paths := req.OriginalPaths
		if len(paths) == 0 {
			rows, err := tx.QueryContext(ctx,
				`SELECT f.original_path FROM file f
				 JOIN "transaction" t ON f.transaction_id = t.id
				 JOIN holding h ON t.holding_id = h.id
				 WHERE (? = '' OR t.uuid = ?) AND (? = 0 OR h.id = ?) AND (? = '' OR h.label = ?)
				 AND (? = '' OR f."group" = ?)`,
				req.TransactionID, req.TransactionID, req.HoldingID, req.HoldingID, req.HoldingLabel, req.HoldingLabel,
				req.Group, req.Group)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var p string
				if err := rows.Scan(&p); err != nil {
					return err
				}
				paths = append(paths, p)
			}
		}

		seenAggregates := map[int64]bool{}
		for _, path := range paths {
			var fileID int64
			var size int64
			err := tx.QueryRowContext(ctx,
				`SELECT id, size FROM file WHERE original_path = ? AND (? = '' OR "group" = ?) ORDER BY id DESC LIMIT 1`, path, req.Group, req.Group).Scan(&fileID, &size)
			if err == sql.ErrNoRows {
				result.FailedList = append(result.FailedList, core.PathDetails{OriginalPath: path, FailReason: "no such file"})
				continue
			} else if err != nil {
				return err
			}

			var osPath, tapeAggIDStr sql.NullString
			var aggID sql.NullInt64
			tx.QueryRowContext(ctx,
				`SELECT path FROM location WHERE file_id = ? AND storage_type = ? AND path != '' LIMIT 1`,
				fileID, string(StorageTypeObjectStore)).Scan(&osPath)
			if osPath.Valid {
				result.TransferList = append(result.TransferList, core.PathDetails{OriginalPath: path, Size: size, ObjectLocation: osPath.String})
				continue
			}

			var memberPath sql.NullString
			err = tx.QueryRowContext(ctx,
				`SELECT aggregation_id, path FROM location WHERE file_id = ? AND storage_type = ? LIMIT 1`,
				fileID, string(StorageTypeTape)).Scan(&aggID, &memberPath)
			_ = tapeAggIDStr
			if err == sql.ErrNoRows || !aggID.Valid {
				result.FailedList = append(result.FailedList, core.PathDetails{OriginalPath: path, FailReason: "no location"})
				continue
			} else if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO location (storage_type, file_id, path) VALUES (?, ?, '')`,
				string(StorageTypeObjectStore), fileID); err != nil {
				return err
			}

			var tarName string
			if err := tx.QueryRowContext(ctx, `SELECT tarname FROM aggregation WHERE id = ?`, aggID.Int64).Scan(&tarName); err != nil {
				return err
			}
			// TapeLocation carries the member's tar-entry name (the location
			// row's own path, stamped by catalog-archive-update); ObjectLocation
			// is repurposed here to carry the owning aggregate's tar name, since
			// an archive-list entry has no object-store path of its own yet --
			// archive-get's caller groups by this to drive tape.Prepare.
			result.ArchiveList = append(result.ArchiveList, core.PathDetails{OriginalPath: path, Size: size, ObjectName: memberPath.String, TapeLocation: memberPath.String, ObjectLocation: tarName})

			if req.FullUnpack && !seenAggregates[aggID.Int64] {
				seenAggregates[aggID.Int64] = true
				rows, err := tx.QueryContext(ctx,
					`SELECT f.original_path, f.size, f.id, l.path FROM location l JOIN file f ON l.file_id = f.id
					 WHERE l.aggregation_id = ? AND l.storage_type = ?`, aggID.Int64, string(StorageTypeTape))
				if err != nil {
					return err
				}
				var members []struct {
					path       string
					size       int64
					fileID     int64
					memberPath string
				}
				for rows.Next() {
					var m struct {
						path       string
						size       int64
						fileID     int64
						memberPath string
					}
					if err := rows.Scan(&m.path, &m.size, &m.fileID, &m.memberPath); err != nil {
						rows.Close()
						return err
					}
					members = append(members, m)
				}
				rows.Close()
				for _, m := range members {
					if m.path == path {
						continue
					}
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO location (storage_type, file_id, path) VALUES (?, ?, '')`,
						string(StorageTypeObjectStore), m.fileID); err != nil {
						return err
					}
					result.ArchiveList = append(result.ArchiveList, core.PathDetails{OriginalPath: m.path, Size: m.size, ObjectName: m.memberPath, TapeLocation: m.memberPath, ObjectLocation: tarName})
				}
			}
		}
		return nil
	})
	return result, err
}

func (s *sqlStore) CatalogArchiveNext(ctx context.Context, defaultTapeURL string) (string, []core.PathDetails, error) {
	var holdingID int64
	var label string
	var candidates []core.PathDetails
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT h.id, h.label FROM holding h
			WHERE EXISTS (
				SELECT 1 FROM file f JOIN "transaction" t ON f.transaction_id = t.id
				WHERE t.holding_id = h.id AND f.id NOT IN (
					SELECT file_id FROM location WHERE storage_type = ?))
			ORDER BY h.id ASC LIMIT 1`, string(StorageTypeTape)).Scan(&holdingID, &label)
		if err == sql.ErrNoRows {
			return nil
		} else if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT f.id, f.original_path, f.size, l.path FROM file f
			JOIN "transaction" t ON f.transaction_id = t.id
			JOIN location l ON l.file_id = f.id AND l.storage_type = ? AND l.path != ''
			WHERE t.holding_id = ? AND f.id NOT IN (SELECT file_id FROM location WHERE storage_type = ?)`,
			string(StorageTypeObjectStore), holdingID, string(StorageTypeTape))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var fileID int64
			var pd core.PathDetails
			if err := rows.Scan(&fileID, &pd.OriginalPath, &pd.Size, &pd.ObjectName); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO location (storage_type, url_scheme, root, path, file_id) VALUES (?, '', ?, '', ?)`,
				string(StorageTypeTape), defaultTapeURL, fileID); err != nil {
				return err
			}
			candidates = append(candidates, pd)
		}
		return nil
	})
	return label, candidates, err
}

func (s *sqlStore) CatalogArchiveUpdate(ctx context.Context, agg Aggregation, members []core.PathDetails) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var aggID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM aggregation WHERE tarname = ?`, agg.TarName).Scan(&aggID)
		if err == sql.ErrNoRows {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO aggregation (tarname, checksum, algorithm) VALUES (?, ?, ?)`,
				agg.TarName, agg.Checksum, agg.Algorithm)
			if err != nil {
				return err
			}
			aggID, err = res.LastInsertId()
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		for _, pd := range members {
			_, err := tx.ExecContext(ctx,
				`UPDATE location SET path = ?, aggregation_id = ?, access_time = ?
				 WHERE storage_type = ? AND file_id = (SELECT id FROM file WHERE original_path = ? LIMIT 1)`,
				pd.TapeLocation, aggID, time.Now().Unix(), string(StorageTypeTape), pd.OriginalPath)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListHoldings answers the list-holdings query endpoint (spec §6), scanning
// the holding table itself rather than going through file/transaction.
func (s *sqlStore) ListHoldings(ctx context.Context, user, group, label string) ([]Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, user, "group" FROM holding
		 WHERE (? = '' OR user = ?) AND (? = '' OR "group" = ?) AND (? = '' OR label = ?)
		 ORDER BY id`,
		user, user, group, group, label, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holdings []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.ID, &h.Label, &h.User, &h.Group); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// FindFiles answers the find-files query endpoint (spec §6): every File in
// group, optionally narrowed to originalPaths.
func (s *sqlStore) FindFiles(ctx context.Context, group string, originalPaths []string) ([]core.PathDetails, error) {
	query := `SELECT original_path, size, permissions, path_type, link_path FROM file WHERE "group" = ?`
	args := []any{group}
	if len(originalPaths) > 0 {
		placeholders := make([]string, len(originalPaths))
		for i, p := range originalPaths {
			placeholders[i] = "?"
			args = append(args, p)
		}
		query += " AND original_path IN (" + strings.Join(placeholders, ", ") + ")"
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []core.PathDetails
	for rows.Next() {
		var pd core.PathDetails
		var pathType, linkPath string
		if err := rows.Scan(&pd.OriginalPath, &pd.Size, &pd.Permissions, &pathType, &linkPath); err != nil {
			return nil, err
		}
		pd.PathType = core.PathType(pathType)
		pd.LinkTarget = linkPath
		files = append(files, pd)
	}
	return files, rows.Err()
}

// GetQuota answers the read-quota query endpoint (spec §6).
func (s *sqlStore) GetQuota(ctx context.Context, group string) (Quota, error) {
	var q Quota
	err := s.db.QueryRowContext(ctx,
		`SELECT id, "group", size, used FROM quota WHERE "group" = ?`, group).Scan(&q.ID, &q.Group, &q.Size, &q.Used)
	if err == sql.ErrNoRows {
		return Quota{}, &NotFoundError{Kind: "quota", Key: group}
	}
	return q, err
}

func (s *sqlStore) CatalogArchiveDel(ctx context.Context, files []core.PathDetails) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, pd := range files {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM location WHERE path = '' AND storage_type = ? AND file_id = (
					SELECT id FROM file WHERE original_path = ? LIMIT 1)`,
				string(StorageTypeTape), pd.OriginalPath)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
