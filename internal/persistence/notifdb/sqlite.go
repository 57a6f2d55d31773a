package notifdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"pxlsync.dev/internal/protocol"
)

// DB archives server notifications per site. Notifications are keyed by
// (site, id); storing one again replaces the old row.
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS notifications (
		site TEXT NOT NULL,
		id INTEGER NOT NULL,
		time INTEGER NOT NULL,
		expiry INTEGER,
		who TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (site, id)
	);`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS notifications_time ON notifications(site, time DESC);`)
	return err
}

func (d *DB) Close() error { return d.db.Close() }

// Upsert stores every notification in one transaction.
func (d *DB) Upsert(ctx context.Context, site string, notes ...protocol.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO notifications (site, id, time, expiry, who, title, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, id) DO UPDATE SET
			time=excluded.time, expiry=excluded.expiry, who=excluded.who,
			title=excluded.title, content=excluded.content`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range notes {
		var expiry sql.NullInt64
		if n.Expiry != nil {
			expiry = sql.NullInt64{Int64: *n.Expiry, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, site, n.ID, n.Time, expiry, n.Who, n.Title, n.Content); err != nil {
			return fmt.Errorf("store notification %d: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// List returns up to limit notifications for site, newest first. limit <= 0
// means no limit.
func (d *DB) List(ctx context.Context, site string, limit int) ([]protocol.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `SELECT id, time, expiry, who, title, content
		FROM notifications WHERE site = ? ORDER BY time DESC, id DESC LIMIT ?`, site, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.Notification
	for rows.Next() {
		var (
			n      protocol.Notification
			expiry sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.Time, &expiry, &n.Who, &n.Title, &n.Content); err != nil {
			return nil, err
		}
		if expiry.Valid {
			v := expiry.Int64
			n.Expiry = &v
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
