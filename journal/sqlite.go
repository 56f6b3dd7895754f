// journal/sqlite.go
package journal

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
)

// SQLite persists the signal history to a local database.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so external analysis tooling can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	j := &SQLite{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logs.Infof("[Journal] sqlite journal opened: %s", dbPath)
	return j, nil
}

func (j *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			label     TEXT NOT NULL,
			symbol    TEXT,
			side      TEXT,
			entry     REAL,
			stop      REAL,
			target    REAL,
			volume    REAL,
			rr        REAL,
			session   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_label ON signals(label)`,

		`CREATE TABLE IF NOT EXISTS order_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			label      TEXT NOT NULL,
			status     TEXT,
			fill_price REAL,
			volume     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_label ON order_events(label)`,

		`CREATE TABLE IF NOT EXISTS closes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			label      TEXT NOT NULL,
			pnl        REAL,
			equity_pct REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closes_label ON closes(label)`,
	}

	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (j *SQLite) RecordSignal(rec *SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`INSERT INTO signals
		(timestamp, label, symbol, side, entry, stop, target, volume, rr, session)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.At.Unix(), rec.Label, rec.Symbol, rec.Side,
		rec.Entry, rec.Stop, rec.Target, rec.Volume, rec.RR, rec.Session,
	)
	return err
}

func (j *SQLite) RecordOrderEvent(evt *OrderEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`INSERT INTO order_events
		(timestamp, label, status, fill_price, volume)
		VALUES (?,?,?,?,?)`,
		evt.At.Unix(), evt.Label, evt.Status, evt.FillPrice, evt.Volume,
	)
	return err
}

func (j *SQLite) RecordClose(rec *CloseRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`INSERT INTO closes
		(timestamp, label, pnl, equity_pct)
		VALUES (?,?,?,?)`,
		rec.At.Unix(), rec.Label, rec.PnL, rec.EquityPct,
	)
	return err
}

func (j *SQLite) Close() error {
	logs.Info("[Journal] closing sqlite journal")
	return j.db.Close()
}
