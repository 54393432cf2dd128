// Package persistence provides SQLite-backed settlement state storage.
// Row tables keep the state queryable from outside; the snapshot blob
// alongside them is what restores carry full fidelity from.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/engine"
)

// DB wraps a SQLite connection for settlement state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		class INTEGER NOT NULL,
		job INTEGER NOT NULL,
		state INTEGER NOT NULL,
		pos_x REAL NOT NULL,
		pos_z REAL NOT NULL,
		balance REAL NOT NULL,
		total_earned REAL NOT NULL,
		total_spent REAL NOT NULL,
		alive INTEGER NOT NULL,
		inventory_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS markets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_z REAL NOT NULL,
		treasury REAL NOT NULL,
		transaction_count INTEGER NOT NULL,
		reputation REAL NOT NULL,
		goods_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		name TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_z REAL NOT NULL,
		status INTEGER NOT NULL,
		progress REAL NOT NULL,
		fund REAL NOT NULL,
		owner TEXT,
		required_json TEXT NOT NULL,
		delivered_json TEXT NOT NULL,
		consumed_json TEXT NOT NULL,
		storage_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		state BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_agents_alive ON agents(alive);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveAgents writes all agents to the database (full replace).
func (db *DB) SaveAgents(list []agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(id, name, class, job, state, pos_x, pos_z,
		 balance, total_earned, total_spent, alive, inventory_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range list {
		invJSON, _ := json.Marshal(a.Inventory)
		alive := 0
		if a.Alive {
			alive = 1
		}
		_, err := stmt.Exec(
			a.ID.String(), a.Name, a.Class, a.Job, a.State,
			a.Position.X, a.Position.Z,
			a.Wallet.Balance, a.Wallet.TotalEarned, a.Wallet.TotalSpent,
			alive, string(invJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// SaveMarkets writes all markets to the database (full replace).
func (db *DB) SaveMarkets(list []economy.Market) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM markets"); err != nil {
		return err
	}

	for _, m := range list {
		goodsJSON, _ := json.Marshal(m.Goods)
		_, err := tx.Exec(`INSERT INTO markets
			(id, name, pos_x, pos_z, treasury, transaction_count, reputation, goods_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID.String(), m.Name, m.Position.X, m.Position.Z,
			m.Treasury, m.TransactionCount, m.Reputation, string(goodsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert market %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// SaveBuildings writes all buildings to the database (full replace).
func (db *DB) SaveBuildings(list []buildings.Building) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM buildings"); err != nil {
		return err
	}

	for _, b := range list {
		requiredJSON, _ := json.Marshal(b.Required)
		deliveredJSON, _ := json.Marshal(b.Delivered)
		consumedJSON, _ := json.Marshal(b.Consumed)
		storageJSON, _ := json.Marshal(b.Storage)
		_, err := tx.Exec(`INSERT INTO buildings
			(id, kind, name, pos_x, pos_z, status, progress, fund, owner,
			 required_json, delivered_json, consumed_json, storage_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(), b.Kind, b.Name, b.Position.X, b.Position.Z,
			b.Status, b.Progress, b.Fund, b.Owner.String(),
			string(requiredJSON), string(deliveredJSON), string(consumedJSON), string(storageJSON),
		)
		if err != nil {
			return fmt.Errorf("insert building %s: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// SaveAll performs a full save: row tables for inspection plus a
// compressed snapshot for restore.
func (db *DB) SaveAll(s *engine.Simulation, slowTicks uint64) error {
	state := CaptureState(s, slowTicks)
	slog.Info("saving settlement state",
		"agents", len(state.Agents), "markets", len(state.Markets), "buildings", len(state.Buildings))

	if err := db.SaveAgents(state.Agents); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveMarkets(state.Markets); err != nil {
		return fmt.Errorf("save markets: %w", err)
	}
	if err := db.SaveBuildings(state.Buildings); err != nil {
		return fmt.Errorf("save buildings: %w", err)
	}
	if err := db.SaveEvents(s.Events()); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveSnapshot(state); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := db.SaveMeta("last_slow_tick", fmt.Sprintf("%d", slowTicks)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("settlement state saved")
	return nil
}
