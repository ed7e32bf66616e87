// Package persistence stores world snapshots and the simulation event
// journal in SQLite. Snapshots are zstd-compressed JSON blobs validated
// against a schema before restore.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/engine"
	"github.com/astralforge/starhold/internal/simerr"
)

// Store wraps a SQLite connection for save slots and the event journal.
type Store struct {
	conn *sqlx.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &Store{conn: conn, enc: enc, dec: dec}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS save_slots (
		name TEXT PRIMARY KEY,
		save_id TEXT NOT NULL,
		save_version INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		now_s REAL NOT NULL,
		created_at TEXT NOT NULL,
		snapshot BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_tick ON journal(tick);
	CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal(kind);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// SlotInfo describes one saved game without its blob.
type SlotInfo struct {
	Name        string    `db:"name" json:"name"`
	SaveID      string    `db:"save_id" json:"save_id"`
	SaveVersion int       `db:"save_version" json:"save_version"`
	Tick        uint64    `db:"tick" json:"tick"`
	NowS        float64   `db:"now_s" json:"now_s"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SaveSlot serializes, compresses, and stores a snapshot under a named
// slot, replacing any previous save with that name.
func (s *Store) SaveSlot(name string, snap *engine.Snapshot) (SlotInfo, error) {
	if name == "" {
		return SlotInfo{}, simerr.Validationf("save slot name must be non-empty")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return SlotInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	blob := s.enc.EncodeAll(raw, nil)

	info := SlotInfo{
		Name:        name,
		SaveID:      uuid.NewString(),
		SaveVersion: snap.SaveVersion,
		Tick:        snap.Tick,
		NowS:        snap.NowS,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.conn.Exec(`INSERT OR REPLACE INTO save_slots
		(name, save_id, save_version, tick, now_s, created_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.Name, info.SaveID, info.SaveVersion, info.Tick, info.NowS,
		info.CreatedAt.Format(time.RFC3339Nano), blob)
	if err != nil {
		return SlotInfo{}, fmt.Errorf("insert slot %q: %w", name, err)
	}
	slog.Info("snapshot saved", "slot", name, "tick", info.Tick,
		"raw_bytes", len(raw), "compressed_bytes", len(blob))
	return info, nil
}

// LoadSlot decompresses and decodes a named save. The snapshot is schema
// validated before decoding so corrupt blobs fail with CorruptedState
// instead of a partial decode.
func (s *Store) LoadSlot(name string) (*engine.Snapshot, error) {
	var blob []byte
	if err := s.conn.Get(&blob, "SELECT snapshot FROM save_slots WHERE name = ?", name); err != nil {
		return nil, simerr.NotFound("save slot", name)
	}
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, simerr.Corruptedf("slot %q: decompress: %v", name, err)
	}
	if err := ValidateSnapshot(raw); err != nil {
		return nil, err
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, simerr.Corruptedf("slot %q: decode: %v", name, err)
	}
	return &snap, nil
}

// Slots lists all saves, newest first.
func (s *Store) Slots() ([]SlotInfo, error) {
	rows, err := s.conn.Queryx(`SELECT name, save_id, save_version, tick, now_s, created_at
		FROM save_slots ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotInfo
	for rows.Next() {
		var (
			info SlotInfo
			ts   string
		)
		if err := rows.Scan(&info.Name, &info.SaveID, &info.SaveVersion,
			&info.Tick, &info.NowS, &ts); err != nil {
			return nil, err
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, simerr.Corruptedf("slot %q: timestamp %q", info.Name, ts)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSlot removes a named save.
func (s *Store) DeleteSlot(name string) error {
	res, err := s.conn.Exec("DELETE FROM save_slots WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return simerr.NotFound("save slot", name)
	}
	return nil
}

// AppendJournal writes flushed bus events to the journal.
func (s *Store) AppendJournal(events []bus.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO journal (tick, kind, payload) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", e.Kind, err)
		}
		if _, err := stmt.Exec(e.Tick, e.Kind, string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// JournalEntry is one recorded simulation event.
type JournalEntry struct {
	Tick    uint64 `db:"tick" json:"tick"`
	Kind    string `db:"kind" json:"kind"`
	Payload string `db:"payload" json:"payload"`
}

// RecentJournal returns the most recent N journal entries.
func (s *Store) RecentJournal(limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	err := s.conn.Select(&out,
		"SELECT tick, kind, payload FROM journal ORDER BY id DESC LIMIT ?", limit)
	return out, err
}

// SetMeta stores a key-value pair.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// Meta retrieves a metadata value.
func (s *Store) Meta(key string) (string, error) {
	var value string
	err := s.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
