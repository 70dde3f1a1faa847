/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
	"golang.org/x/crypto/blake2b"

	"laterbase/internal/address"
	"laterbase/internal/eid"
	laterrors "laterbase/internal/errors"
	"laterbase/internal/logging"
)

var log = logging.NewLogger("storage")

// SQLiteBackend is a persistent Backend on top of modernc.org/sqlite
// (pure Go, no cgo). Schema and PRAGMA choices follow the
// write-ahead-log pattern: WAL for concurrent readers during a writer's
// transaction, a busy timeout so a momentarily-contended writer retries
// instead of failing, and FULL synchronous durability since a replica's
// append log is the only copy of "what was acknowledged" until the next
// Sync round.
type SQLiteBackend struct {
	name  string
	db    *sql.DB
	cache *lru.Cache[eid.ID, []byte]
}

const defaultEventCacheSize = 4096

// SQLiteConfig configures a persistent backend.
type SQLiteConfig struct {
	// DSN is the modernc.org/sqlite data source name, e.g. a file path
	// or ":memory:".
	DSN string
	// EventCacheSize bounds the read-through LRU cache in front of the
	// events table. Zero selects defaultEventCacheSize.
	EventCacheSize int
}

// OpenSQLiteBackend opens (creating if absent) a persistent backend at
// cfg.DSN, grounded on the schema/PRAGMA shape used elsewhere in the
// corpus for durable append-only logs.
func OpenSQLiteBackend(name string, cfg SQLiteConfig) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, laterrors.Backend("sqlite open", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, laterrors.Backend("sqlite ping", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, laterrors.Backend(fmt.Sprintf("set %s", pragma), err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS events (
  id    BLOB PRIMARY KEY,
  value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS changes (
  offset INTEGER PRIMARY KEY,
  id     BLOB NOT NULL,
  sum    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS clocks (
  addr  BLOB PRIMARY KEY,
  clock INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, laterrors.Backend("create schema", err)
	}

	size := cfg.EventCacheSize
	if size <= 0 {
		size = defaultEventCacheSize
	}
	cache, err := lru.New[eid.ID, []byte](size)
	if err != nil {
		_ = db.Close()
		return nil, laterrors.Backend("allocate cache", err)
	}

	log.Info("opened sqlite backend", "name", name, "dsn", cfg.DSN, "cache_size", size)
	return &SQLiteBackend{name: name, db: db, cache: cache}, nil
}

// checksum returns the blake2b-256 checksum of a change-log entry,
// detecting corruption in the on-disk append log independently of
// SQLite's own page checksums (§4.2's durability contract covers only
// the logical contents, not bit-rot on the underlying volume).
func checksum(id eid.ID) [32]byte {
	return blake2b.Sum256(id[:])
}

func (s *SQLiteBackend) PutEvent(id eid.ID, value []byte) error {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO events(id, value) VALUES(?, ?)`, id[:], value)
	if err != nil {
		return laterrors.Backend("put event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.cache.Add(id, value)
	}
	return nil
}

func (s *SQLiteBackend) GetEvent(id eid.ID) ([]byte, bool, error) {
	if v, ok := s.cache.Get(id); ok {
		return v, true, nil
	}
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM events WHERE id = ?`, id[:]).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, laterrors.Backend("get event", err)
	}
	s.cache.Add(id, value)
	return value, true, nil
}

func (s *SQLiteBackend) EventCount() (uint64, error) {
	var n uint64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, laterrors.Backend("count events", err)
	}
	return n, nil
}

func (s *SQLiteBackend) AppendChange(id eid.ID) error {
	sum := checksum(id)
	_, err := s.db.Exec(
		`INSERT INTO changes(offset, id, sum) VALUES((SELECT COALESCE(MAX(offset), -1) + 1 FROM changes), ?, ?)`,
		id[:], sum[:])
	if err != nil {
		return laterrors.Backend("append change", err)
	}
	return nil
}

func (s *SQLiteBackend) ChangesSince(offset uint64) iter.Seq2[eid.ID, error] {
	return func(yield func(eid.ID, error) bool) {
		rows, err := s.db.Query(
			`SELECT id, sum FROM changes WHERE offset >= ? ORDER BY offset ASC`, offset)
		if err != nil {
			yield(eid.Zero, laterrors.Backend("changes since", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var idBytes, sumBytes []byte
			if err := rows.Scan(&idBytes, &sumBytes); err != nil {
				yield(eid.Zero, laterrors.Backend("scan change", err))
				return
			}
			id, err := eid.Decode(idBytes)
			if err != nil {
				yield(eid.Zero, laterrors.Malformed(err.Error()))
				return
			}
			want := checksum(id)
			if len(sumBytes) != len(want) || string(sumBytes) != string(want[:]) {
				yield(eid.Zero, laterrors.Backend("changes since", fmt.Errorf("checksum mismatch at id %s", id)))
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(eid.Zero, laterrors.Backend("changes since", err))
		}
	}
}

func (s *SQLiteBackend) ChangeLogLen() (uint64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(offset) + 1 FROM changes`).Scan(&n); err != nil {
		return 0, laterrors.Backend("change log len", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}

func (s *SQLiteBackend) PutClock(addr address.Address, clock uint64) error {
	_, err := s.db.Exec(
		`INSERT INTO clocks(addr, clock) VALUES(?, ?)
		 ON CONFLICT(addr) DO UPDATE SET clock = excluded.clock`,
		addr.Bytes(), clock)
	if err != nil {
		return laterrors.Backend("put clock", err)
	}
	return nil
}

func (s *SQLiteBackend) GetClock(addr address.Address) (uint64, bool, error) {
	var clock uint64
	err := s.db.QueryRow(`SELECT clock FROM clocks WHERE addr = ?`, addr.Bytes()).Scan(&clock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, laterrors.Backend("get clock", err)
	}
	return clock, true, nil
}

// sqlTx implements Tx against an open *sql.Tx.
type sqlTx struct {
	tx    *sql.Tx
	cache *lru.Cache[eid.ID, []byte]
}

func (t sqlTx) HasEvent(id eid.ID) (bool, error) {
	if _, ok := t.cache.Get(id); ok {
		return true, nil
	}
	var value []byte
	err := t.tx.QueryRow(`SELECT value FROM events WHERE id = ?`, id[:]).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, laterrors.Backend("has event", err)
	}
	return true, nil
}

func (t sqlTx) PutEvent(id eid.ID, value []byte) error {
	res, err := t.tx.Exec(`INSERT OR IGNORE INTO events(id, value) VALUES(?, ?)`, id[:], value)
	if err != nil {
		return laterrors.Backend("put event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		t.cache.Add(id, value)
	}
	return nil
}

func (t sqlTx) AppendChange(id eid.ID) error {
	sum := checksum(id)
	_, err := t.tx.Exec(
		`INSERT INTO changes(offset, id, sum) VALUES((SELECT COALESCE(MAX(offset), -1) + 1 FROM changes), ?, ?)`,
		id[:], sum[:])
	if err != nil {
		return laterrors.Backend("append change", err)
	}
	return nil
}

func (t sqlTx) PutClock(addr address.Address, clock uint64) error {
	_, err := t.tx.Exec(
		`INSERT INTO clocks(addr, clock) VALUES(?, ?)
		 ON CONFLICT(addr) DO UPDATE SET clock = excluded.clock`,
		addr.Bytes(), clock)
	if err != nil {
		return laterrors.Backend("put clock", err)
	}
	return nil
}

// WriteBatch runs fn inside a serializable SQLite transaction, so the
// whole batch commits or rolls back as one unit (§4.2(c)).
func (s *SQLiteBackend) WriteBatch(fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return laterrors.Backend("begin batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(sqlTx{tx: tx, cache: s.cache}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return laterrors.Backend("commit batch", err)
	}
	return nil
}

func (s *SQLiteBackend) Stats() (Stats, error) {
	eventCount, err := s.EventCount()
	if err != nil {
		return Stats{}, err
	}
	changeLen, err := s.ChangeLogLen()
	if err != nil {
		return Stats{}, err
	}
	var peers int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clocks`).Scan(&peers); err != nil {
		return Stats{}, laterrors.Backend("count peers", err)
	}
	return Stats{Name: s.name, EventCount: eventCount, ChangeLen: changeLen, PeerCount: peers}, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
