// Package agentdb persists flow agent configs in SQLite.
package agentdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"containerflow.ai/internal/sim/flow"
)

var ErrClosed = errors.New("agent store closed")

// Record is one stored agent config.
type Record struct {
	EntityID  int64
	Config    flow.AgentConfig
	UpdatedAt time.Time
}

// SnapshotRow indexes a snapshot file written by the server.
type SnapshotRow struct {
	Tick       uint64
	Path       string
	Digest     string
	Entities   int
	Containers int
	RecordedAt time.Time
}

// Store implements flow.StateStore. Writes go through a single writer
// goroutine; Load sees queued writes before they reach the database.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	mu      sync.Mutex
	seq     uint64
	pending map[int64]pendingWrite
}

type pendingWrite struct {
	cfg flow.AgentConfig
	seq uint64
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	entityID int64
	cfg      flow.AgentConfig
	seq      uint64
	snapshot SnapshotRow
	done     chan struct{}
}

func Open(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if log == nil {
		log = zap.NewNop()
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

	s := &Store{
		db:      db,
		log:     log,
		ch:      make(chan req, 4096),
		pending: map[int64]pendingWrite{},
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agent_state (
			entity_id INTEGER PRIMARY KEY,
			collect INTEGER NOT NULL,
			forward INTEGER NOT NULL,
			target_id INTEGER,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			entities INTEGER NOT NULL,
			containers INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Save queues an upsert. It blocks only while the writer queue is full.
func (s *Store) Save(ctx context.Context, entityID int64, cfg flow.AgentConfig) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.pending[entityID] = pendingWrite{cfg: copyConfig(cfg), seq: seq}
	s.mu.Unlock()

	select {
	case s.ch <- req{kind: reqSave, entityID: entityID, cfg: cfg, seq: seq}:
		return nil
	case <-ctx.Done():
		s.dropPending(entityID, seq)
		return fmt.Errorf("save agent %d: %w", entityID, ctx.Err())
	}
}

func (s *Store) Load(ctx context.Context, entityID int64) (flow.AgentConfig, bool, error) {
	if s.closed.Load() {
		return flow.AgentConfig{}, false, ErrClosed
	}
	s.mu.Lock()
	p, ok := s.pending[entityID]
	s.mu.Unlock()
	if ok {
		return copyConfig(p.cfg), true, nil
	}

	var (
		collect, forward int
		target           sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT collect, forward, target_id FROM agent_state WHERE entity_id = ?`, entityID,
	).Scan(&collect, &forward, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return flow.AgentConfig{}, false, nil
	}
	if err != nil {
		return flow.AgentConfig{}, false, fmt.Errorf("load agent %d: %w", entityID, err)
	}
	cfg := flow.AgentConfig{Collect: collect != 0, Forward: forward != 0}
	if target.Valid {
		id := target.Int64
		cfg.Target = &id
	}
	return cfg, true, nil
}

// List returns every stored record ordered by entity id. Queued writes are
// flushed first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return ListDB(ctx, s.db)
}

// RecordSnapshot indexes a written snapshot file.
func (s *Store) RecordSnapshot(row SnapshotRow) {
	if s.closed.Load() {
		return
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: row}:
	default:
		s.log.Warn("snapshot index queue full", zap.Uint64("tick", row.Tick))
	}
}

// Flush waits until every queued write has been committed.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) dropPending(entityID int64, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[entityID]; ok && p.seq == seq {
		delete(s.pending, entityID)
	}
}

func (s *Store) loop() {
	ctx := context.Background()
	upsert, err := s.db.Prepare(`INSERT INTO agent_state(entity_id,collect,forward,target_id,updated_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT(entity_id) DO UPDATE SET
			collect=excluded.collect, forward=excluded.forward,
			target_id=excluded.target_id, updated_at=excluded.updated_at`)
	if err != nil {
		s.log.Error("prepare agent upsert", zap.Error(err))
	}
	insertSnapshot, err := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,digest,entities,containers,recorded_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		s.log.Error("prepare snapshot insert", zap.Error(err))
	}
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqSave:
			if upsert == nil {
				continue
			}
			var target any
			if id, ok := r.cfg.TargetID(); ok {
				target = id
			}
			now := time.Now().UTC().Format(time.RFC3339Nano)
			if _, err := upsert.ExecContext(ctx, r.entityID, boolInt(r.cfg.Collect), boolInt(r.cfg.Forward), target, now); err != nil {
				s.log.Warn("agent state write failed", zap.Int64("entity_id", r.entityID), zap.Error(err))
			}
			s.dropPending(r.entityID, r.seq)
		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			row := r.snapshot
			if _, err := insertSnapshot.ExecContext(ctx, int64(row.Tick), row.Path, row.Digest, row.Entities, row.Containers,
				row.RecordedAt.UTC().Format(time.RFC3339Nano)); err != nil {
				s.log.Warn("snapshot index write failed", zap.Uint64("tick", row.Tick), zap.Error(err))
			}
		case reqFlush:
			close(r.done)
		}
	}
}

// ListDB reads agent records straight from a database handle.
func ListDB(ctx context.Context, db *sql.DB) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT entity_id, collect, forward, target_id, updated_at FROM agent_state ORDER BY entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                Record
			collect, forward int
			target           sql.NullInt64
			updated          string
		)
		if err := rows.Scan(&r.EntityID, &collect, &forward, &target, &updated); err != nil {
			return nil, err
		}
		r.Config = flow.AgentConfig{Collect: collect != 0, Forward: forward != 0}
		if target.Valid {
			id := target.Int64
			r.Config.Target = &id
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSnapshots returns indexed snapshots, newest first.
func ListSnapshots(ctx context.Context, db *sql.DB) ([]SnapshotRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT tick, path, digest, entities, containers, recorded_at FROM snapshots ORDER BY tick DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			r        SnapshotRow
			tick     int64
			recorded string
		)
		if err := rows.Scan(&tick, &r.Path, &r.Digest, &r.Entities, &r.Containers, &recorded); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snapshots is ListSnapshots on the store's own handle, after a flush.
func (s *Store) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return ListSnapshots(ctx, s.db)
}

func copyConfig(c flow.AgentConfig) flow.AgentConfig {
	if id, ok := c.TargetID(); ok {
		c.Target = &id
	}
	return c
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
