// Package sqlite is the default local Store, backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"streamerstock/internal/db"
	"streamerstock/internal/game"
	"streamerstock/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	path string

	mu    sync.RWMutex
	sqlDB *sql.DB
}

// New does no I/O; the file is opened by Init.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sqlDB != nil {
		return nil
	}
	sqlDB, err := db.OpenSQLite(ctx, s.path)
	if err != nil {
		return errors.Wrapf(store.ErrStoreUnavailable, "%v", err)
	}
	for _, stmt := range store.Schema {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			_ = sqlDB.Close()
			return errors.Wrapf(store.ErrStoreUnavailable, "create schema: %v", err)
		}
	}
	s.sqlDB = sqlDB
	return nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sqlDB == nil {
		return nil
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}

func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, store.ErrNotReady
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sqlDB == nil {
		return nil, store.ErrNotReady
	}
	return s.sqlDB, nil
}

// PutPlayer upserts by id. created_at is only written on first insert.
func (s *Store) PutPlayer(ctx context.Context, rec game.PlayerRecord) error {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("player id is required")
	}
	args, err := store.PlayerValues(rec)
	if err != nil {
		return err
	}
	_, err = sqlDB.ExecContext(ctx, `
		INSERT INTO players (`+store.PlayerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			identity_id = excluded.identity_id,
			username = excluded.username,
			cash = excluded.cash,
			points = excluded.points,
			health = excluded.health,
			capacity = excluded.capacity,
			location_id = excluded.location_id,
			day = excluded.day,
			debt = excluded.debt,
			inventory_json = excluded.inventory_json,
			upgrades_json = excluded.upgrades_json,
			last_played_at_ms = excluded.last_played_at_ms
	`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(store.ErrDuplicateKey, "player %s", rec.ID)
		}
		return errors.Wrap(err, "put player")
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (game.PlayerRecord, bool, error) {
	return s.getPlayer(ctx, `SELECT `+store.PlayerColumns+` FROM players WHERE id = ?`, id)
}

func (s *Store) GetPlayerByIdentity(ctx context.Context, identityID string) (game.PlayerRecord, bool, error) {
	return s.getPlayer(ctx, `SELECT `+store.PlayerColumns+` FROM players WHERE identity_id = ?`, identityID)
}

func (s *Store) getPlayer(ctx context.Context, query, key string) (game.PlayerRecord, bool, error) {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return game.PlayerRecord{}, false, err
	}
	rec, err := store.ScanPlayer(sqlDB.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return game.PlayerRecord{}, false, nil
	}
	if err != nil {
		return game.PlayerRecord{}, false, errors.Wrapf(err, "get player %s", key)
	}
	return rec, true, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev game.GameEvent) error {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return err
	}
	args, err := store.EventValues(ev)
	if err != nil {
		return err
	}
	_, err = sqlDB.ExecContext(ctx,
		`INSERT INTO events (`+store.EventColumns+`) VALUES (?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(store.ErrDuplicateKey, "event %s", ev.ID)
		}
		return errors.Wrap(err, "append event")
	}
	return nil
}

func (s *Store) GetPlayerEvents(ctx context.Context, playerID string, limit int) ([]game.GameEvent, error) {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlDB.QueryContext(ctx, `
		SELECT `+store.EventColumns+`
		FROM events
		WHERE player_id = ?
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT ?
	`, playerID, store.Limit(limit, store.DefaultEventLimit))
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	out := []game.GameEvent{}
	for rows.Next() {
		ev, err := store.ScanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate events")
	}
	return out, nil
}

func (s *Store) PutSession(ctx context.Context, gs game.GameSession) error {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return err
	}
	args, err := store.SessionValues(gs)
	if err != nil {
		return err
	}
	_, err = sqlDB.ExecContext(ctx, `
		INSERT INTO sessions (`+store.SessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			player_id = excluded.player_id,
			start_time_ms = excluded.start_time_ms,
			end_time_ms = excluded.end_time_ms,
			events_json = excluded.events_json,
			final_score = excluded.final_score
	`, args...)
	if err != nil {
		return errors.Wrap(err, "put session")
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (game.GameSession, bool, error) {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return game.GameSession{}, false, err
	}
	gs, err := store.ScanSession(sqlDB.QueryRowContext(ctx,
		`SELECT `+store.SessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return game.GameSession{}, false, nil
	}
	if err != nil {
		return game.GameSession{}, false, errors.Wrapf(err, "get session %s", id)
	}
	return gs, true, nil
}

func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlDB.QueryContext(ctx, `
		SELECT s.player_id,
		       COALESCE(NULLIF(p.username, ''), 'Player_' || substr(s.player_id, 1, 8)),
		       s.final_score,
		       COALESCE(s.end_time_ms, s.start_time_ms)
		FROM sessions s
		LEFT JOIN players p ON p.id = s.player_id
		WHERE s.final_score IS NOT NULL
		ORDER BY s.final_score DESC, s.id ASC
		LIMIT ?
	`, store.Limit(limit, store.DefaultLeaderboardLimit))
	if err != nil {
		return nil, errors.Wrap(err, "query leaderboard")
	}
	defer rows.Close()

	out := []game.LeaderboardRow{}
	for rows.Next() {
		row, err := store.ScanLeaderboardRow(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan leaderboard row")
		}
		row.Rank = int64(len(out) + 1)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate leaderboard")
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
