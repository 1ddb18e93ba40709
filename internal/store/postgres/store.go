// Package postgres is a Store backed by a pgx connection pool, for running the
// game against a shared database instead of a local file.
package postgres

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"streamerstock/internal/db"
	"streamerstock/internal/game"
	"streamerstock/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	databaseURL string

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

func New(databaseURL string) *Store {
	return &Store{databaseURL: databaseURL}
}

func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return nil
	}
	if strings.TrimSpace(s.databaseURL) == "" {
		return errors.Wrap(store.ErrStoreUnavailable, "database url is required")
	}
	pool, err := db.Connect(ctx, s.databaseURL)
	if err != nil {
		return errors.Wrapf(store.ErrStoreUnavailable, "%v", err)
	}
	for _, stmt := range store.Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return errors.Wrapf(store.ErrStoreUnavailable, "create schema: %v", err)
		}
	}
	s.pool = pool
	return nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *Store) conn(ctx context.Context) (*pgxpool.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, store.ErrNotReady
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, store.ErrNotReady
	}
	return s.pool, nil
}

func (s *Store) PutPlayer(ctx context.Context, rec game.PlayerRecord) error {
	pool, err := s.conn(ctx)
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
	_, err = pool.Exec(ctx, `
		INSERT INTO players (`+store.PlayerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			identity_id = EXCLUDED.identity_id,
			username = EXCLUDED.username,
			cash = EXCLUDED.cash,
			points = EXCLUDED.points,
			health = EXCLUDED.health,
			capacity = EXCLUDED.capacity,
			location_id = EXCLUDED.location_id,
			day = EXCLUDED.day,
			debt = EXCLUDED.debt,
			inventory_json = EXCLUDED.inventory_json,
			upgrades_json = EXCLUDED.upgrades_json,
			last_played_at_ms = EXCLUDED.last_played_at_ms
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
	return s.getPlayer(ctx, `SELECT `+store.PlayerColumns+` FROM players WHERE id = $1`, id)
}

func (s *Store) GetPlayerByIdentity(ctx context.Context, identityID string) (game.PlayerRecord, bool, error) {
	return s.getPlayer(ctx, `SELECT `+store.PlayerColumns+` FROM players WHERE identity_id = $1`, identityID)
}

func (s *Store) getPlayer(ctx context.Context, query, key string) (game.PlayerRecord, bool, error) {
	pool, err := s.conn(ctx)
	if err != nil {
		return game.PlayerRecord{}, false, err
	}
	rec, err := store.ScanPlayer(pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.PlayerRecord{}, false, nil
	}
	if err != nil {
		return game.PlayerRecord{}, false, errors.Wrapf(err, "get player %s", key)
	}
	return rec, true, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev game.GameEvent) error {
	pool, err := s.conn(ctx)
	if err != nil {
		return err
	}
	args, err := store.EventValues(ev)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO events (`+store.EventColumns+`) VALUES ($1, $2, $3, $4, $5)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(store.ErrDuplicateKey, "event %s", ev.ID)
		}
		return errors.Wrap(err, "append event")
	}
	return nil
}

func (s *Store) GetPlayerEvents(ctx context.Context, playerID string, limit int) ([]game.GameEvent, error) {
	pool, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `
		SELECT `+store.EventColumns+`
		FROM events
		WHERE player_id = $1
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT $2
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
	pool, err := s.conn(ctx)
	if err != nil {
		return err
	}
	args, err := store.SessionValues(gs)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO sessions (`+store.SessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			player_id = EXCLUDED.player_id,
			start_time_ms = EXCLUDED.start_time_ms,
			end_time_ms = EXCLUDED.end_time_ms,
			events_json = EXCLUDED.events_json,
			final_score = EXCLUDED.final_score
	`, args...)
	if err != nil {
		return errors.Wrap(err, "put session")
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (game.GameSession, bool, error) {
	pool, err := s.conn(ctx)
	if err != nil {
		return game.GameSession{}, false, err
	}
	gs, err := store.ScanSession(pool.QueryRow(ctx,
		`SELECT `+store.SessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.GameSession{}, false, nil
	}
	if err != nil {
		return game.GameSession{}, false, errors.Wrapf(err, "get session %s", id)
	}
	return gs, true, nil
}

func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	pool, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `
		SELECT s.player_id,
		       COALESCE(NULLIF(p.username, ''), 'Player_' || substr(s.player_id, 1, 8)),
		       s.final_score,
		       COALESCE(s.end_time_ms, s.start_time_ms)
		FROM sessions s
		LEFT JOIN players p ON p.id = s.player_id
		WHERE s.final_score IS NOT NULL
		ORDER BY s.final_score DESC, s.id ASC
		LIMIT $1
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
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
