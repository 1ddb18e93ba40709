package store

import (
	"encoding/json"
	"fmt"
	"time"

	"streamerstock/internal/game"
)

// Schema is shared by both backends: timestamps are unix millis and nested
// values are JSON text, so the same statements run on SQLite and Postgres.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		cash BIGINT NOT NULL,
		points BIGINT NOT NULL,
		health BIGINT NOT NULL,
		capacity BIGINT NOT NULL,
		location_id TEXT NOT NULL,
		day BIGINT NOT NULL,
		debt BIGINT NOT NULL,
		inventory_json TEXT NOT NULL,
		upgrades_json TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL,
		last_played_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		timestamp_ms BIGINT NOT NULL,
		player_id TEXT NOT NULL,
		payload_json TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_player_id ON events (player_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events (kind)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp_ms)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		start_time_ms BIGINT NOT NULL,
		end_time_ms BIGINT,
		events_json TEXT NOT NULL,
		final_score BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_player_id ON sessions (player_id)`,
}

const (
	PlayerColumns = `id, identity_id, username, cash, points, health, capacity, location_id, day, debt,
		inventory_json, upgrades_json, created_at_ms, last_played_at_ms`
	EventColumns   = `id, kind, timestamp_ms, player_id, payload_json`
	SessionColumns = `id, player_id, start_time_ms, end_time_ms, events_json, final_score`
)

// RowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// PlayerValues returns the column values of rec in PlayerColumns order.
func PlayerValues(rec game.PlayerRecord) ([]any, error) {
	inventory := rec.Inventory
	if inventory == nil {
		inventory = map[string]int64{}
	}
	inv, err := json.Marshal(inventory)
	if err != nil {
		return nil, fmt.Errorf("encode inventory: %w", err)
	}
	upgrades := rec.Upgrades
	if upgrades == nil {
		upgrades = []string{}
	}
	upg, err := json.Marshal(upgrades)
	if err != nil {
		return nil, fmt.Errorf("encode upgrades: %w", err)
	}
	return []any{
		rec.ID, rec.IdentityID, rec.Username,
		rec.Cash, rec.Points, rec.Health, rec.Capacity,
		rec.LocationID, rec.Day, rec.Debt,
		string(inv), string(upg),
		ToMillis(rec.CreatedAt), ToMillis(rec.LastPlayedAt),
	}, nil
}

func ScanPlayer(row RowScanner) (game.PlayerRecord, error) {
	var (
		rec                 game.PlayerRecord
		inv, upg            string
		createdMs, playedMs int64
	)
	if err := row.Scan(
		&rec.ID, &rec.IdentityID, &rec.Username,
		&rec.Cash, &rec.Points, &rec.Health, &rec.Capacity,
		&rec.LocationID, &rec.Day, &rec.Debt,
		&inv, &upg, &createdMs, &playedMs,
	); err != nil {
		return game.PlayerRecord{}, err
	}
	rec.Inventory = map[string]int64{}
	if err := json.Unmarshal([]byte(inv), &rec.Inventory); err != nil {
		return game.PlayerRecord{}, fmt.Errorf("decode inventory: %w", err)
	}
	rec.Upgrades = []string{}
	if err := json.Unmarshal([]byte(upg), &rec.Upgrades); err != nil {
		return game.PlayerRecord{}, fmt.Errorf("decode upgrades: %w", err)
	}
	rec.CreatedAt = FromMillis(createdMs)
	rec.LastPlayedAt = FromMillis(playedMs)
	return rec, nil
}

func EventValues(ev game.GameEvent) ([]any, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return []any{ev.ID, string(ev.Kind), ToMillis(ev.Timestamp), ev.PlayerID, string(raw)}, nil
}

func ScanEvent(row RowScanner) (game.GameEvent, error) {
	var (
		ev   game.GameEvent
		kind string
		ms   int64
		raw  string
	)
	if err := row.Scan(&ev.ID, &kind, &ms, &ev.PlayerID, &raw); err != nil {
		return game.GameEvent{}, err
	}
	ev.Kind = game.EventKind(kind)
	ev.Timestamp = FromMillis(ms)
	ev.Payload = map[string]any{}
	if err := json.Unmarshal([]byte(raw), &ev.Payload); err != nil {
		return game.GameEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	return ev, nil
}

func SessionValues(s game.GameSession) ([]any, error) {
	events := s.Events
	if events == nil {
		events = []game.GameEvent{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode session events: %w", err)
	}
	var endMs *int64
	if s.EndTime != nil {
		v := ToMillis(*s.EndTime)
		endMs = &v
	}
	return []any{s.ID, s.PlayerID, ToMillis(s.StartTime), endMs, string(raw), s.FinalScore}, nil
}

func ScanSession(row RowScanner) (game.GameSession, error) {
	var (
		s       game.GameSession
		startMs int64
		endMs   *int64
		raw     string
		score   *int64
	)
	if err := row.Scan(&s.ID, &s.PlayerID, &startMs, &endMs, &raw, &score); err != nil {
		return game.GameSession{}, err
	}
	s.StartTime = FromMillis(startMs)
	if endMs != nil {
		end := FromMillis(*endMs)
		s.EndTime = &end
	}
	s.FinalScore = score
	s.Events = []game.GameEvent{}
	if err := json.Unmarshal([]byte(raw), &s.Events); err != nil {
		return game.GameSession{}, fmt.Errorf("decode session events: %w", err)
	}
	return s, nil
}

// ScanLeaderboardRow reads player_id, username, score and date millis.
func ScanLeaderboardRow(row RowScanner) (game.LeaderboardRow, error) {
	var (
		r  game.LeaderboardRow
		ms int64
	)
	if err := row.Scan(&r.PlayerID, &r.Username, &r.Score, &ms); err != nil {
		return game.LeaderboardRow{}, err
	}
	r.Date = FromMillis(ms)
	return r, nil
}
