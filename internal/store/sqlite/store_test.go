package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamerstock/internal/game"
	"streamerstock/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "nested", "game.db"))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(identityID string) game.PlayerRecord {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return game.PlayerRecord{
		ID:           game.PlayerIDForIdentity(identityID),
		IdentityID:   identityID,
		Username:     "user" + identityID,
		Cash:         2000,
		Points:       100,
		Health:       100,
		Capacity:     100,
		LocationID:   game.StartingLocationID,
		Day:          1,
		Debt:         5500,
		Inventory:    map[string]int64{"pokimane": 5},
		Upgrades:     []string{"backpack"},
		CreatedAt:    created,
		LastPlayedAt: created.Add(time.Hour),
	}
}

func TestCallsBeforeInitFailFast(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "game.db"))

	_, _, err := s.GetPlayer(ctx, "player_1")
	assert.ErrorIs(t, err, store.ErrNotReady)
	assert.ErrorIs(t, s.PutPlayer(ctx, testRecord("1")), store.ErrNotReady)
	assert.ErrorIs(t, s.AppendEvent(ctx, game.GameEvent{ID: "1-a"}), store.ErrNotReady)
	_, err = s.GetPlayerEvents(ctx, "player_1", 10)
	assert.ErrorIs(t, err, store.ErrNotReady)
	_, err = s.GetLeaderboard(ctx, 10)
	assert.ErrorIs(t, err, store.ErrNotReady)
	assert.NoError(t, s.Close())
}

func TestInitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.db")
	s := New(path)
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.PutPlayer(context.Background(), testRecord("1")))
	require.NoError(t, s.Close())

	// Reopening keeps existing data.
	s = New(path)
	require.NoError(t, s.Init(context.Background()))
	defer s.Close()
	_, found, err := s.GetPlayer(context.Background(), "player_1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInitUnavailable(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened as a database file.
	s := New(dir)
	err := s.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestPutGetPlayer(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, found, err := s.GetPlayer(ctx, "player_missing")
	require.NoError(t, err)
	assert.False(t, found)

	rec := testRecord("42")
	require.NoError(t, s.PutPlayer(ctx, rec))

	got, found, err := s.GetPlayer(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)

	byIdentity, found, err := s.GetPlayerByIdentity(ctx, "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, byIdentity)
}

func TestPutPlayerUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec := testRecord("7")
	require.NoError(t, s.PutPlayer(ctx, rec))

	updated := rec
	updated.Cash = 99
	updated.Inventory = map[string]int64{}
	updated.Upgrades = []string{}
	updated.CreatedAt = rec.CreatedAt.Add(24 * time.Hour)
	updated.LastPlayedAt = rec.LastPlayedAt.Add(24 * time.Hour)
	require.NoError(t, s.PutPlayer(ctx, updated))

	got, _, err := s.GetPlayer(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Cash)
	assert.Empty(t, got.Inventory)
	assert.Empty(t, got.Upgrades)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
	assert.Equal(t, updated.LastPlayedAt, got.LastPlayedAt)
}

func TestPutPlayerIdentityCollision(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutPlayer(ctx, testRecord("1")))
	other := testRecord("2")
	other.IdentityID = "1"
	assert.ErrorIs(t, s.PutPlayer(ctx, other), store.ErrDuplicateKey)
}

func TestAppendEventDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ev := game.GameEvent{
		ID:        "1700000000000-abcdefghi",
		Kind:      game.KindTrade,
		Timestamp: time.UnixMilli(1_700_000_000_000).UTC(),
		PlayerID:  "player_1",
		Payload:   map[string]any{"action": "buy", "quantity": 5},
	}
	require.NoError(t, s.AppendEvent(ctx, ev))
	assert.ErrorIs(t, s.AppendEvent(ctx, ev), store.ErrDuplicateKey)

	events, err := s.GetPlayerEvents(ctx, "player_1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "buy", events[0].Payload["action"])
	// JSON numbers come back as float64.
	assert.Equal(t, float64(5), events[0].Payload["quantity"])
	assert.Equal(t, ev.Timestamp, events[0].Timestamp)
}

func TestGetPlayerEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.UnixMilli(1_700_000_000_000).UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendEvent(ctx, game.GameEvent{
			ID:        fmt.Sprintf("%d-event%04d", base.UnixMilli(), i),
			Kind:      game.KindTravel,
			Timestamp: base.Add(time.Duration(i/2) * time.Second),
			PlayerID:  "player_1",
		}))
	}
	require.NoError(t, s.AppendEvent(ctx, game.GameEvent{
		ID: "other", Kind: game.KindAuth, Timestamp: base.Add(time.Hour), PlayerID: "player_2",
	}))

	events, err := s.GetPlayerEvents(ctx, "player_1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	ids := []string{events[0].ID, events[1].ID, events[2].ID}
	prefix := fmt.Sprintf("%d-event", base.UnixMilli())
	assert.Equal(t, []string{prefix + "0004", prefix + "0003", prefix + "0002"}, ids)
	for _, ev := range events {
		assert.Equal(t, "player_1", ev.PlayerID)
	}
}

func TestSessionsAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutPlayer(ctx, testRecord("1")))

	start := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	score := func(v int64) *int64 { return &v }

	open := game.GameSession{ID: "s-open", PlayerID: "player_1", StartTime: start}
	require.NoError(t, s.PutSession(ctx, open))

	got, found, err := s.GetSession(ctx, "s-open")
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.FinalScore)
	assert.Empty(t, got.Events)

	open.EndTime = &end
	open.FinalScore = score(3100)
	require.NoError(t, s.PutSession(ctx, open))
	require.NoError(t, s.PutSession(ctx, game.GameSession{
		ID: "s-anon", PlayerID: "player_99999999", StartTime: start, EndTime: &end, FinalScore: score(5000),
	}))
	require.NoError(t, s.PutSession(ctx, game.GameSession{
		ID: "s-unfinished", PlayerID: "player_1", StartTime: start,
	}))

	got, _, err = s.GetSession(ctx, "s-open")
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, end, *got.EndTime)
	assert.Equal(t, int64(3100), *got.FinalScore)

	rows, err := s.GetLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1), rows[0].Rank)
	assert.Equal(t, int64(5000), rows[0].Score)
	assert.Equal(t, "Player_player_9", rows[0].Username)

	assert.Equal(t, int64(2), rows[1].Rank)
	assert.Equal(t, "user1", rows[1].Username)
	assert.Equal(t, end, rows[1].Date)

	rows, err = s.GetLeaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, found, err = s.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.GetPlayer(ctx, "player_1")
	assert.ErrorIs(t, err, context.Canceled)
}
