// Package session runs one player's game: it signs the player in, dispatches
// intents to the state machine, drives the market clock and hands every change
// to the write-behind queue.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamerstock/internal/auth"
	"streamerstock/internal/game"
	"streamerstock/internal/store"
	"streamerstock/internal/syncq"
)

var ErrNotAuthenticated = errors.New("not signed in")

const (
	DefaultMarketTickEvery = 5 * time.Second
	DefaultAutosaveEvery   = 10 * time.Second
)

type Options struct {
	Provider auth.Provider
	Store    store.Store
	Writer   *syncq.Writer
	Logger   *slog.Logger

	Locations       []game.Location
	Seed            int64
	MarketTickEvery time.Duration
	AutosaveEvery   time.Duration
	Now             func() time.Time
}

// State is the read-only projection handed to presentation layers.
type State struct {
	Authenticated bool            `json:"authenticated"`
	Identity      *auth.Identity  `json:"identity,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	Player        game.Player     `json:"player"`
	Location      game.Location   `json:"location"`
	Locations     []game.Location `json:"locations"`
	Upgrades      []game.Upgrade  `json:"upgrades"`
	Message       string          `json:"message,omitempty"`
	TotalWeight   int64           `json:"total_weight"`
	TotalValue    int64           `json:"total_value"`
	Degraded      bool            `json:"degraded"`
}

type Session struct {
	provider auth.Provider
	store    store.Store
	writer   *syncq.Writer
	log      *slog.Logger
	now      func() time.Time

	marketEvery   time.Duration
	autosaveEvery time.Duration

	mu           sync.Mutex
	market       *game.Market
	machine      *game.Machine
	identity     *auth.Identity
	current      *game.GameSession
	storeReady   bool
	message      string
	messageUntil time.Time
	sched        *Scheduler
}

func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	writer := opts.Writer
	if writer == nil {
		writer = syncq.NewWriter(logger, syncq.DefaultCapacity)
	}
	locations := opts.Locations
	if len(locations) == 0 {
		locations = game.DefaultLocations()
	}
	marketEvery := opts.MarketTickEvery
	if marketEvery <= 0 {
		marketEvery = DefaultMarketTickEvery
	}
	autosaveEvery := opts.AutosaveEvery
	if autosaveEvery <= 0 {
		autosaveEvery = DefaultAutosaveEvery
	}
	return &Session{
		provider:      opts.Provider,
		store:         opts.Store,
		writer:        writer,
		log:           logger,
		now:           now,
		marketEvery:   marketEvery,
		autosaveEvery: autosaveEvery,
		market:        game.NewMarket(locations, opts.Seed),
	}
}

// Start initializes the store and resumes a previously stored identity. A
// store that cannot be opened leaves the session running in memory only.
func (s *Session) Start(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.Init(ctx); err != nil {
			s.log.Error("store unavailable, progress will not be saved", "err", err)
		} else {
			s.mu.Lock()
			s.storeReady = true
			s.mu.Unlock()
		}
	}
	if _, err := s.Resume(ctx); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}

// Resume loads the player for the provider's stored identity without a new
// sign-in. It reports false when there is nothing to resume.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	if s.provider == nil {
		return false, nil
	}
	identity, ok := s.provider.StoredIdentity()
	if !ok {
		return false, nil
	}
	pre := s.prepare(ctx, identity.ID)

	s.mu.Lock()
	if s.machine != nil {
		s.mu.Unlock()
		return true, nil
	}
	created, err := s.beginLocked(identity, false, pre)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	playerID := s.machine.PlayerID()
	s.mu.Unlock()

	s.settleCreated(ctx, created)
	s.log.Info("resumed stored identity", "player_id", playerID)
	return true, nil
}

// Authenticate signs in with the provider and loads or creates the player.
// A failed sign-in leaves the session untouched.
func (s *Session) Authenticate(ctx context.Context) (State, error) {
	if s.provider == nil {
		return s.State(), fmt.Errorf("%w: no identity provider configured", auth.ErrAuthFailed)
	}
	identity, err := s.provider.Authenticate(ctx)
	if err != nil {
		s.log.Warn("authentication failed", "err", err)
		return s.State(), err
	}

	// End the running game first so its final save is visible to prepare.
	s.stopScheduler()
	s.mu.Lock()
	if s.machine != nil {
		s.endLocked()
	}
	s.mu.Unlock()

	pre := s.prepare(ctx, identity.ID)

	s.stopScheduler()
	s.mu.Lock()
	if s.machine != nil {
		// A concurrent sign-in or resume won the gap.
		s.endLocked()
	}
	created, err := s.beginLocked(identity, true, pre)
	if err != nil {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, err
	}
	playerID := s.machine.PlayerID()
	s.mu.Unlock()

	s.settleCreated(ctx, created)
	s.log.Info("player signed in", "player_id", playerID)
	return s.State(), nil
}

// preparation is everything a sign-in needs from the provider and the store.
// It is gathered without holding s.mu.
type preparation struct {
	points int64
	rec    game.PlayerRecord
	found  bool
}

func (s *Session) prepare(ctx context.Context, identityID string) preparation {
	pre := preparation{points: game.StartingPoints}
	if p, err := s.provider.InitialPoints(ctx); err != nil {
		s.log.Warn("initial points unavailable", "err", err)
	} else {
		pre.points = p
	}
	rec, found, err := s.loadPlayer(ctx, identityID)
	if err != nil {
		s.log.Error("load player failed, starting fresh", "err", err)
		return pre
	}
	pre.rec, pre.found = rec, found
	return pre
}

// beginLocked installs a machine for identity and reports whether a new
// player record was created.
func (s *Session) beginLocked(identity auth.Identity, signIn bool, pre preparation) (bool, error) {
	m := game.NewMachine(s.market, identity.ID, identity.Username())
	m.SetClock(s.now)

	var authEvent *game.GameEvent
	if signIn {
		ev, err := m.AuthEvent()
		if err != nil {
			return false, err
		}
		authEvent = &ev
	}

	if pre.found {
		m.Restore(pre.rec)
	} else {
		m.GrantPoints(pre.points)
	}

	s.machine = m
	s.identity = &identity
	s.current = &game.GameSession{
		ID:        uuid.NewString(),
		PlayerID:  m.PlayerID(),
		StartTime: s.now(),
		Events:    []game.GameEvent{},
	}
	if !pre.found {
		s.enqueuePlayerLocked()
	}
	if authEvent != nil {
		s.recordLocked(*authEvent)
	}
	s.enqueueSessionLocked()
	s.setMessageLocked(fmt.Sprintf("Welcome, %s!", identity.Username()), game.EventMessageTTL)
	if old := s.sched; old != nil {
		// Left by a concurrent sign-in. Stop waits on callbacks that need s.mu.
		go old.Stop()
	}
	s.sched = StartScheduler(s.log, s.marketEvery, s.autosaveEvery, s.Tick, s.Autosave)
	return !pre.found, nil
}

// settleCreated waits until a newly created player record is written.
func (s *Session) settleCreated(ctx context.Context, created bool) {
	if !created {
		return
	}
	if err := s.writer.Flush(ctx); err != nil {
		s.log.Error("create player not confirmed", "err", err)
	}
}

// loadPlayer waits for queued writes so a quick logout and login reads what
// was just saved.
func (s *Session) loadPlayer(ctx context.Context, identityID string) (game.PlayerRecord, bool, error) {
	s.mu.Lock()
	ready := s.storeReady
	s.mu.Unlock()
	if !ready {
		return game.PlayerRecord{}, false, nil
	}
	if err := s.writer.Flush(ctx); err != nil {
		return game.PlayerRecord{}, false, err
	}
	return s.store.GetPlayerByIdentity(ctx, identityID)
}

// Logout ends the game session with its final score, saves the player and
// clears stored credentials.
func (s *Session) Logout(ctx context.Context) (State, error) {
	s.stopScheduler()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return s.stateLocked(), ErrNotAuthenticated
	}
	score := s.endLocked()
	if err := s.provider.Logout(); err != nil {
		s.log.Warn("clear credentials failed", "err", err)
	}
	s.setMessageLocked(fmt.Sprintf("Signed out. Final score: $%d", score), game.EventMessageTTL)
	return s.stateLocked(), nil
}

// endLocked closes the current game session and resets to the starting state.
// The scheduler must already be stopped.
func (s *Session) endLocked() int64 {
	score := s.machine.Player().Cash + s.machine.TotalValue()
	end := s.now()
	s.current.EndTime = &end
	s.current.FinalScore = &score
	s.enqueuePlayerLocked()
	s.enqueueSessionLocked()
	s.log.Info("game session ended", "player_id", s.machine.PlayerID(), "final_score", score)

	s.machine = nil
	s.identity = nil
	s.current = nil
	s.market.Reset()
	return score
}

func (s *Session) Buy(commodityID string, quantity int64) (State, error) {
	return s.dispatch(func(m *game.Machine) (game.Result, error) { return m.Buy(commodityID, quantity) })
}

func (s *Session) Sell(commodityID string, quantity int64) (State, error) {
	return s.dispatch(func(m *game.Machine) (game.Result, error) { return m.Sell(commodityID, quantity) })
}

func (s *Session) Travel(locationID string) (State, error) {
	return s.dispatch(func(m *game.Machine) (game.Result, error) { return m.Travel(locationID) })
}

func (s *Session) PurchaseUpgrade(upgradeID string) (State, error) {
	return s.dispatch(func(m *game.Machine) (game.Result, error) { return m.PurchaseUpgrade(upgradeID) })
}

func (s *Session) dispatch(intent func(*game.Machine) (game.Result, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return s.stateLocked(), ErrNotAuthenticated
	}
	res, err := intent(s.machine)
	if err != nil {
		if game.IsRejection(err) {
			s.setMessageLocked(err.Error(), game.ActionMessageTTL)
		} else {
			s.log.Error("intent failed", "player_id", s.machine.PlayerID(), "err", err)
		}
		return s.stateLocked(), err
	}
	s.recordLocked(res.Event)
	s.enqueuePlayerLocked()
	s.setMessageLocked(res.Message, game.ActionMessageTTL)
	return s.stateLocked(), nil
}

// Tick reprices the active location and rolls for a random market event.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return
	}
	locationID := s.machine.Player().LocationID
	s.market.Reprice(locationID)

	me, ok := s.market.RollEvent()
	if !ok {
		return
	}
	res, err := s.machine.ApplyMarketEvent(me)
	if err != nil {
		s.log.Error("market event failed", "location", locationID, "err", err)
		return
	}
	s.recordLocked(res.Event)
	if me.PointsBonus != 0 {
		s.enqueuePlayerLocked()
	}
	s.setMessageLocked(res.Message, game.EventMessageTTL)
}

// Autosave snapshots the player and the open game session.
func (s *Session) Autosave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return
	}
	s.enqueuePlayerLocked()
	s.enqueueSessionLocked()
}

// Events returns the player's most recent events, newest first. Without a
// store only the current session's events are available.
func (s *Session) Events(ctx context.Context, limit int) ([]game.GameEvent, error) {
	s.mu.Lock()
	if s.machine == nil {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	playerID := s.machine.PlayerID()
	ready := s.storeReady
	local := slices.Clone(s.current.Events)
	s.mu.Unlock()

	limit = store.Limit(limit, store.DefaultEventLimit)
	if !ready {
		slices.Reverse(local)
		if len(local) > limit {
			local = local[:limit]
		}
		return local, nil
	}
	if err := s.writer.Flush(ctx); err != nil {
		return nil, err
	}
	return s.store.GetPlayerEvents(ctx, playerID, limit)
}

func (s *Session) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	s.mu.Lock()
	ready := s.storeReady
	s.mu.Unlock()
	if !ready {
		return nil, store.ErrNotReady
	}
	if err := s.writer.Flush(ctx); err != nil {
		return nil, err
	}
	return s.store.GetLeaderboard(ctx, limit)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Close saves progress without ending the game session, then drains pending
// writes until ctx expires and closes the store.
func (s *Session) Close(ctx context.Context) error {
	s.stopScheduler()
	s.mu.Lock()
	if s.machine != nil {
		s.enqueuePlayerLocked()
		s.enqueueSessionLocked()
	}
	s.mu.Unlock()

	err := s.writer.Close(ctx)
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Session) stopScheduler() {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()
	sched.Stop()
}

func (s *Session) stateLocked() State {
	st := State{
		Locations: s.market.Locations(),
		Degraded:  !s.storeReady,
	}
	if s.now().Before(s.messageUntil) {
		st.Message = s.message
	}
	if s.machine == nil {
		st.Player = game.StartingPlayer()
		st.Location, _ = s.market.Location(st.Player.LocationID)
		st.Upgrades = game.DefaultUpgrades()
		return st
	}
	identity := *s.identity
	st.Authenticated = true
	st.Identity = &identity
	st.SessionID = s.current.ID
	st.Player = s.machine.Player()
	st.Location = s.machine.CurrentLocation()
	st.Upgrades = s.machine.Upgrades()
	st.TotalWeight = game.TotalWeight(st.Location.Commodities)
	st.TotalValue = game.TotalValue(st.Location.Commodities)
	return st
}

func (s *Session) setMessageLocked(msg string, ttl time.Duration) {
	s.message = msg
	s.messageUntil = s.now().Add(ttl)
}

func (s *Session) recordLocked(ev game.GameEvent) {
	s.current.Events = append(s.current.Events, ev)
	s.enqueue("append event "+string(ev.Kind), func(ctx context.Context) error {
		return s.store.AppendEvent(ctx, ev)
	})
}

func (s *Session) enqueuePlayerLocked() {
	rec := s.machine.Snapshot()
	s.enqueue("save player", func(ctx context.Context) error {
		return s.store.PutPlayer(ctx, rec)
	})
}

func (s *Session) enqueueSessionLocked() {
	gs := *s.current
	gs.Events = slices.Clone(s.current.Events)
	s.enqueue("save session", func(ctx context.Context) error {
		return s.store.PutSession(ctx, gs)
	})
}

func (s *Session) enqueue(name string, run func(ctx context.Context) error) {
	if !s.storeReady {
		return
	}
	s.writer.Enqueue(name, run)
}
