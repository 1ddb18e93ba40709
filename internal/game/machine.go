package game

import (
	"fmt"
	"slices"
	"time"
)

// Machine is the only mutator of player state and of what the player owns at
// the current location. It validates against the market's current prices and
// either applies a transition completely or not at all.
//
// A Machine is not safe for concurrent use; callers serialize intents.
type Machine struct {
	market     *Market
	playerID   string
	identityID string
	username   string
	createdAt  time.Time
	player     Player
	inventory  map[string]int64
	upgrades   []Upgrade
	now        func() time.Time
}

func NewMachine(market *Market, identityID, username string) *Machine {
	m := &Machine{
		market:     market,
		playerID:   PlayerIDForIdentity(identityID),
		identityID: identityID,
		username:   username,
		player:     StartingPlayer(),
		inventory:  map[string]int64{},
		upgrades:   DefaultUpgrades(),
		now:        time.Now,
	}
	m.createdAt = m.now()
	return m
}

// SetClock replaces the time source used for event timestamps and records.
func (m *Machine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Machine) PlayerID() string { return m.playerID }
func (m *Machine) Username() string { return m.username }
func (m *Machine) Player() Player   { return m.player }

// GrantPoints sets the point balance of a brand new player.
func (m *Machine) GrantPoints(points int64) {
	if points < 0 {
		points = 0
	}
	m.player.Points = points
}

func (m *Machine) Upgrades() []Upgrade {
	return slices.Clone(m.upgrades)
}

// CurrentLocation is the active location with its current prices and the
// player's owned quantities filled in.
func (m *Machine) CurrentLocation() Location {
	loc, ok := m.market.Location(m.player.LocationID)
	if !ok {
		return Location{ID: m.player.LocationID}
	}
	for i := range loc.Commodities {
		loc.Commodities[i].Owned = m.inventory[loc.Commodities[i].ID]
	}
	return loc
}

func (m *Machine) TotalWeight() int64 {
	return TotalWeight(m.CurrentLocation().Commodities)
}

func (m *Machine) TotalValue() int64 {
	return TotalValue(m.CurrentLocation().Commodities)
}

func (m *Machine) Buy(commodityID string, quantity int64) (Result, error) {
	if quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	loc := m.CurrentLocation()
	c, ok := loc.Commodity(commodityID)
	if !ok {
		return Result{}, ErrCommodityNotFound
	}
	price := c.CurrentPrice
	// Compare by division and subtraction so huge quantities cannot wrap.
	if price > 0 && quantity > m.player.Cash/price {
		return Result{}, ErrInsufficientCash
	}
	if quantity > m.player.Capacity-TotalWeight(loc.Commodities) {
		return Result{}, ErrInsufficientCapacity
	}
	totalCost := price * quantity

	ev, err := m.newEvent(KindTrade, map[string]any{
		"action":      "buy",
		"commodityId": c.ID,
		"commodity":   c.Name,
		"quantity":    quantity,
		"price":       price,
		"totalCost":   totalCost,
		"location":    loc.Name,
	})
	if err != nil {
		return Result{}, err
	}
	m.player.Cash -= totalCost
	m.inventory[c.ID] += quantity
	return Result{Event: ev, Message: fmt.Sprintf("Bought %dx %s for $%d", quantity, c.Name, totalCost)}, nil
}

func (m *Machine) Sell(commodityID string, quantity int64) (Result, error) {
	if quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	loc := m.CurrentLocation()
	c, ok := loc.Commodity(commodityID)
	if !ok {
		return Result{}, ErrCommodityNotFound
	}
	if c.Owned < quantity {
		return Result{}, ErrInsufficientQuantity
	}
	price := c.CurrentPrice
	totalEarned := price * quantity

	ev, err := m.newEvent(KindTrade, map[string]any{
		"action":      "sell",
		"commodityId": c.ID,
		"commodity":   c.Name,
		"quantity":    quantity,
		"price":       price,
		"totalEarned": totalEarned,
		"location":    loc.Name,
	})
	if err != nil {
		return Result{}, err
	}
	m.player.Cash += totalEarned
	m.inventory[c.ID] -= quantity
	if m.inventory[c.ID] == 0 {
		delete(m.inventory, c.ID)
	}
	return Result{Event: ev, Message: fmt.Sprintf("Sold %dx %s for $%d", quantity, c.Name, totalEarned)}, nil
}

// Travel moves to another location. Holdings of commodities that the
// destination also trades are carried over; everything else is lost.
func (m *Machine) Travel(destinationID string) (Result, error) {
	to, ok := m.market.Location(destinationID)
	if !ok {
		return Result{}, ErrLocationNotFound
	}
	if destinationID == m.player.LocationID {
		return Result{}, ErrAlreadyAtLocation
	}
	from := m.CurrentLocation()

	carried := map[string]int64{}
	dropped := map[string]int64{}
	for id, qty := range m.inventory {
		if qty <= 0 {
			continue
		}
		if _, ok := to.Commodity(id); ok {
			carried[id] = qty
		} else {
			dropped[id] = qty
		}
	}

	nextDay := m.player.Day + 1
	ev, err := m.newEvent(KindTravel, map[string]any{
		"from":       from.Name,
		"to":         to.Name,
		"day":        nextDay,
		"healthCost": TravelHealthCost,
		"dropped":    dropped,
	})
	if err != nil {
		return Result{}, err
	}
	m.inventory = carried
	m.player.LocationID = to.ID
	m.player.Day = nextDay
	m.player.Health = max(m.player.Health-TravelHealthCost, 0)
	return Result{Event: ev, Message: "Traveled to " + to.Name}, nil
}

func (m *Machine) PurchaseUpgrade(upgradeID string) (Result, error) {
	idx := slices.IndexFunc(m.upgrades, func(u Upgrade) bool { return u.ID == upgradeID })
	if idx < 0 {
		return Result{}, ErrUpgradeNotFound
	}
	u := m.upgrades[idx]
	if u.Purchased {
		return Result{}, ErrUpgradePurchased
	}
	if m.player.Points < u.Cost {
		return Result{}, ErrInsufficientPoints
	}

	ev, err := m.newEvent(KindUpgrade, map[string]any{
		"upgradeId": u.ID,
		"upgrade":   u.Name,
		"cost":      u.Cost,
		"type":      string(u.Effect),
	})
	if err != nil {
		return Result{}, err
	}
	m.player.Points -= u.Cost
	switch u.Effect {
	case EffectCapacity:
		m.player.Capacity += u.CapacityBonus
	case EffectHealth:
		m.player.Health = clampHealth(m.player.Health + HealthUpgradeRestore)
	case EffectLuck:
		// Intentionally inert.
	}
	m.upgrades[idx].Purchased = true
	return Result{Event: ev, Message: fmt.Sprintf("Purchased %s!", u.Name)}, nil
}

// ApplyMarketEvent grants the event's point bonus, if any, and records it.
func (m *Machine) ApplyMarketEvent(me MarketEvent) (Result, error) {
	ev, err := m.newEvent(KindMarketEvent, map[string]any{"message": me.Message})
	if err != nil {
		return Result{}, err
	}
	m.player.Points += me.PointsBonus
	return Result{Event: ev, Message: me.Message}, nil
}

// AuthEvent records a successful sign-in for this player.
func (m *Machine) AuthEvent() (GameEvent, error) {
	at := m.now()
	return m.newEventAt(KindAuth, at, map[string]any{
		"identityId": m.identityID,
		"username":   m.username,
		"loginTime":  at.UnixMilli(),
	})
}

// Snapshot flattens the machine into a PlayerRecord. Only positive holdings
// are written and upgrades keep catalog order.
func (m *Machine) Snapshot() PlayerRecord {
	inventory := make(map[string]int64, len(m.inventory))
	for id, qty := range m.inventory {
		if qty > 0 {
			inventory[id] = qty
		}
	}
	purchased := []string{}
	for _, u := range m.upgrades {
		if u.Purchased {
			purchased = append(purchased, u.ID)
		}
	}
	return PlayerRecord{
		ID:           m.playerID,
		IdentityID:   m.identityID,
		Username:     m.username,
		Cash:         m.player.Cash,
		Points:       m.player.Points,
		Health:       m.player.Health,
		Capacity:     m.player.Capacity,
		LocationID:   m.player.LocationID,
		Day:          m.player.Day,
		Debt:         m.player.Debt,
		Inventory:    inventory,
		Upgrades:     purchased,
		CreatedAt:    m.createdAt,
		LastPlayedAt: m.now(),
	}
}

// Restore rebuilds the machine from a persisted record. Holdings of
// commodities not traded at the saved location are ignored, as are unknown
// upgrade ids.
func (m *Machine) Restore(rec PlayerRecord) {
	m.playerID = rec.ID
	m.identityID = rec.IdentityID
	m.username = rec.Username
	m.createdAt = rec.CreatedAt

	m.player = Player{
		Cash:       rec.Cash,
		Points:     rec.Points,
		Health:     rec.Health,
		Capacity:   rec.Capacity,
		LocationID: rec.LocationID,
		Day:        rec.Day,
		Debt:       rec.Debt,
	}
	loc, ok := m.market.Location(rec.LocationID)
	if !ok {
		loc, _ = m.market.Location(StartingLocationID)
		m.player.LocationID = StartingLocationID
	}

	m.inventory = map[string]int64{}
	for _, c := range loc.Commodities {
		if qty := rec.Inventory[c.ID]; qty > 0 {
			m.inventory[c.ID] = qty
		}
	}

	m.upgrades = DefaultUpgrades()
	for i := range m.upgrades {
		m.upgrades[i].Purchased = slices.Contains(rec.Upgrades, m.upgrades[i].ID)
	}
}

func (m *Machine) newEvent(kind EventKind, payload map[string]any) (GameEvent, error) {
	return m.newEventAt(kind, m.now(), payload)
}

func (m *Machine) newEventAt(kind EventKind, at time.Time, payload map[string]any) (GameEvent, error) {
	id, err := NewEventID(at)
	if err != nil {
		return GameEvent{}, fmt.Errorf("event id: %w", err)
	}
	return GameEvent{
		ID:        id,
		Kind:      kind,
		Timestamp: at,
		PlayerID:  m.playerID,
		Payload:   payload,
	}, nil
}
