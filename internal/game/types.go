package game

import "time"

type Category string

const (
	CategoryStreamer Category = "streamer"
	CategoryGame     Category = "game"
)

type UpgradeEffect string

const (
	EffectCapacity UpgradeEffect = "capacity"
	EffectHealth   UpgradeEffect = "health"
	// EffectLuck is recorded on purchase but changes nothing; the market does
	// not consult it.
	EffectLuck UpgradeEffect = "luck"
)

type EventKind string

const (
	KindTrade       EventKind = "trade"
	KindTravel      EventKind = "travel"
	KindUpgrade     EventKind = "upgrade"
	KindMarketEvent EventKind = "marketEvent"
	KindAuth        EventKind = "auth"
)

type Commodity struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	BasePrice    int64    `json:"base_price"`
	CurrentPrice int64    `json:"current_price"`
	Owned        int64    `json:"owned"`
}

type Location struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Commodities []Commodity `json:"commodities"`
}

func (l Location) Commodity(id string) (Commodity, bool) {
	for _, c := range l.Commodities {
		if c.ID == id {
			return c, true
		}
	}
	return Commodity{}, false
}

func (l Location) clone() Location {
	out := l
	out.Commodities = append([]Commodity(nil), l.Commodities...)
	return out
}

type Player struct {
	Cash       int64  `json:"cash"`
	Points     int64  `json:"points"`
	Health     int64  `json:"health"`
	Capacity   int64  `json:"capacity"`
	LocationID string `json:"location_id"`
	Day        int64  `json:"day"`
	Debt       int64  `json:"debt"`
}

type Upgrade struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Cost          int64         `json:"cost"`
	Effect        UpgradeEffect `json:"effect"`
	CapacityBonus int64         `json:"capacity_bonus,omitempty"`
	Purchased     bool          `json:"purchased"`
}

// PlayerRecord is the persisted, flattened form of a Player together with
// current-location inventory and purchased upgrades.
type PlayerRecord struct {
	ID           string           `json:"id"`
	IdentityID   string           `json:"identity_id"`
	Username     string           `json:"username"`
	Cash         int64            `json:"cash"`
	Points       int64            `json:"points"`
	Health       int64            `json:"health"`
	Capacity     int64            `json:"capacity"`
	LocationID   string           `json:"location_id"`
	Day          int64            `json:"day"`
	Debt         int64            `json:"debt"`
	Inventory    map[string]int64 `json:"inventory"`
	Upgrades     []string         `json:"upgrades"`
	CreatedAt    time.Time        `json:"created_at"`
	LastPlayedAt time.Time        `json:"last_played_at"`
}

type GameEvent struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	PlayerID  string         `json:"player_id"`
	Payload   map[string]any `json:"payload"`
}

type GameSession struct {
	ID         string      `json:"id"`
	PlayerID   string      `json:"player_id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	Events     []GameEvent `json:"events"`
	FinalScore *int64      `json:"final_score,omitempty"`
}

type LeaderboardRow struct {
	Rank     int64     `json:"rank"`
	PlayerID string    `json:"player_id"`
	Username string    `json:"username"`
	Score    int64     `json:"score"`
	Date     time.Time `json:"date"`
}

// MarketEvent is one narrative event from the random event catalog.
type MarketEvent struct {
	Message     string `json:"message"`
	PointsBonus int64  `json:"points_bonus,omitempty"`
}

// Result is what a successful transition hands back to the caller.
type Result struct {
	Event   GameEvent
	Message string
}
