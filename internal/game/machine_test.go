package game

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(NewMarket(DefaultLocations(), 1), "12345", "tester")
	m.SetClock(func() time.Time { return fixedNow })
	return m
}

func TestNewMachineStartsFresh(t *testing.T) {
	m := newTestMachine(t)
	if m.PlayerID() != "player_12345" {
		t.Fatalf("player id %q", m.PlayerID())
	}
	if m.Player() != StartingPlayer() {
		t.Fatalf("unexpected player %+v", m.Player())
	}
	if m.TotalWeight() != 0 || m.TotalValue() != 0 {
		t.Fatalf("fresh machine should own nothing")
	}
	for _, u := range m.Upgrades() {
		if u.Purchased {
			t.Fatalf("%s should not be purchased", u.ID)
		}
	}
}

func TestBuyTravelDropsUnsharedHoldings(t *testing.T) {
	m := newTestMachine(t)

	res, err := m.Buy("pokimane", 5)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Message != "Bought 5x Pokimane for $750" {
		t.Fatalf("message %q", res.Message)
	}
	if res.Event.Kind != KindTrade || res.Event.PlayerID != "player_12345" {
		t.Fatalf("unexpected event %+v", res.Event)
	}
	if m.Player().Cash != 1250 {
		t.Fatalf("cash got %d", m.Player().Cash)
	}
	if c, _ := m.CurrentLocation().Commodity("pokimane"); c.Owned != 5 {
		t.Fatalf("owned got %d", c.Owned)
	}
	if m.TotalWeight() != 5 {
		t.Fatalf("weight got %d", m.TotalWeight())
	}

	res, err = m.Travel("youtube-gaming")
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	if res.Message != "Traveled to YouTube Gaming" {
		t.Fatalf("message %q", res.Message)
	}
	dropped, _ := res.Event.Payload["dropped"].(map[string]int64)
	if dropped["pokimane"] != 5 {
		t.Fatalf("expected pokimane to be recorded as dropped, got %v", res.Event.Payload["dropped"])
	}
	p := m.Player()
	if p.Day != 2 || p.Health != 95 || p.LocationID != "youtube-gaming" {
		t.Fatalf("unexpected player after travel %+v", p)
	}
	if m.TotalWeight() != 0 {
		t.Fatalf("holdings should be gone, weight=%d", m.TotalWeight())
	}

	before := m.Player()
	if _, err := m.Sell("pokimane", 1); !IsRejection(err) {
		t.Fatalf("expected rejection selling pokimane away from home, got %v", err)
	}
	if m.Player() != before {
		t.Fatalf("rejected sell changed player state")
	}

	// Going back does not bring them back.
	if _, err := m.Travel("twitch-hq"); err != nil {
		t.Fatalf("travel back: %v", err)
	}
	if c, _ := m.CurrentLocation().Commodity("pokimane"); c.Owned != 0 {
		t.Fatalf("dropped holdings reappeared: %d", c.Owned)
	}
}

func TestTravelKeepsSharedHoldings(t *testing.T) {
	market := NewMarket([]Location{
		{ID: "a", Name: "A", Commodities: []Commodity{
			{ID: "shared", Name: "Shared", BasePrice: 10, CurrentPrice: 10},
			{ID: "only-a", Name: "Only A", BasePrice: 10, CurrentPrice: 10},
		}},
		{ID: "b", Name: "B", Commodities: []Commodity{
			{ID: "shared", Name: "Shared", BasePrice: 10, CurrentPrice: 10},
		}},
	}, 1)
	m := NewMachine(market, "x", "x")
	m.Restore(PlayerRecord{
		ID: "player_x", IdentityID: "x", Cash: 100, Health: 100, Capacity: 100,
		LocationID: "a", Day: 1, Inventory: map[string]int64{"shared": 4, "only-a": 2},
	})

	res, err := m.Travel("b")
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	if c, _ := m.CurrentLocation().Commodity("shared"); c.Owned != 4 {
		t.Fatalf("shared holdings not carried: %d", c.Owned)
	}
	dropped := res.Event.Payload["dropped"].(map[string]int64)
	if !reflect.DeepEqual(dropped, map[string]int64{"only-a": 2}) {
		t.Fatalf("dropped got %v", dropped)
	}
}

func TestTravelAccumulatesDaysAndHealth(t *testing.T) {
	route := []string{"youtube-gaming", "discord-stage", "tiktok-live", "twitch-hq"}
	for _, n := range []int{1, 4, 19, 20, 25} {
		m := newTestMachine(t)
		for i := 0; i < n; i++ {
			if _, err := m.Travel(route[i%len(route)]); err != nil {
				t.Fatalf("trip %d: %v", i, err)
			}
		}
		p := m.Player()
		if p.Day != StartingDay+int64(n) {
			t.Fatalf("n=%d day got %d", n, p.Day)
		}
		want := max(StartingHealth-TravelHealthCost*int64(n), 0)
		if p.Health != want {
			t.Fatalf("n=%d health got %d want %d", n, p.Health, want)
		}
	}
}

func TestTravelRejections(t *testing.T) {
	m := newTestMachine(t)
	before := m.Player()
	if _, err := m.Travel("twitch-hq"); !errors.Is(err, ErrAlreadyAtLocation) {
		t.Fatalf("expected ErrAlreadyAtLocation, got %v", err)
	}
	if _, err := m.Travel("myspace"); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
	if m.Player() != before {
		t.Fatalf("rejected travel changed state")
	}
}

func TestBuyRejectionsLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name      string
		commodity string
		qty       int64
		want      error
	}{
		{name: "zero", commodity: "valorant", qty: 0, want: ErrInvalidQuantity},
		{name: "negative", commodity: "valorant", qty: -3, want: ErrInvalidQuantity},
		{name: "unknown", commodity: "minecraft", qty: 1, want: ErrCommodityNotFound},
		{name: "cash", commodity: "xqc", qty: 11, want: ErrInsufficientCash},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(t)
			before := m.Snapshot()
			if _, err := m.Buy(tc.commodity, tc.qty); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !reflect.DeepEqual(m.Snapshot(), before) {
				t.Fatalf("rejected buy changed state")
			}
		})
	}
}

func TestBuyRespectsCapacity(t *testing.T) {
	m := newTestMachine(t)
	m.Restore(PlayerRecord{
		ID: "player_12345", IdentityID: "12345", Cash: 1_000_000, Health: 100,
		Capacity: 100, LocationID: "twitch-hq", Day: 1,
		Inventory: map[string]int64{"valorant": 90},
	})
	if _, err := m.Buy("pokimane", 11); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if _, err := m.Buy("pokimane", 10); err != nil {
		t.Fatalf("buy up to capacity: %v", err)
	}
	if m.TotalWeight() != m.Player().Capacity {
		t.Fatalf("weight %d capacity %d", m.TotalWeight(), m.Player().Capacity)
	}
}

func TestBuyRejectsHugeQuantity(t *testing.T) {
	tests := []struct {
		name string
		held int64
		cash int64
		qty  int64
		want error
	}{
		{name: "nothing held", held: 0, cash: 2_000, qty: math.MaxInt64, want: ErrInsufficientCash},
		{name: "one held", held: 1, cash: 2_000, qty: math.MaxInt64, want: ErrInsufficientCash},
		{name: "affordable but too heavy", held: 1, cash: math.MaxInt64, qty: math.MaxInt64 / 150, want: ErrInsufficientCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t)
			inv := map[string]int64{}
			if tt.held > 0 {
				inv["pokimane"] = tt.held
			}
			m.Restore(PlayerRecord{
				ID: "player_12345", IdentityID: "12345", Cash: tt.cash, Health: 100,
				Capacity: 100, LocationID: "twitch-hq", Day: 1, Inventory: inv,
			})
			before := m.Player()
			if _, err := m.Buy("pokimane", tt.qty); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if m.Player() != before {
				t.Fatalf("player changed: %+v -> %+v", before, m.Player())
			}
			if m.TotalWeight() != tt.held {
				t.Fatalf("weight %d, want %d", m.TotalWeight(), tt.held)
			}
		})
	}
}

func TestBuyThenSellAtSamePriceIsNeutral(t *testing.T) {
	m := newTestMachine(t)
	start := m.Player().Cash
	if _, err := m.Buy("valorant", 7); err != nil {
		t.Fatalf("buy: %v", err)
	}
	res, err := m.Sell("valorant", 7)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if res.Message != "Sold 7x Valorant for $560" {
		t.Fatalf("message %q", res.Message)
	}
	if m.Player().Cash != start {
		t.Fatalf("cash got %d want %d", m.Player().Cash, start)
	}
	if m.TotalWeight() != 0 {
		t.Fatalf("weight got %d", m.TotalWeight())
	}
	if _, err := m.Sell("valorant", 1); !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}
}

func TestSellUsesCurrentPrice(t *testing.T) {
	market := NewMarket(DefaultLocations(), 5)
	m := NewMachine(market, "1", "one")
	if _, err := m.Buy("xqc", 2); err != nil {
		t.Fatalf("buy: %v", err)
	}
	market.Reprice("twitch-hq")
	price, _ := market.Price("twitch-hq", "xqc")
	cash := m.Player().Cash
	res, err := m.Sell("xqc", 2)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if m.Player().Cash != cash+2*price {
		t.Fatalf("cash got %d want %d", m.Player().Cash, cash+2*price)
	}
	if res.Event.Payload["price"] != price {
		t.Fatalf("payload price %v want %d", res.Event.Payload["price"], price)
	}
}

func TestEnergyDrinkClampsHealth(t *testing.T) {
	m := newTestMachine(t)
	rec := m.Snapshot()
	rec.Health = 80
	m.Restore(rec)

	res, err := m.PurchaseUpgrade("energy-drink")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Message != "Purchased Energy Drinks!" {
		t.Fatalf("message %q", res.Message)
	}
	p := m.Player()
	if p.Points != 70 || p.Health != 100 {
		t.Fatalf("points=%d health=%d", p.Points, p.Health)
	}
}

func TestUpgradePurchasedOnlyOnce(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.PurchaseUpgrade("backpack"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	after := m.Player()
	if after.Capacity != 150 || after.Points != 50 {
		t.Fatalf("unexpected player %+v", after)
	}
	if _, err := m.PurchaseUpgrade("backpack"); !errors.Is(err, ErrUpgradePurchased) {
		t.Fatalf("expected ErrUpgradePurchased, got %v", err)
	}
	if m.Player() != after {
		t.Fatalf("second purchase changed state")
	}
}

func TestUpgradeRejections(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.PurchaseUpgrade("premium-setup"); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, err := m.PurchaseUpgrade("jetpack"); !errors.Is(err, ErrUpgradeNotFound) {
		t.Fatalf("expected ErrUpgradeNotFound, got %v", err)
	}
	if m.Player() != StartingPlayer() {
		t.Fatalf("rejected purchase changed state")
	}
}

func TestLuckyCharmIsInert(t *testing.T) {
	m := newTestMachine(t)
	before := m.Player()
	if _, err := m.PurchaseUpgrade("lucky-charm"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	after := m.Player()
	before.Points -= 75
	if after != before {
		t.Fatalf("lucky charm should only cost points: %+v", after)
	}
}

func TestApplyMarketEvent(t *testing.T) {
	m := newTestMachine(t)
	res, err := m.ApplyMarketEvent(MarketEvent{Message: "found", PointsBonus: FoundPointsBonus})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Event.Kind != KindMarketEvent || res.Message != "found" {
		t.Fatalf("unexpected result %+v", res)
	}
	if m.Player().Points != StartingPoints+FoundPointsBonus {
		t.Fatalf("points got %d", m.Player().Points)
	}
	if _, err := m.ApplyMarketEvent(MarketEvent{Message: "drama"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.Player().Points != StartingPoints+FoundPointsBonus {
		t.Fatalf("flavor event changed points")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	rec := PlayerRecord{
		ID:           "player_777",
		IdentityID:   "777",
		Username:     "roundtrip",
		Cash:         4321,
		Points:       12,
		Health:       35,
		Capacity:     250,
		LocationID:   "discord-stage",
		Day:          14,
		Debt:         5500,
		Inventory:    map[string]int64{"corpse": 3, "fall-guys": 9},
		Upgrades:     []string{"backpack", "premium-setup"},
		CreatedAt:    fixedNow.Add(-48 * time.Hour),
		LastPlayedAt: fixedNow,
	}
	m := newTestMachine(t)
	m.Restore(rec)
	if got := m.Snapshot(); !reflect.DeepEqual(got, rec) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
	if m.PlayerID() != "player_777" || m.Username() != "roundtrip" {
		t.Fatalf("identity not restored")
	}
}

func TestRestoreSanitizesRecord(t *testing.T) {
	m := newTestMachine(t)
	m.Restore(PlayerRecord{
		ID:         "player_1",
		LocationID: "atlantis",
		Capacity:   100,
		Inventory:  map[string]int64{"pokimane": 2, "minecraft": 8, "xqc": 0},
		Upgrades:   []string{"jetpack", "energy-drink"},
	})
	if m.Player().LocationID != StartingLocationID {
		t.Fatalf("unknown location not replaced: %q", m.Player().LocationID)
	}
	snap := m.Snapshot()
	if !reflect.DeepEqual(snap.Inventory, map[string]int64{"pokimane": 2}) {
		t.Fatalf("inventory got %v", snap.Inventory)
	}
	if !reflect.DeepEqual(snap.Upgrades, []string{"energy-drink"}) {
		t.Fatalf("upgrades got %v", snap.Upgrades)
	}
}

func TestAuthEvent(t *testing.T) {
	m := newTestMachine(t)
	ev, err := m.AuthEvent()
	if err != nil {
		t.Fatalf("auth event: %v", err)
	}
	if ev.Kind != KindAuth || ev.Payload["identityId"] != "12345" || !ev.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected event %+v", ev)
	}
}
