package game

import (
	"math"
	mathrand "math/rand"
	"sync"
	"time"
)

// Market owns the price state of every location. Each location evolves
// independently and only when it is repriced, so a location keeps its last
// computed prices while the player is away.
type Market struct {
	mu        sync.Mutex
	rand      *mathrand.Rand
	locations []Location
	index     map[string]int
	events    []MarketEvent
}

// NewMarket builds a market over the given catalog. A zero seed seeds from the
// clock.
func NewMarket(locations []Location, seed int64) *Market {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &Market{
		rand:   mathrand.New(mathrand.NewSource(seed)),
		index:  make(map[string]int, len(locations)),
		events: DefaultMarketEvents(),
	}
	for i, loc := range locations {
		loc = loc.clone()
		for j := range loc.Commodities {
			loc.Commodities[j].Owned = 0
		}
		m.locations = append(m.locations, loc)
		m.index[loc.ID] = i
	}
	return m
}

func (m *Market) Location(id string) (Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return Location{}, false
	}
	return m.locations[i].clone(), true
}

func (m *Market) Locations() []Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Location, 0, len(m.locations))
	for _, loc := range m.locations {
		out = append(out, loc.clone())
	}
	return out
}

func (m *Market) Price(locationID, commodityID string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[locationID]
	if !ok {
		return 0, false
	}
	c, ok := m.locations[i].Commodity(commodityID)
	if !ok {
		return 0, false
	}
	return c.CurrentPrice, true
}

// Reprice draws a fresh price for every commodity at the location. Draws are
// independent per commodity and per tick.
func (m *Market) Reprice(locationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[locationID]
	if !ok {
		return false
	}
	loc := &m.locations[i]
	for j := range loc.Commodities {
		u := 0.5 + m.rand.Float64()
		loc.Commodities[j].CurrentPrice = RepriceValue(loc.Commodities[j].BasePrice, u)
	}
	return true
}

// RollEvent fires with probability RandomEventChance and then picks one event
// uniformly from the catalog.
func (m *Market) RollEvent() (MarketEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 || m.rand.Float64() >= RandomEventChance {
		return MarketEvent{}, false
	}
	return m.events[m.rand.Intn(len(m.events))], true
}

// Reset puts every location back to its base prices.
func (m *Market) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.locations {
		for j := range m.locations[i].Commodities {
			c := &m.locations[i].Commodities[j]
			c.CurrentPrice = c.BasePrice
		}
	}
}

// RepriceValue is max(floor(base*u), PriceFloor) with u drawn from [0.5, 1.5).
func RepriceValue(base int64, u float64) int64 {
	price := int64(math.Floor(float64(base) * u))
	if price < PriceFloor {
		return PriceFloor
	}
	return price
}

func TotalWeight(commodities []Commodity) int64 {
	var total int64
	for _, c := range commodities {
		total += c.Owned
	}
	return total
}

func TotalValue(commodities []Commodity) int64 {
	var total int64
	for _, c := range commodities {
		total += c.Owned * c.CurrentPrice
	}
	return total
}
