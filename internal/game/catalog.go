package game

func commodity(id, name string, category Category, price int64) Commodity {
	return Commodity{ID: id, Name: name, Category: category, BasePrice: price, CurrentPrice: price}
}

// DefaultLocations returns a fresh copy of the location catalog at base prices.
func DefaultLocations() []Location {
	return []Location{
		{
			ID:          "twitch-hq",
			Name:        "Twitch HQ",
			Description: "The purple heart of streaming",
			Commodities: []Commodity{
				commodity("pokimane", "Pokimane", CategoryStreamer, 150),
				commodity("valorant", "Valorant", CategoryGame, 80),
				commodity("xqc", "xQc", CategoryStreamer, 200),
			},
		},
		{
			ID:          "youtube-gaming",
			Name:        "YouTube Gaming",
			Description: "Red corner of the streaming world",
			Commodities: []Commodity{
				commodity("mrbeast", "MrBeast Gaming", CategoryStreamer, 300),
				commodity("minecraft", "Minecraft", CategoryGame, 120),
				commodity("pewdiepie", "PewDiePie", CategoryStreamer, 250),
			},
		},
		{
			ID:          "discord-stage",
			Name:        "Discord Stage",
			Description: "Voice chat central",
			Commodities: []Commodity{
				commodity("among-us", "Among Us", CategoryGame, 60),
				commodity("corpse", "Corpse Husband", CategoryStreamer, 180),
				commodity("fall-guys", "Fall Guys", CategoryGame, 90),
			},
		},
		{
			ID:          "tiktok-live",
			Name:        "TikTok Live",
			Description: "Short-form streaming paradise",
			Commodities: []Commodity{
				commodity("charli", "Charli D'Amelio", CategoryStreamer, 220),
				commodity("mobile-games", "Mobile Games", CategoryGame, 40),
				commodity("addison", "Addison Rae", CategoryStreamer, 190),
			},
		},
	}
}

// DefaultUpgrades returns the upgrade catalog with nothing purchased. Capacity
// upgrades carry their own fixed bonus.
func DefaultUpgrades() []Upgrade {
	return []Upgrade{
		{ID: "backpack", Name: "Bigger Backpack", Description: "Increase carrying capacity by 50", Cost: 50, Effect: EffectCapacity, CapacityBonus: 50},
		{ID: "energy-drink", Name: "Energy Drinks", Description: "Restore 25 health", Cost: 30, Effect: EffectHealth},
		{ID: "lucky-charm", Name: "Lucky Charm", Description: "Better random events", Cost: 75, Effect: EffectLuck},
		{ID: "premium-setup", Name: "Premium Setup", Description: "Increase capacity by 100", Cost: 150, Effect: EffectCapacity, CapacityBonus: 100},
	}
}

// DefaultMarketEvents is the narrative event catalog rolled on market ticks.
func DefaultMarketEvents() []MarketEvent {
	return []MarketEvent{
		{Message: "A viral TikTok boosted streamer prices!"},
		{Message: "Platform drama crashed some values!"},
		{Message: "New game release shook the market!"},
		{Message: "Streamer collaboration event happening!"},
		{Message: "You found some channel points on the ground! (+25)", PointsBonus: FoundPointsBonus},
	}
}

func StartingPlayer() Player {
	return Player{
		Cash:       StartingCash,
		Points:     StartingPoints,
		Health:     StartingHealth,
		Capacity:   StartingCapacity,
		LocationID: StartingLocationID,
		Day:        StartingDay,
		Debt:       StartingDebt,
	}
}
