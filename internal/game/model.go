package game

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

const (
	StartingCash       = int64(2_000)
	StartingPoints     = int64(100)
	StartingHealth     = int64(100)
	StartingCapacity   = int64(100)
	StartingDay        = int64(1)
	StartingDebt       = int64(5_500)
	StartingLocationID = "twitch-hq"

	MaxHealth            = int64(100)
	TravelHealthCost     = int64(5)
	HealthUpgradeRestore = int64(25)

	PriceFloor        = int64(10)
	RandomEventChance = 0.1
	FoundPointsBonus  = int64(25)

	// Display durations for transient messages.
	EventMessageTTL  = 3 * time.Second
	ActionMessageTTL = 2 * time.Second
)

var (
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInsufficientCash     = errors.New("not enough cash")
	ErrInsufficientCapacity = errors.New("not enough carrying capacity")
	ErrInsufficientQuantity = errors.New("you don't have enough to sell")
	ErrCommodityNotFound    = errors.New("commodity not traded at this location")
	ErrLocationNotFound     = errors.New("location not found")
	ErrAlreadyAtLocation    = errors.New("already at that location")
	ErrUpgradeNotFound      = errors.New("upgrade not found")
	ErrUpgradePurchased     = errors.New("already purchased")
	ErrInsufficientPoints   = errors.New("not enough channel points")
)

var rejections = []error{
	ErrInvalidQuantity,
	ErrInsufficientCash,
	ErrInsufficientCapacity,
	ErrInsufficientQuantity,
	ErrCommodityNotFound,
	ErrLocationNotFound,
	ErrAlreadyAtLocation,
	ErrUpgradeNotFound,
	ErrUpgradePurchased,
	ErrInsufficientPoints,
}

// IsRejection reports whether err is a validation rejection: the intent was
// refused and no state changed.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func PlayerIDForIdentity(identityID string) string {
	return "player_" + identityID
}

// NewEventID returns "<unix millis>-<9 base36 chars>". The suffix breaks ties
// between events recorded in the same millisecond.
func NewEventID(at time.Time) (string, error) {
	suffix, err := randomSuffix(9)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s", at.UnixMilli(), suffix), nil
}

func randomSuffix(n int) (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	// Bytes at or above the largest multiple of 36 are skipped so every
	// letter is equally likely.
	const limit = 256 - 256%len(letters)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) < limit && len(out) < n {
				out = append(out, letters[int(b)%len(letters)])
			}
		}
	}
	return string(out), nil
}

func clampHealth(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > MaxHealth {
		return MaxHealth
	}
	return v
}
