// Package domain defines the core data model shared by every layer of the
// bot: price samples, venue contracts, detected opportunities, positions, and
// performance metrics. It has no dependencies outside the standard library.
package domain

import "time"

// ContractClass categorizes a tradable binary contract and selects which
// probability model applies to it.
type ContractClass string

const (
	ClassCrypto5m     ContractClass = "crypto_5m"
	ClassCrypto15m    ContractClass = "crypto_15m"
	ClassCrypto1h     ContractClass = "crypto_1h"
	ClassCryptoUpDown ContractClass = "crypto_updown"

	// Recognized but not scanned; the detectors for these classes are not
	// implemented.
	ClassSportsLive    ContractClass = "sports_live"
	ClassSportsPregame ContractClass = "sports_pregame"
	ClassStocks        ContractClass = "stocks"
	ClassEconomic      ContractClass = "economic"
	ClassNews          ContractClass = "news"
)

// IsCrypto reports whether the class is one of the scanned crypto classes.
func (c ContractClass) IsCrypto() bool {
	switch c {
	case ClassCrypto5m, ClassCrypto15m, ClassCrypto1h, ClassCryptoUpDown:
		return true
	default:
		return false
	}
}

// Side is the outcome side of a binary contract.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Contract is a read-mostly snapshot of one venue contract as returned by the
// market scanner. The core never mutates it; a fresh snapshot replaces the
// old one on every scan.
type Contract struct {
	ID         string // venue condition id
	Question   string
	Class      ContractClass
	YesPrice   float64 // in [0,1]
	NoPrice    float64 // in [0,1]
	YesTokenID string
	NoTokenID  string
	EndTime    time.Time
	Liquidity  float64
	Volume24h  float64

	LastUpdated time.Time
}

// PriceFor returns the quoted venue price for the given side.
func (c Contract) PriceFor(side Side) float64 {
	if side == SideYes {
		return c.YesPrice
	}
	return c.NoPrice
}

// TokenFor returns the settlement token id for the given side.
func (c Contract) TokenFor(side Side) string {
	if side == SideYes {
		return c.YesTokenID
	}
	return c.NoTokenID
}
