// Package models defines the data structures shared by the stockdash
// fetcher, controller and presentation layers.
package models

import (
	"github.com/shopspring/decimal"
)

// StockSnapshot is the full set of market and fundamental fields returned
// by the data service for one symbol at fetch time.
//
// Numeric fields accept either JSON numbers or numeric strings
// ("3500" and 3500 decode to the same value).
type StockSnapshot struct {
	Symbol        string          `json:"symbol"`
	Company       string          `json:"company"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`

	// Session bounds.
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	PrevClose decimal.Decimal `json:"prevClose"`

	// Share counts.
	Volume    decimal.Decimal `json:"volume"`
	AvgVolume decimal.Decimal `json:"avgVolume"`

	// Fundamentals; any of these may be missing or null upstream.
	MarketCap     decimal.NullDecimal `json:"marketCap"`
	PERatio       decimal.NullDecimal `json:"peRatio"`
	DividendYield decimal.NullDecimal `json:"dividendYield"`
	EPS           decimal.NullDecimal `json:"eps"`
	Beta          decimal.NullDecimal `json:"beta"`

	Week52High decimal.Decimal `json:"week52High"`
	Week52Low  decimal.Decimal `json:"week52Low"`

	// History is chronological; chart x-axis order is slice order.
	History []PricePoint `json:"history"`
}

// PricePoint is one entry of a snapshot's price history.
type PricePoint struct {
	Day   string          `json:"day"`
	Price decimal.Decimal `json:"price"`
}

// Positive reports whether the change is zero or above.
func (s *StockSnapshot) Positive() bool {
	return !s.Change.IsNegative()
}

// Equal reports whether two snapshots carry the same values.
// Decimals compare numerically and history must match in order.
func (s *StockSnapshot) Equal(o *StockSnapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Symbol != o.Symbol || s.Company != o.Company {
		return false
	}

	pairs := [][2]decimal.Decimal{
		{s.Price, o.Price},
		{s.Change, o.Change},
		{s.ChangePercent, o.ChangePercent},
		{s.Open, o.Open},
		{s.High, o.High},
		{s.Low, o.Low},
		{s.PrevClose, o.PrevClose},
		{s.Volume, o.Volume},
		{s.AvgVolume, o.AvgVolume},
		{s.Week52High, o.Week52High},
		{s.Week52Low, o.Week52Low},
	}
	for _, p := range pairs {
		if !p[0].Equal(p[1]) {
			return false
		}
	}

	nulls := [][2]decimal.NullDecimal{
		{s.MarketCap, o.MarketCap},
		{s.PERatio, o.PERatio},
		{s.DividendYield, o.DividendYield},
		{s.EPS, o.EPS},
		{s.Beta, o.Beta},
	}
	for _, p := range nulls {
		if p[0].Valid != p[1].Valid {
			return false
		}
		if p[0].Valid && !p[0].Decimal.Equal(p[1].Decimal) {
			return false
		}
	}

	if len(s.History) != len(o.History) {
		return false
	}
	for i := range s.History {
		if s.History[i].Day != o.History[i].Day || !s.History[i].Price.Equal(o.History[i].Price) {
			return false
		}
	}
	return true
}
