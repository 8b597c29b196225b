package vault

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// Leverage bounds: integer leverage in [MinLeverage, MaxLeverage)
const (
	MinLeverage uint8 = 1
	MaxLeverage uint8 = 10 // exclusive
)

// Position is a leveraged synthetic exposure backed by locked margin.
// Amount, direction, and entry price are fixed at open time; only leverage
// (and with it SyntheticSize) can change afterwards.
type Position struct {
	ID    uint64         `json:"id"`    // sequential per owner, starting at 1
	Owner common.Address `json:"owner"`

	Amount     fixed.Num `json:"amount"`     // margin committed at open
	Leverage   uint8     `json:"leverage"`   // [1, 10)
	IsLong     bool      `json:"isLong"`
	EntryPrice fixed.Num `json:"entryPrice"` // price snapshot at open, never re-based

	// SyntheticSize = Amount × Leverage ÷ EntryPrice.
	// Recomputed on releverage against the original entry price.
	SyntheticSize fixed.Num `json:"syntheticSize"`

	Open     bool  `json:"open"`
	OpenedAt int64 `json:"openedAt"`           // Unix milliseconds
	ClosedAt int64 `json:"closedAt,omitempty"` // Unix milliseconds, 0 while open
}

// validLeverage checks the [1, 10) bound shared by open and releverage
func validLeverage(leverage uint8) bool {
	return leverage >= MinLeverage && leverage < MaxLeverage
}

// syntheticSize computes amount × leverage ÷ price in fixed-point
func syntheticSize(amount fixed.Num, leverage uint8, price fixed.Num) fixed.Num {
	return amount.MulUint(uint64(leverage)).Div(price)
}

// PnL computes the position's profit or loss against a mark price.
// This is the single settlement formula: cancel settles with exactly
// what this returns for the same price.
//
//	delta     = long ? mark − entry : entry − mark
//	magnitude = |syntheticSize × delta|
//	isProfit  = delta >= 0
func (p *Position) PnL(mark fixed.Num) (isProfit bool, magnitude fixed.Num) {
	delta := mark.Sub(p.EntryPrice)
	if !p.IsLong {
		delta = p.EntryPrice.Sub(mark)
	}
	return delta.Sign() >= 0, p.SyntheticSize.Mul(delta).Abs()
}

// Notional returns the position's synthetic value at a given price
func (p *Position) Notional(price fixed.Num) fixed.Num {
	return p.SyntheticSize.Mul(price)
}

// snapshot returns a copy safe to hand out past the vault lock
func (p *Position) snapshot() *Position {
	cp := *p
	return &cp
}
