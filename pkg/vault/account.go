package vault

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// Account tracks a user's collateral ledger entry and position book.
// Created implicitly on first deposit, never deleted.
//
// FreeCollateral counts everything the user has on deposit, including
// margin committed to open positions; LockedMargin is the committed part.
// The spendable balance is always FreeCollateral − LockedMargin.
type Account struct {
	Address common.Address `json:"address"`

	FreeCollateral fixed.Num `json:"freeCollateral"` // ≥ 0
	LockedMargin   fixed.Num `json:"lockedMargin"`   // Σ amount over open positions

	// Position book, keyed by position id. Ids are sequential per owner
	// starting at 1 and never reused; closed positions stay for history.
	Positions      map[uint64]*Position `json:"positions"`
	NextPositionID uint64               `json:"nextPositionId"`

	// RealizedPnL accumulates settled profit and loss across cancels
	RealizedPnL fixed.Num `json:"realizedPnl"`
}

// NewAccount creates an empty account for an address
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:        addr,
		Positions:      make(map[uint64]*Position),
		NextPositionID: 1,
	}
}

// Spendable returns the balance available for withdrawal or new positions
func (a *Account) Spendable() fixed.Num {
	return a.FreeCollateral.Sub(a.LockedMargin)
}

// OpenPositions returns the account's open positions ordered by id
func (a *Account) OpenPositions() []*Position {
	out := make([]*Position, 0, len(a.Positions))
	for _, pos := range a.Positions {
		if pos.Open {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// openMargin reconstructs Σ amount over open positions
func (a *Account) openMargin() fixed.Num {
	total := fixed.Zero()
	for _, pos := range a.Positions {
		if pos.Open {
			total = total.Add(pos.Amount)
		}
	}
	return total
}

// openSynthetic reconstructs Σ syntheticSize over open positions
func (a *Account) openSynthetic() fixed.Num {
	total := fixed.Zero()
	for _, pos := range a.Positions {
		if pos.Open {
			total = total.Add(pos.SyntheticSize)
		}
	}
	return total
}

// Validate checks the account's ledger invariants
func (a *Account) Validate() error {
	if a.FreeCollateral.Sign() < 0 {
		return fmt.Errorf("negative free collateral: %s", a.FreeCollateral)
	}
	if a.LockedMargin.Sign() < 0 {
		return fmt.Errorf("negative locked margin: %s", a.LockedMargin)
	}
	if a.LockedMargin.Cmp(a.FreeCollateral) > 0 {
		return fmt.Errorf("locked margin (%s) exceeds free collateral (%s)", a.LockedMargin, a.FreeCollateral)
	}

	if got := a.openMargin(); !got.Equal(a.LockedMargin) {
		return fmt.Errorf("locked margin mismatch: tracked=%s, open positions sum=%s", a.LockedMargin, got)
	}

	for id, pos := range a.Positions {
		if pos.ID != id {
			return fmt.Errorf("position id mismatch: map key=%d, pos.ID=%d", id, pos.ID)
		}
		if pos.Owner != a.Address {
			return fmt.Errorf("position %d owner mismatch: %s", id, pos.Owner.Hex())
		}
		if id >= a.NextPositionID {
			return fmt.Errorf("position id %d not below next id %d", id, a.NextPositionID)
		}
	}

	return nil
}
