package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// Token is a minimal transferable-balance asset ledger, the stand-in for the
// external collateral and synthetic tokens the vault settles against.
// Thread-safe; balances never go negative.
type Token struct {
	mu       sync.RWMutex
	name     string
	symbol   string
	balances map[common.Address]fixed.Num
	supply   fixed.Num
}

// New creates an empty token ledger
func New(name, symbol string) *Token {
	return &Token{
		name:     name,
		symbol:   symbol,
		balances: make(map[common.Address]fixed.Num),
	}
}

// Name returns the token name
func (t *Token) Name() string { return t.name }

// Symbol returns the token symbol
func (t *Token) Symbol() string { return t.symbol }

// Mint credits new supply to an address
func (t *Token) Mint(to common.Address, amount fixed.Num) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive: %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.balances[to] = t.balances[to].Add(amount)
	t.supply = t.supply.Add(amount)
	return nil
}

// Transfer moves balance between addresses.
// Fails without any mutation if the sender's balance is insufficient.
func (t *Token) Transfer(from, to common.Address, amount fixed.Num) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive: %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balances[from]
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient balance: have %s, need %s", t.symbol, bal, amount)
	}

	t.balances[from] = bal.Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}

// BalanceOf returns the holder's balance
func (t *Token) BalanceOf(holder common.Address) fixed.Num {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[holder]
}

// TotalSupply returns the total minted supply
func (t *Token) TotalSupply() fixed.Num {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply
}
