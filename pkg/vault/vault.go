package vault

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// AssetLedger is the external transferable-balance token the vault settles
// against (collateral in, collateral out). The vault never reimplements token
// logic; a failed transfer fails the whole operation.
type AssetLedger interface {
	Transfer(from, to common.Address, amount fixed.Num) error
	BalanceOf(holder common.Address) fixed.Num
}

// PriceSource supplies the reference price for the synthetic asset.
// The vault reads it at most once per operation and performs no staleness checks.
type PriceSource interface {
	CurrentPrice() fixed.Num
}

// Vault is the leveraged-position margin engine: one authoritative ledger of
// accounts, positions, and the global synthetic exposure aggregate.
//
// Every public operation is a serialized read-modify-write under one mutex:
// it either fully commits or fails with the ledger exactly as before. The
// asset ledger and price source are called while the lock is held, so no
// re-entrant call can observe intermediate state.
type Vault struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account

	// totalSyntheticLocked = Σ SyntheticSize over all open positions,
	// maintained by delta on open/update/cancel
	totalSyntheticLocked fixed.Num

	collateral AssetLedger
	synthetic  AssetLedger
	price      PriceSource
	address    common.Address // the vault's own address on the asset ledgers

	store *Store
	log   *zap.SugaredLogger
}

// New opens the vault over a Pebble database, reloading any persisted ledger.
// The exposure aggregate is rebuilt from the open positions on load, so a
// restart always starts from a reconstructed, self-consistent aggregate.
func New(collateral, synthetic AssetLedger, price PriceSource, vaultAddr common.Address, dbPath string) (*Vault, error) {
	store, err := OpenStore(dbPath)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		accounts:   make(map[common.Address]*Account),
		collateral: collateral,
		synthetic:  synthetic,
		price:      price,
		address:    vaultAddr,
		store:      store,
		log:        zap.NewNop().Sugar(),
	}

	if err := v.load(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	return v, nil
}

// SetLogger installs a logger; the default discards everything
func (v *Vault) SetLogger(log *zap.SugaredLogger) {
	if log != nil {
		v.log = log
	}
}

// Close closes the underlying database
func (v *Vault) Close() error {
	return v.store.Close()
}

func (v *Vault) load() error {
	accounts, err := v.store.LoadAllAccounts()
	if err != nil {
		return err
	}

	total := fixed.Zero()
	for _, acc := range accounts {
		v.accounts[acc.Address] = acc
		total = total.Add(acc.openSynthetic())
	}
	v.totalSyntheticLocked = total

	stored, ok, err := v.store.LoadExposure()
	if err != nil {
		return err
	}
	if ok && !stored.Equal(total) {
		// The reconstruction is authoritative; a mismatch means the last
		// shutdown raced a write. Keep the rebuilt value.
		v.log.Warnw("exposure_mismatch_on_load", "stored", stored, "rebuilt", total)
	}

	return nil
}

// ==============================
// Collateral operations
// ==============================

// Deposit pulls collateral from the user into the vault and credits their
// free balance. The account is created on first deposit.
func (v *Vault) Deposit(user common.Address, amount fixed.Num) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive: %s", amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Pull funds first: the ledger is only credited for collateral the
	// vault actually received.
	if err := v.collateral.Transfer(user, v.address, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	acc := v.getOrCreateAccount(user)
	acc.FreeCollateral = acc.FreeCollateral.Add(amount)

	v.log.Infow("deposit", "user", user.Hex(), "amount", amount)
	return v.persist(acc)
}

// Withdraw pays collateral back out of the user's spendable balance.
// Margin locked under open positions is never withdrawable.
func (v *Vault) Withdraw(user common.Address, amount fixed.Num) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %s", amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	acc := v.accounts[user]
	if acc == nil || amount.Cmp(acc.Spendable()) > 0 {
		spendable := fixed.Zero()
		if acc != nil {
			spendable = acc.Spendable()
		}
		return fmt.Errorf("%w: spendable %s, requested %s", ErrInsufficientFreeCollateral, spendable, amount)
	}

	// Effects before the external call; rolled back if the transfer is
	// rejected, and nothing partial is observable outside the lock.
	acc.FreeCollateral = acc.FreeCollateral.Sub(amount)

	if err := v.collateral.Transfer(v.address, user, amount); err != nil {
		acc.FreeCollateral = acc.FreeCollateral.Add(amount)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	v.log.Infow("withdraw", "user", user.Hex(), "amount", amount)
	return v.persist(acc)
}

// ==============================
// Position lifecycle
// ==============================

// OpenPosition commits `amount` of spendable collateral as margin for a new
// long or short position at the current price. Returns the new position id.
func (v *Vault) OpenPosition(user common.Address, amount fixed.Num, isLong bool, leverage uint8) (uint64, error) {
	if !validLeverage(leverage) {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidLeverage, leverage)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	acc := v.accounts[user]
	spendable := fixed.Zero()
	if acc != nil {
		spendable = acc.Spendable()
	}
	if amount.Sign() <= 0 || amount.Cmp(spendable) > 0 {
		return 0, fmt.Errorf("%w: spendable %s, requested %s", ErrInsufficientFreeCollateral, spendable, amount)
	}

	price := v.price.CurrentPrice()
	if price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	id := acc.NextPositionID
	acc.NextPositionID++

	pos := &Position{
		ID:            id,
		Owner:         user,
		Amount:        amount,
		Leverage:      leverage,
		IsLong:        isLong,
		EntryPrice:    price,
		SyntheticSize: syntheticSize(amount, leverage, price),
		Open:          true,
		OpenedAt:      time.Now().UnixMilli(),
	}
	acc.Positions[id] = pos

	// The margin stays counted in FreeCollateral; locking it shrinks the
	// spendable balance instead of debiting.
	acc.LockedMargin = acc.LockedMargin.Add(amount)
	v.totalSyntheticLocked = v.totalSyntheticLocked.Add(pos.SyntheticSize)

	v.log.Infow("position_opened",
		"user", user.Hex(), "id", id, "amount", amount,
		"leverage", leverage, "long", isLong,
		"entry_price", price, "synthetic_size", pos.SyntheticSize)

	return id, v.persist(acc)
}

// UpdatePosition changes a position's leverage. The synthetic size is
// recomputed against the original entry price: releveraging resizes
// exposure, it does not re-base the position or touch margin.
func (v *Vault) UpdatePosition(user common.Address, id uint64, newLeverage uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	acc, pos, err := v.openPositionLocked(user, id)
	if err != nil {
		return err
	}
	if !validLeverage(newLeverage) {
		return fmt.Errorf("%w: got %d", ErrInvalidLeverage, newLeverage)
	}

	newSize := syntheticSize(pos.Amount, newLeverage, pos.EntryPrice)
	v.totalSyntheticLocked = v.totalSyntheticLocked.Add(newSize).Sub(pos.SyntheticSize)

	v.log.Infow("position_releveraged",
		"user", user.Hex(), "id", id,
		"old_leverage", pos.Leverage, "new_leverage", newLeverage,
		"old_size", pos.SyntheticSize, "new_size", newSize)

	pos.Leverage = newLeverage
	pos.SyntheticSize = newSize

	return v.persist(acc)
}

// ExpectedPnL reports the profit or loss the position would realize if
// cancelled at the current price. Read-only; cancel settles with exactly
// the same formula.
func (v *Vault) ExpectedPnL(user common.Address, id uint64) (isProfit bool, magnitude fixed.Num, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, pos, err := v.openPositionLocked(user, id)
	if err != nil {
		return false, fixed.Zero(), err
	}

	price := v.price.CurrentPrice()
	if price.Sign() <= 0 {
		return false, fixed.Zero(), fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	isProfit, magnitude = pos.PnL(price)
	return isProfit, magnitude, nil
}

// CancelPosition closes a position at the current price, settles the
// realized PnL into free collateral, and releases the locked margin.
// Losses are applied in full; the balance is floored at the margin still
// locked under the user's other open positions (zero when there are none)
// and any uncovered remainder is surfaced as a deficit.
func (v *Vault) CancelPosition(user common.Address, id uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	acc, pos, err := v.openPositionLocked(user, id)
	if err != nil {
		return err
	}

	price := v.price.CurrentPrice()
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	// Release the margin before settling so the loss floor is the margin
	// still backing the remaining open positions.
	acc.LockedMargin = acc.LockedMargin.Sub(pos.Amount)
	v.totalSyntheticLocked = v.totalSyntheticLocked.Sub(pos.SyntheticSize)

	isProfit, magnitude := pos.PnL(price)
	if isProfit {
		acc.FreeCollateral = acc.FreeCollateral.Add(magnitude)
		acc.RealizedPnL = acc.RealizedPnL.Add(magnitude)
	} else {
		acc.RealizedPnL = acc.RealizedPnL.Sub(magnitude)
		remaining := acc.FreeCollateral.Sub(magnitude)
		if remaining.Cmp(acc.LockedMargin) < 0 {
			v.log.Warnw("settlement_deficit",
				"user", user.Hex(), "id", id,
				"deficit", acc.LockedMargin.Sub(remaining))
			remaining = acc.LockedMargin
		}
		acc.FreeCollateral = remaining
	}

	pos.Open = false
	pos.ClosedAt = time.Now().UnixMilli()

	v.log.Infow("position_cancelled",
		"user", user.Hex(), "id", id, "exit_price", price,
		"profit", isProfit, "pnl", magnitude)

	return v.persist(acc)
}

// ==============================
// Read accessors
// ==============================

// CollateralAmount returns the user's free collateral balance
func (v *Vault) CollateralAmount(user common.Address) fixed.Num {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if acc := v.accounts[user]; acc != nil {
		return acc.FreeCollateral
	}
	return fixed.Zero()
}

// CollateralLocked returns the user's margin locked under open positions
func (v *Vault) CollateralLocked(user common.Address) fixed.Num {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if acc := v.accounts[user]; acc != nil {
		return acc.LockedMargin
	}
	return fixed.Zero()
}

// AccountSnapshot is a read-only view of one ledger entry
type AccountSnapshot struct {
	Address        common.Address
	FreeCollateral fixed.Num
	LockedMargin   fixed.Num
	Spendable      fixed.Num
	RealizedPnL    fixed.Num
	OpenPositions  int
}

// Account returns a snapshot of the user's ledger entry
func (v *Vault) Account(user common.Address) AccountSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snap := AccountSnapshot{Address: user}
	if acc := v.accounts[user]; acc != nil {
		snap.FreeCollateral = acc.FreeCollateral
		snap.LockedMargin = acc.LockedMargin
		snap.Spendable = acc.Spendable()
		snap.RealizedPnL = acc.RealizedPnL
		snap.OpenPositions = len(acc.OpenPositions())
	}
	return snap
}

// GetPosition returns a snapshot of any recorded position, open or closed.
// Cancelled positions keep their last recorded state with Open=false.
func (v *Vault) GetPosition(user common.Address, id uint64) (*Position, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	acc := v.accounts[user]
	if acc == nil {
		return nil, fmt.Errorf("%w: owner=%s id=%d", ErrPositionNotFound, user.Hex(), id)
	}
	pos := acc.Positions[id]
	if pos == nil {
		return nil, fmt.Errorf("%w: owner=%s id=%d", ErrPositionNotFound, user.Hex(), id)
	}
	return pos.snapshot(), nil
}

// Positions returns snapshots of the user's open positions ordered by id
func (v *Vault) Positions(user common.Address) []*Position {
	v.mu.RLock()
	defer v.mu.RUnlock()

	acc := v.accounts[user]
	if acc == nil {
		return nil
	}
	open := acc.OpenPositions()
	out := make([]*Position, len(open))
	for i, pos := range open {
		out[i] = pos.snapshot()
	}
	return out
}

// Price returns the current reference price from the configured source
func (v *Vault) Price() fixed.Num {
	return v.price.CurrentPrice()
}

// SyntheticAmountLocked returns the global open synthetic exposure
func (v *Vault) SyntheticAmountLocked() fixed.Num {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalSyntheticLocked
}

// Reserves reports the vault's holdings on the external asset ledgers
func (v *Vault) Reserves() (collateral, synthetic fixed.Num) {
	return v.collateral.BalanceOf(v.address), v.synthetic.BalanceOf(v.address)
}

// VerifyIntegrity re-derives every tracked aggregate from the position book
// and fails on any mismatch. Used by tests and the health endpoint.
func (v *Vault) VerifyIntegrity() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total := fixed.Zero()
	for addr, acc := range v.accounts {
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("account %s: %w", addr.Hex(), err)
		}
		total = total.Add(acc.openSynthetic())
	}

	if !total.Equal(v.totalSyntheticLocked) {
		return fmt.Errorf("exposure mismatch: tracked=%s, reconstructed=%s", v.totalSyntheticLocked, total)
	}

	return nil
}

// ==============================
// Internal helpers
// ==============================

func (v *Vault) getOrCreateAccount(user common.Address) *Account {
	acc := v.accounts[user]
	if acc == nil {
		acc = NewAccount(user)
		v.accounts[user] = acc
	}
	return acc
}

// openPositionLocked resolves an open position or fails with ErrPositionNotFound.
// Unknown owner, unknown id, and already-cancelled all look the same to callers.
func (v *Vault) openPositionLocked(user common.Address, id uint64) (*Account, *Position, error) {
	acc := v.accounts[user]
	if acc != nil {
		if pos := acc.Positions[id]; pos != nil && pos.Open {
			return acc, pos, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: owner=%s id=%d", ErrPositionNotFound, user.Hex(), id)
}

// persist writes the account and exposure aggregate through to Pebble.
// The in-memory ledger is authoritative; the store is the recovery source.
func (v *Vault) persist(acc *Account) error {
	return v.store.SaveSnapshot(acc, v.totalSyntheticLocked)
}
