package vault

import (
	"testing"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	acc := NewAccount(alice)
	acc.FreeCollateral = fixed.FromInt64(1500)
	acc.LockedMargin = fixed.FromInt64(500)
	acc.Positions[1] = &Position{
		ID:            1,
		Owner:         alice,
		Amount:        fixed.FromInt64(500),
		Leverage:      2,
		IsLong:        true,
		EntryPrice:    fixed.FromInt64(2000),
		SyntheticSize: fixed.MustParse("0.5"),
		Open:          true,
		OpenedAt:      1700000000000,
	}
	acc.NextPositionID = 2

	if err := s.SaveSnapshot(acc, fixed.MustParse("0.5")); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	loaded, err := s.LoadAccount(alice)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if loaded == nil {
		t.Fatal("account not found after save")
	}
	if !loaded.FreeCollateral.Equal(fixed.FromInt64(1500)) {
		t.Errorf("free = %s, want 1500", loaded.FreeCollateral)
	}
	if !loaded.LockedMargin.Equal(fixed.FromInt64(500)) {
		t.Errorf("locked = %s, want 500", loaded.LockedMargin)
	}
	pos, ok := loaded.Positions[1]
	if !ok {
		t.Fatal("position 1 missing after reload")
	}
	if !pos.SyntheticSize.Equal(fixed.MustParse("0.5")) || !pos.Open || pos.Leverage != 2 {
		t.Errorf("position fields wrong after reload: %+v", pos)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("reloaded account invalid: %v", err)
	}

	exposure, ok, err := s.LoadExposure()
	if err != nil {
		t.Fatalf("load exposure: %v", err)
	}
	if !ok || !exposure.Equal(fixed.MustParse("0.5")) {
		t.Errorf("exposure = (%s, %v), want (0.5, true)", exposure, ok)
	}
}

func TestStoreMissingRecords(t *testing.T) {
	s := newTestStore(t)

	acc, err := s.LoadAccount(alice)
	if err != nil {
		t.Fatalf("load missing account: %v", err)
	}
	if acc != nil {
		t.Error("expected nil for missing account")
	}

	_, ok, err := s.LoadExposure()
	if err != nil {
		t.Fatalf("load missing exposure: %v", err)
	}
	if ok {
		t.Error("expected ok=false for never-written exposure")
	}
}

func TestStoreLoadAllAccounts(t *testing.T) {
	s := newTestStore(t)

	a := NewAccount(alice)
	a.FreeCollateral = fixed.FromInt64(100)
	b := NewAccount(bob)
	b.FreeCollateral = fixed.FromInt64(200)

	s.SaveSnapshot(a, fixed.Zero())
	s.SaveSnapshot(b, fixed.Zero())

	accounts, err := s.LoadAllAccounts()
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("loaded %d accounts, want 2", len(accounts))
	}

	byAddr := map[string]*Account{}
	for _, acc := range accounts {
		byAddr[acc.Address.Hex()] = acc
	}
	if got := byAddr[alice.Hex()]; got == nil || !got.FreeCollateral.Equal(fixed.FromInt64(100)) {
		t.Errorf("alice record wrong: %+v", got)
	}
	if got := byAddr[bob.Hex()]; got == nil || !got.FreeCollateral.Equal(fixed.FromInt64(200)) {
		t.Errorf("bob record wrong: %+v", got)
	}
}
