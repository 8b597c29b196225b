package vault

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// Store provides Pebble-based persistence for the vault ledger.
// Thread-safe: all writes go through the Vault's mutex.
type Store struct {
	db *pebble.DB
}

// OpenStore opens a Pebble database at the given path
func OpenStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:          32 << 20,                  // 32MB memtable
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot persists an account record together with the global exposure
// aggregate in one atomic batch. Called after every committed operation so
// that a restart never observes an account without its matching aggregate.
func (s *Store) SaveSnapshot(acc *Account, exposure fixed.Num) error {
	accData, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	expData, err := json.Marshal(exposure)
	if err != nil {
		return fmt.Errorf("failed to marshal exposure: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(accountKey(acc.Address), accData, nil); err != nil {
		return fmt.Errorf("failed to stage account: %w", err)
	}
	if err := batch.Set([]byte(keyExposure), expData, nil); err != nil {
		return fmt.Errorf("failed to stage exposure: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadAccount loads an account from Pebble
// Returns nil if the account doesn't exist
func (s *Store) LoadAccount(addr common.Address) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	return decodeAccount(data)
}

// LoadAllAccounts loads every persisted account
func (s *Store) LoadAllAccounts() ([]*Account, error) {
	prefix := []byte(prefixAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var accounts []*Account
	for iter.First(); iter.Valid(); iter.Next() {
		acc, err := decodeAccount(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("corrupt account record %q: %w", iter.Key(), err)
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

// LoadExposure loads the persisted exposure aggregate.
// Returns zero and ok=false if it was never written.
func (s *Store) LoadExposure() (fixed.Num, bool, error) {
	data, closer, err := s.db.Get([]byte(keyExposure))
	if err == pebble.ErrNotFound {
		return fixed.Zero(), false, nil
	}
	if err != nil {
		return fixed.Zero(), false, fmt.Errorf("failed to get exposure: %w", err)
	}
	defer closer.Close()

	var exposure fixed.Num
	if err := json.Unmarshal(data, &exposure); err != nil {
		return fixed.Zero(), false, fmt.Errorf("failed to unmarshal exposure: %w", err)
	}
	return exposure, true, nil
}

func decodeAccount(data []byte) (*Account, error) {
	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	// JSON unmarshal may leave the map nil for old records
	if acc.Positions == nil {
		acc.Positions = make(map[uint64]*Position)
	}
	if acc.NextPositionID == 0 {
		acc.NextPositionID = 1
	}

	return &acc, nil
}
