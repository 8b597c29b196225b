package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Accounts carry their position book inside the record,
// so the schema stays flat: one key per account plus the global aggregate.
const (
	prefixAccount = "acc:"     // account state (positions embedded)
	keyExposure   = "exposure" // global totalSyntheticLocked
)

// accountKey returns the key for an account
// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
