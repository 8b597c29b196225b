// Package oracle provides price sources for the vault: a settable in-process
// feed (devnet / tests) and a websocket client that tracks an external stream.
package oracle

import (
	"sync"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// Feed is a settable price source, the in-process equivalent of the
// reference price feed contract: one stored scalar, updated by an operator.
type Feed struct {
	mu    sync.RWMutex
	price fixed.Num
}

// NewFeed creates a feed with an initial price
func NewFeed(initial fixed.Num) *Feed {
	return &Feed{price: initial}
}

// Set stores a new latest price
func (f *Feed) Set(price fixed.Num) {
	f.mu.Lock()
	f.price = price
	f.mu.Unlock()
}

// CurrentPrice returns the stored price
func (f *Feed) CurrentPrice() fixed.Num {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price
}
