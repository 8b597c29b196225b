package api

// Request and response shapes for the REST endpoints and WebSocket messages.
// All monetary fields are 18-decimal fixed-point values carried as decimal
// strings, e.g. "1500" or "0.5".

// ==============================
// REST Response Types
// ==============================

// AccountInfo is one ledger entry as seen by clients
type AccountInfo struct {
	Address        string `json:"address"`
	FreeCollateral string `json:"freeCollateral"`
	LockedMargin   string `json:"lockedMargin"`
	Spendable      string `json:"spendable"` // freeCollateral − lockedMargin
	RealizedPnL    string `json:"realizedPnl"`
	OpenPositions  int    `json:"openPositions"`
}

// PositionInfo is one position plus its mark-price valuation
type PositionInfo struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	Amount        string `json:"amount"`
	Leverage      uint8  `json:"leverage"`
	IsLong        bool   `json:"isLong"`
	EntryPrice    string `json:"entryPrice"`
	SyntheticSize string `json:"syntheticSize"`
	Open          bool   `json:"open"`
	OpenedAt      int64  `json:"openedAt"` // Unix milliseconds
	ClosedAt      int64  `json:"closedAt,omitempty"`

	MarkPrice     string `json:"markPrice"`
	Notional      string `json:"notional"`
	IsProfit      bool   `json:"isProfit"`
	UnrealizedPnL string `json:"unrealizedPnl"` // magnitude, see isProfit for sign
}

// PnLInfo is the would-settle valuation of one open position
type PnLInfo struct {
	PositionID uint64 `json:"positionId"`
	IsProfit   bool   `json:"isProfit"`
	Magnitude  string `json:"magnitude"`
	MarkPrice  string `json:"markPrice"`
}

// ExposureInfo is the vault-wide view: aggregate synthetic exposure,
// reserve holdings, and the current reference price
type ExposureInfo struct {
	TotalSyntheticLocked string `json:"totalSyntheticLocked"`
	CollateralReserve    string `json:"collateralReserve"`
	SyntheticReserve     string `json:"syntheticReserve"`
	Price                string `json:"price"`
	Timestamp            int64  `json:"timestamp"` // Unix milliseconds
}

// OpenPositionResponse is returned from POST /api/v1/positions
type OpenPositionResponse struct {
	Status     string `json:"status"`
	PositionID uint64 `json:"positionId"`
}

// StatusResponse is the generic success envelope
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// Mutating requests carry an optional secp256k1 signature over the canonical
// request digest (see pkg/crypto). Verification is enforced only when the
// server runs with RequireSignatures.

// DepositRequest is the payload for POST /api/v1/deposit
type DepositRequest struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Signature string `json:"signature,omitempty"` // hex, 65 bytes
}

// WithdrawRequest is the payload for POST /api/v1/withdraw
type WithdrawRequest struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// OpenPositionRequest is the payload for POST /api/v1/positions
type OpenPositionRequest struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	IsLong    bool   `json:"isLong"`
	Leverage  uint8  `json:"leverage"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// UpdatePositionRequest is the payload for POST /api/v1/positions/update
type UpdatePositionRequest struct {
	Address    string `json:"address"`
	PositionID uint64 `json:"positionId"`
	Leverage   uint8  `json:"leverage"`
	Nonce      uint64 `json:"nonce,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// CancelPositionRequest is the payload for POST /api/v1/positions/cancel
type CancelPositionRequest struct {
	Address    string `json:"address"`
	PositionID uint64 `json:"positionId"`
	Nonce      uint64 `json:"nonce,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// SetPriceRequest is the payload for POST /api/v1/oracle/price.
// Only served when the node runs the in-process settable feed.
type SetPriceRequest struct {
	Price string `json:"price"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage channel subscriptions.
// Channels: "account:0x...", "exposure", "price".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// AccountUpdate is broadcast on channel "account:{address}" after every
// committed operation touching that account
type AccountUpdate struct {
	Type           string `json:"type"` // "account"
	Address        string `json:"address"`
	FreeCollateral string `json:"freeCollateral"`
	LockedMargin   string `json:"lockedMargin"`
	Spendable      string `json:"spendable"`
	Timestamp      int64  `json:"timestamp"`
}

// ExposureUpdate is broadcast on channel "exposure" whenever the global
// synthetic aggregate moves
type ExposureUpdate struct {
	Type                 string `json:"type"` // "exposure"
	TotalSyntheticLocked string `json:"totalSyntheticLocked"`
	Timestamp            int64  `json:"timestamp"`
}

// PriceUpdate is broadcast on channel "price" when the operator re-points
// the in-process feed
type PriceUpdate struct {
	Type      string `json:"type"` // "price"
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}
