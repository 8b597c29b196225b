package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	vcrypto "github.com/uhyunpark/synthvault/pkg/crypto"
	"github.com/uhyunpark/synthvault/pkg/fixed"
	"github.com/uhyunpark/synthvault/pkg/oracle"
	"github.com/uhyunpark/synthvault/pkg/vault"
)

// Config controls the API server's optional features
type Config struct {
	// OpLogPath appends one JSON line per mutating operation; empty disables
	OpLogPath string

	// RequireSignatures rejects mutating requests without a valid
	// secp256k1 signature from the request's address
	RequireSignatures bool

	AllowedOrigins []string
}

// Server exposes the vault over REST and WebSocket
type Server struct {
	vault *vault.Vault

	// feed is the in-process settable price source; nil when the node
	// tracks an external stream instead
	feed *oracle.Feed

	router      *mux.Router
	hub         *Hub
	httpSrv     *http.Server
	opLog       *os.File
	requireSigs bool
	origins     []string
	log         *zap.SugaredLogger
}

// NewServer creates an API server over a vault
func NewServer(v *vault.Vault, feed *oracle.Feed, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var opLog *os.File
	if cfg.OpLogPath != "" {
		os.MkdirAll(filepath.Dir(cfg.OpLogPath), 0755)
		f, err := os.OpenFile(cfg.OpLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Warnw("op_log_open_failed", "path", cfg.OpLogPath, "err", err)
		} else {
			log.Infow("op_log_enabled", "path", cfg.OpLogPath)
			opLog = f
		}
	}

	s := &Server{
		vault:       v,
		feed:        feed,
		router:      mux.NewRouter(),
		hub:         NewHub(log),
		opLog:       opLog,
		requireSigs: cfg.RequireSignatures,
		origins:     cfg.AllowedOrigins,
		log:         log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/accounts/{address}/positions/{id}", s.handleGetPosition).Methods("GET")
	api.HandleFunc("/accounts/{address}/positions/{id}/pnl", s.handleGetPnL).Methods("GET")

	// Vault-wide view
	api.HandleFunc("/exposure", s.handleGetExposure).Methods("GET")

	// Collateral operations
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	// Position lifecycle
	api.HandleFunc("/positions", s.handleOpenPosition).Methods("POST")
	api.HandleFunc("/positions/update", s.handleUpdatePosition).Methods("POST")
	api.HandleFunc("/positions/cancel", s.handleCancelPosition).Methods("POST")

	// Operator price control (settable feed only)
	api.HandleFunc("/oracle/price", s.handleSetPrice).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves until Shutdown is called
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{Addr: addr, Handler: c.Handler(s.router)}

	s.log.Infow("api_server_starting", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the operation log
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.opLog != nil {
		s.opLog.Close()
	}
	return err
}

// ==============================
// Read handlers
// ==============================

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}

	snap := s.vault.Account(addr)
	respondJSON(w, AccountInfo{
		Address:        addr.Hex(),
		FreeCollateral: snap.FreeCollateral.String(),
		LockedMargin:   snap.LockedMargin.String(),
		Spendable:      snap.Spendable.String(),
		RealizedPnL:    snap.RealizedPnL.String(),
		OpenPositions:  snap.OpenPositions,
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}

	mark := s.vault.Price()
	positions := s.vault.Positions(addr)

	out := make([]PositionInfo, len(positions))
	for i, pos := range positions {
		out[i] = positionInfo(pos, mark)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	id, ok := parsePositionID(w, r)
	if !ok {
		return
	}

	pos, err := s.vault.GetPosition(addr, id)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	respondJSON(w, positionInfo(pos, s.vault.Price()))
}

func (s *Server) handleGetPnL(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	id, ok := parsePositionID(w, r)
	if !ok {
		return
	}

	isProfit, magnitude, err := s.vault.ExpectedPnL(addr, id)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	respondJSON(w, PnLInfo{
		PositionID: id,
		IsProfit:   isProfit,
		Magnitude:  magnitude.String(),
		MarkPrice:  s.vault.Price().String(),
	})
}

func (s *Server) handleGetExposure(w http.ResponseWriter, r *http.Request) {
	collateral, synthetic := s.vault.Reserves()
	respondJSON(w, ExposureInfo{
		TotalSyntheticLocked: s.vault.SyntheticAmountLocked().String(),
		CollateralReserve:    collateral.String(),
		SyntheticReserve:     synthetic.String(),
		Price:                s.vault.Price().String(),
		Timestamp:            time.Now().UnixMilli(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.VerifyIntegrity(); err != nil {
		s.log.Errorw("integrity_check_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "ledger integrity violated", err.Error())
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

// ==============================
// Mutating handlers
// ==============================

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req.Address, req.Amount)
	if !ok {
		return
	}
	if !s.verifySignature(w, addr, req.Signature, "deposit", req.Nonce, req.Amount) {
		return
	}

	if err := s.vault.Deposit(addr, amount); err != nil {
		respondVaultError(w, err)
		return
	}

	s.logOperation("DEPOSIT", map[string]interface{}{"address": addr.Hex(), "amount": req.Amount})
	s.broadcastAccount(addr)
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req.Address, req.Amount)
	if !ok {
		return
	}
	if !s.verifySignature(w, addr, req.Signature, "withdraw", req.Nonce, req.Amount) {
		return
	}

	if err := s.vault.Withdraw(addr, amount); err != nil {
		respondVaultError(w, err)
		return
	}

	s.logOperation("WITHDRAW", map[string]interface{}{"address": addr.Hex(), "amount": req.Amount})
	s.broadcastAccount(addr)
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req.Address, req.Amount)
	if !ok {
		return
	}
	sigFields := []string{req.Amount, strconv.FormatBool(req.IsLong), strconv.Itoa(int(req.Leverage))}
	if !s.verifySignature(w, addr, req.Signature, "open", req.Nonce, sigFields...) {
		return
	}

	id, err := s.vault.OpenPosition(addr, amount, req.IsLong, req.Leverage)
	if err != nil {
		respondVaultError(w, err)
		return
	}

	s.logOperation("POSITION_OPEN", map[string]interface{}{
		"address": addr.Hex(), "id": id, "amount": req.Amount,
		"isLong": req.IsLong, "leverage": req.Leverage,
	})
	s.broadcastAccount(addr)
	s.broadcastExposure()
	respondJSON(w, OpenPositionResponse{Status: "ok", PositionID: id})
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req UpdatePositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}
	addr := common.HexToAddress(req.Address)
	sigFields := []string{strconv.FormatUint(req.PositionID, 10), strconv.Itoa(int(req.Leverage))}
	if !s.verifySignature(w, addr, req.Signature, "update", req.Nonce, sigFields...) {
		return
	}

	if err := s.vault.UpdatePosition(addr, req.PositionID, req.Leverage); err != nil {
		respondVaultError(w, err)
		return
	}

	s.logOperation("POSITION_UPDATE", map[string]interface{}{
		"address": addr.Hex(), "id": req.PositionID, "leverage": req.Leverage,
	})
	s.broadcastExposure()
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleCancelPosition(w http.ResponseWriter, r *http.Request) {
	var req CancelPositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}
	addr := common.HexToAddress(req.Address)
	if !s.verifySignature(w, addr, req.Signature, "cancel", req.Nonce, strconv.FormatUint(req.PositionID, 10)) {
		return
	}

	if err := s.vault.CancelPosition(addr, req.PositionID); err != nil {
		respondVaultError(w, err)
		return
	}

	s.logOperation("POSITION_CANCEL", map[string]interface{}{"address": addr.Hex(), "id": req.PositionID})
	s.broadcastAccount(addr)
	s.broadcastExposure()
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		respondError(w, http.StatusServiceUnavailable, "price feed not operator-settable", "")
		return
	}

	var req SetPriceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	price, err := fixed.Parse(req.Price)
	if err != nil || price.Sign() <= 0 {
		respondError(w, http.StatusBadRequest, "invalid price", req.Price)
		return
	}

	s.feed.Set(price)
	s.logOperation("PRICE_SET", map[string]interface{}{"price": req.Price})
	s.hub.BroadcastToChannel("price", PriceUpdate{
		Type:      "price",
		Price:     price.String(),
		Timestamp: time.Now().UnixMilli(),
	})
	respondJSON(w, StatusResponse{Status: "ok"})
}

// ==============================
// Broadcast helpers
// ==============================

func (s *Server) broadcastAccount(addr common.Address) {
	snap := s.vault.Account(addr)
	s.hub.BroadcastToChannel("account:"+addr.Hex(), AccountUpdate{
		Type:           "account",
		Address:        addr.Hex(),
		FreeCollateral: snap.FreeCollateral.String(),
		LockedMargin:   snap.LockedMargin.String(),
		Spendable:      snap.Spendable.String(),
		Timestamp:      time.Now().UnixMilli(),
	})
}

func (s *Server) broadcastExposure() {
	s.hub.BroadcastToChannel("exposure", ExposureUpdate{
		Type:                 "exposure",
		TotalSyntheticLocked: s.vault.SyntheticAmountLocked().String(),
		Timestamp:            time.Now().UnixMilli(),
	})
}

// ==============================
// Helpers
// ==============================

func positionInfo(pos *vault.Position, mark fixed.Num) PositionInfo {
	isProfit, magnitude := pos.PnL(mark)
	return PositionInfo{
		ID:            pos.ID,
		Owner:         pos.Owner.Hex(),
		Amount:        pos.Amount.String(),
		Leverage:      pos.Leverage,
		IsLong:        pos.IsLong,
		EntryPrice:    pos.EntryPrice.String(),
		SyntheticSize: pos.SyntheticSize.String(),
		Open:          pos.Open,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      pos.ClosedAt,
		MarkPrice:     mark.String(),
		Notional:      pos.Notional(mark).String(),
		IsProfit:      isProfit,
		UnrealizedPnL: magnitude.String(),
	}
}

// verifySignature enforces request signing when configured. Returns false
// after writing the error response.
func (s *Server) verifySignature(w http.ResponseWriter, addr common.Address, sigHex, op string, nonce uint64, fields ...string) bool {
	if !s.requireSigs {
		return true
	}
	if sigHex == "" {
		respondError(w, http.StatusUnauthorized, "missing signature", "")
		return false
	}
	sig := common.FromHex(sigHex)
	if !vcrypto.VerifyRequest(addr, sig, op, nonce, fields...) {
		respondError(w, http.StatusUnauthorized, "invalid signature", "")
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parsePositionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid position id", raw)
		return 0, false
	}
	return id, true
}

func parseAddrAmount(w http.ResponseWriter, addrStr, amountStr string) (common.Address, fixed.Num, bool) {
	if !common.IsHexAddress(addrStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addrStr)
		return common.Address{}, fixed.Zero(), false
	}
	amount, err := fixed.Parse(amountStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", amountStr)
		return common.Address{}, fixed.Zero(), false
	}
	return common.HexToAddress(addrStr), amount, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// respondVaultError maps vault sentinel errors onto HTTP status codes
func respondVaultError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vault.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vault.ErrInvalidLeverage),
		errors.Is(err, vault.ErrInvalidPrice),
		errors.Is(err, vault.ErrInsufficientFreeCollateral):
		status = http.StatusBadRequest
	case errors.Is(err, vault.ErrTransferFailed):
		status = http.StatusConflict
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}

// logOperation appends one JSON line per committed operation
func (s *Server) logOperation(eventType string, data map[string]interface{}) {
	if s.opLog == nil {
		return
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     eventType,
		"data":      data,
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		s.log.Warnw("op_log_marshal_failed", "err", err)
		return
	}

	if _, err := fmt.Fprintf(s.opLog, "%s\n", jsonData); err != nil {
		s.log.Warnw("op_log_write_failed", "err", err)
	}
}
