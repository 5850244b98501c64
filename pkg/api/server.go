package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
	"github.com/uhyunpark/swapsettle/pkg/script"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
	"github.com/uhyunpark/swapsettle/pkg/util"
)

// Config selects the defaults for script queries and CORS.
type Config struct {
	Network        script.Network
	ScriptVersion  script.Version
	AllowedOrigins []string
}

// Server exposes the coordinator over REST.
type Server struct {
	coord  *settlement.Coordinator
	clock  util.Clock
	cfg    Config
	router *mux.Router
	logger *zap.SugaredLogger

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new API server
func NewServer(coord *settlement.Coordinator, clock util.Clock, cfg Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		coord:  coord,
		clock:  clock,
		cfg:    cfg,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orders and fills
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/fills", s.handleGetFills).Methods("GET")
	api.HandleFunc("/orders/{id}/fills", s.handleRequestFill).Methods("POST")
	api.HandleFunc("/fills", s.handleApplyFill).Methods("POST")
	api.HandleFunc("/candidates", s.handleCandidates).Methods("GET")

	// Merkle batches
	api.HandleFunc("/batches", s.handleCommitBatch).Methods("POST")
	api.HandleFunc("/batches/verify", s.handleVerifyBatch).Methods("POST")
	api.HandleFunc("/batches/{root}", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/batches/{root}/proof/{index}", s.handleGetProof).Methods("GET")

	// HTLC
	api.HandleFunc("/htlc/authorize", s.handleAuthorize).Methods("POST")
	api.HandleFunc("/locks", s.handleLock).Methods("POST")
	api.HandleFunc("/locks/{ref}", s.handleGetLock).Methods("GET")
	api.HandleFunc("/locks/{ref}/spend", s.handleSpend).Methods("POST")

	// Script identity
	api.HandleFunc("/script", s.handleScript).Methods("POST")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Infow("api_server_starting", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ==============================
// Order handlers
// ==============================

func (s *Server) orderInfo(rec settlement.OrderRecord) OrderInfo {
	o := rec.Order
	return OrderInfo{
		Order:     o,
		Version:   rec.Version,
		Hash:      o.Hash().String(),
		Rate:      o.Rate().String(),
		Remaining: order.RemainingCapacity(o),
		Complete:  order.IsOrderComplete(o),
		Expired:   order.IsOrderExpired(o, int64(util.Slot(s.clock))),
	}
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	o, err := order.ParseOrder(req.Order)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	sig, err := order.DecodeField("makerSig", req.MakerSig, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid signature", err.Error())
		return
	}

	rec, err := s.coord.SubmitOrder(r.Context(), o, sig)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(rec))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBytes(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.coord.Order(r.Context(), id)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(rec))
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBytes(w, r, "id")
	if !ok {
		return
	}
	fills, err := s.coord.Fills(r.Context(), id)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, fills)
}

func (s *Server) handleRequestFill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBytes(w, r, "id")
	if !ok {
		return
	}
	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	taker, err := order.DecodeField("taker", req.Taker, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}

	f, rec, err := s.coord.RequestFill(r.Context(), id, taker, req.Amount)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, FillResult{Fill: f, FillHash: f.Hash().String(), Order: s.orderInfo(rec)})
}

func (s *Server) handleApplyFill(w http.ResponseWriter, r *http.Request) {
	var f order.Fill
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		respondError(w, http.StatusBadRequest, "invalid fill", err.Error())
		return
	}
	rec, err := s.coord.ApplyFill(r.Context(), f)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, FillResult{Fill: f, FillHash: f.Hash().String(), Order: s.orderInfo(rec)})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	recs, err := s.coord.Candidates(r.Context(), amount)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	out := make([]OrderInfo, len(recs))
	for i, rec := range recs {
		out[i] = s.orderInfo(rec)
	}
	respondJSON(w, out)
}

// ==============================
// Batch handlers
// ==============================

func (s *Server) handleCommitBatch(w http.ResponseWriter, r *http.Request) {
	var req CommitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	ids := make([][]byte, 0, len(req.OrderIDs))
	for i, raw := range req.OrderIDs {
		id, err := order.DecodeField(fmt.Sprintf("orderIds[%d]", i), raw, true)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
			return
		}
		ids = append(ids, id)
	}

	b, err := s.coord.CommitBatch(r.Context(), ids)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, BatchInfo{Batch: b, Count: len(b.Orders)})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	respondJSON(w, BatchInfo{Batch: b, Count: len(b.Orders)})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid index", err.Error())
		return
	}
	proof, err := merkle.Build(b.Orders).Proof(idx)
	if err != nil {
		respondError(w, http.StatusNotFound, "leaf not found", err.Error())
		return
	}
	respondJSON(w, ProofResponse{
		Root:  b.Root.String(),
		Index: idx,
		Leaf:  b.Orders[idx].Hash().String(),
		Path:  proof,
	})
}

// handleVerifyBatch recomputes the root of a published batch. It needs no
// stored state.
func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var b merkle.Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch", err.Error())
		return
	}
	got := merkle.Root(b.Orders)
	respondJSON(w, VerifyBatchResponse{
		Valid:      got == b.Root,
		Root:       b.Root.String(),
		Recomputed: got.String(),
	})
}

func (s *Server) loadBatch(w http.ResponseWriter, r *http.Request) (merkle.Batch, bool) {
	root, err := hashing.DigestFromHex(mux.Vars(r)["root"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid root", err.Error())
		return merkle.Batch{}, false
	}
	b, err := s.coord.Batch(r.Context(), root)
	if err != nil {
		respondCoordError(w, err)
		return merkle.Batch{}, false
	}
	return b, true
}

// ==============================
// HTLC handlers
// ==============================

// handleAuthorize is a pure pre-check: the caller supplies every input the
// validator sees.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	d, red, err := decodeDatumRedeemer(req.Datum, req.Redeemer)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed input", err.Error())
		return
	}
	signers := make([][]byte, 0, len(req.Signers))
	for i, raw := range req.Signers {
		b, err := order.DecodeField(fmt.Sprintf("signers[%d]", i), raw, true)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid signer", err.Error())
			return
		}
		signers = append(signers, b)
	}
	first, err := order.DecodeField("firstInputSigner", req.FirstInputSigner, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid signer", err.Error())
		return
	}

	resp := AuthorizeResponse{Authorized: true, Action: string(htlc.ActionFor(d, red).Kind())}
	if err := htlc.Check(d, red, signers, req.Now, first); err != nil {
		resp.Authorized = false
		resp.Reason = err.Error()
	}
	respondJSON(w, resp)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	ref, err := settlement.ParseOutRef(req.Ref)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ref", err.Error())
		return
	}
	raw, err := order.DecodeField("datum", req.Datum, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid datum", err.Error())
		return
	}
	d, err := htlc.DecodeDatum(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid datum", err.Error())
		return
	}
	locker, err := order.DecodeField("locker", req.Locker, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid locker", err.Error())
		return
	}

	rec, err := s.coord.Lock(r.Context(), ref, d, locker)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, lockInfo(rec))
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	ref, err := settlement.ParseOutRef(mux.Vars(r)["ref"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ref", err.Error())
		return
	}
	rec, err := s.coord.LockState(r.Context(), ref)
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, lockInfo(rec))
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	ref, err := settlement.ParseOutRef(mux.Vars(r)["ref"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ref", err.Error())
		return
	}
	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	var red htlc.Redeemer
	if req.Redeemer != "" {
		raw, err := order.DecodeField("redeemer", req.Redeemer, false)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid redeemer", err.Error())
			return
		}
		if red, err = htlc.DecodeRedeemer(raw); err != nil {
			respondError(w, http.StatusBadRequest, "invalid redeemer", err.Error())
			return
		}
	}
	witnesses := make([][]byte, 0, len(req.Witnesses))
	for i, raw := range req.Witnesses {
		b, err := order.DecodeField(fmt.Sprintf("witnesses[%d]", i), raw, true)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid witness", err.Error())
			return
		}
		witnesses = append(witnesses, b)
	}

	rec, err := s.coord.Spend(r.Context(), settlement.SpendRequest{Ref: ref, Redeemer: red, Witnesses: witnesses})
	if err != nil {
		respondCoordError(w, err)
		return
	}
	respondJSON(w, lockInfo(rec))
}

func lockInfo(rec settlement.LockRecord) LockInfo {
	return LockInfo{
		Ref:       rec.Ref.String(),
		HashLock:  rec.Datum.Hash.String(),
		Receiver:  hexutil.Encode(rec.Datum.Receiver),
		Timelock:  rec.Datum.Timelock,
		IsDeposit: rec.Datum.IsDeposit,
		Locker:    hexutil.Encode(rec.Locker),
		Status:    string(rec.Status),
		LockedAt:  rec.LockedAt,
		SpentAt:   rec.SpentAt,
		Action:    string(rec.Action),
	}
}

func decodeDatumRedeemer(datumHex, redeemerHex string) (htlc.Datum, htlc.Redeemer, error) {
	raw, err := order.DecodeField("datum", datumHex, true)
	if err != nil {
		return htlc.Datum{}, htlc.Redeemer{}, err
	}
	d, err := htlc.DecodeDatum(raw)
	if err != nil {
		return htlc.Datum{}, htlc.Redeemer{}, err
	}
	if redeemerHex == "" {
		return d, htlc.Redeemer{}, nil
	}
	raw, err = order.DecodeField("redeemer", redeemerHex, false)
	if err != nil {
		return htlc.Datum{}, htlc.Redeemer{}, err
	}
	red, err := htlc.DecodeRedeemer(raw)
	if err != nil {
		return htlc.Datum{}, htlc.Redeemer{}, err
	}
	return d, red, nil
}

// ==============================
// Script handler
// ==============================

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	version := s.cfg.ScriptVersion
	if req.Version != "" {
		v, err := script.ParseVersion(req.Version)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid version", err.Error())
			return
		}
		version = v
	}
	network := s.cfg.Network
	if req.Network != "" {
		n, err := script.ParseNetwork(req.Network)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid network", err.Error())
			return
		}
		network = n
	}

	code, err := order.DecodeField("compiledCode", req.CompiledCode, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid compiled code", err.Error())
		return
	}
	h := script.Hash(version, code)
	addr, err := script.Address(h, network)
	if err != nil {
		respondError(w, http.StatusBadRequest, "address derivation failed", err.Error())
		return
	}
	respondJSON(w, ScriptInfo{Hash: h.String(), Address: addr, Version: version.String(), Network: string(network)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func pathBytes(w http.ResponseWriter, r *http.Request, name string) ([]byte, bool) {
	b, err := order.DecodeField(name, mux.Vars(r)[name], true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name, err.Error())
		return nil, false
	}
	return b, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, settlement.ErrOrderNotFound),
		errors.Is(err, settlement.ErrBatchNotFound),
		errors.Is(err, settlement.ErrLockNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrOrderExists),
		errors.Is(err, settlement.ErrLockExists),
		errors.Is(err, settlement.ErrDuplicateFill),
		errors.Is(err, settlement.ErrRetryExhausted),
		errors.Is(err, htlc.ErrAlreadySpent):
		return http.StatusConflict
	case errors.Is(err, htlc.ErrUnauthorized),
		errors.Is(err, settlement.ErrBadMakerSig):
		return http.StatusForbidden
	case errors.Is(err, order.ErrMalformedField),
		errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, order.ErrInvalidFill),
		errors.Is(err, order.ErrExpiredOrder),
		errors.Is(err, order.ErrIncompleteCapacity),
		errors.Is(err, htlc.ErrMalformedInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondCoordError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	respondError(w, status, http.StatusText(status), err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
