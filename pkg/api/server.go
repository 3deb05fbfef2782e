// Package api serves the ledger over REST and WebSocket: read endpoints for
// markets, accounts, books and fills, one write endpoint that submits signed
// instructions to the processor, and a fill feed.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/exec"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
	"github.com/yeonho-jung/otcledger/pkg/ledger/oracle"
	"github.com/yeonho-jung/otcledger/pkg/ledger/otc"
	"github.com/yeonho-jung/otcledger/pkg/ledger/tx"
	"github.com/yeonho-jung/otcledger/pkg/storage"
	"github.com/yeonho-jung/otcledger/pkg/util"
)

type Server struct {
	proc     *exec.Processor
	store    *storage.Store
	registry *market.Registry
	oracle   *oracle.Cache
	eval     *account.Evaluator
	clock    util.Clock

	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(
	proc *exec.Processor,
	store *storage.Store,
	registry *market.Registry,
	orc *oracle.Cache,
	clock util.Clock,
	log *zap.Logger,
) *Server {
	s := &Server{
		proc:     proc,
		store:    store,
		registry: registry,
		oracle:   orc,
		eval:     account.NewEvaluator(registry, orc),
		clock:    clock,
		router:   mux.NewRouter(),
		hub:      NewHub(),
		log:      log,
	}
	s.setupRoutes()
	proc.SetFillFeed(s)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/fills", s.handleGetFills).Methods("GET")

	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/books/{creator}", s.handleGetBook).Methods("GET")

	api.HandleFunc("/oracle/prices", s.handleGetOraclePrices).Methods("GET")
	api.HandleFunc("/state/hash", s.handleGetStateHash).Methods("GET")

	api.HandleFunc("/instructions", s.handleSubmitInstruction).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// PublishFill implements exec.FillFeed: committed fills go out on the market
// channel and the firehose.
func (s *Server) PublishFill(fill *otc.Fill) {
	update := FillUpdate{Type: "fill", Fill: fill}
	s.hub.BroadcastToChannel("fills:"+fill.Market, update)
	s.hub.BroadcastToChannel("fills", update)
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.registry.List()
	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = marketInfo(m)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m, err := s.registry.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(m))
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	fills, err := s.store.LoadRecentFills(symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load fills", err.Error())
		return
	}
	if fills == nil {
		fills = []*otc.Fill{}
	}
	respondJSON(w, fills)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	addr := common.HexToAddress(addressStr)

	acc, err := s.store.LoadAccount(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load account", err.Error())
		return
	}
	if acc == nil {
		acc = account.NewMarginAccount(addr)
	}

	now := s.clock.Now().Unix()
	// Health is best-effort here: a stale oracle makes it unavailable, not
	// the whole account view.
	initHealth, _ := s.eval.Health(acc, account.TierInit, now)
	maintHealth, _ := s.eval.Health(acc, account.TierMaint, now)

	positions := make([]PositionInfo, 0, len(acc.Positions))
	for _, pos := range acc.Positions {
		if pos.Size == 0 {
			continue
		}
		positions = append(positions, PositionInfo{
			Symbol:     pos.Symbol,
			Size:       pos.Size,
			EntryPrice: pos.EntryPrice,
		})
	}

	respondJSON(w, AccountInfo{
		Address:       addr.Hex(),
		Nonce:         acc.Nonce,
		QuoteBalance:  acc.QuoteBalance,
		TokenBalances: acc.TokenBalances,
		Positions:     positions,
		InitHealth:    initHealth,
		MaintHealth:   maintHealth,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	creatorStr := mux.Vars(r)["creator"]
	if !common.IsHexAddress(creatorStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	creator := common.HexToAddress(creatorStr)

	addr, _ := otc.DeriveAddress(creator)
	book, err := s.store.LoadBook(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load book", err.Error())
		return
	}
	if book == nil {
		respondError(w, http.StatusNotFound, "book not initialized", "")
		return
	}

	respondJSON(w, BookInfo{
		Creator:   book.Creator.Hex(),
		Address:   book.Address.Hex(),
		PerpLen:   book.PerpLen,
		SpotLen:   book.SpotLen,
		PerpSlots: slotInfos(&book.PerpOrders),
		SpotSlots: slotInfos(&book.SpotOrders),
	})
}

func (s *Server) handleGetOraclePrices(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now().Unix()
	symbols := s.oracle.Symbols()
	prices := make([]OraclePriceInfo, 0, len(symbols))
	for _, sym := range symbols {
		price, err := s.oracle.Price(sym, now)
		if err != nil {
			continue // stale entries are simply absent
		}
		prices = append(prices, OraclePriceInfo{Symbol: sym, Price: price})
	}
	respondJSON(w, prices)
}

func (s *Server) handleGetStateHash(w http.ResponseWriter, r *http.Request) {
	hash, err := s.proc.StateHash()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "state hash", err.Error())
		return
	}
	respondJSON(w, StateHashResponse{Hash: fmt.Sprintf("0x%x", hash[:])})
}

func (s *Server) handleSubmitInstruction(w http.ResponseWriter, r *http.Request) {
	var signed tx.Signed
	if err := json.NewDecoder(r.Body).Decode(&signed); err != nil {
		respondError(w, http.StatusBadRequest, "invalid instruction body", err.Error())
		return
	}

	receipt, err := s.proc.Apply(&signed)
	if err != nil {
		if code, ok := lerr.CodeOf(err); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error:   "instruction rejected",
				Code:    uint32(code),
				Message: err.Error(),
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "instruction failed", err.Error())
		return
	}
	respondJSON(w, receipt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		Symbol:               m.Symbol,
		BaseAsset:            m.BaseAsset,
		QuoteAsset:           m.QuoteAsset,
		Class:                m.Class.String(),
		Status:               m.Status.String(),
		PriceScale:           m.PriceScale,
		InitialMarginBps:     m.InitialMarginBps,
		MaintenanceMarginBps: m.MaintenanceMarginBps,
	}
}

func slotInfos(arena *[otc.SlotCapacity]otc.Order) []SlotInfo {
	out := make([]SlotInfo, 0)
	for i := range arena {
		ord := &arena[i]
		if ord.Status == otc.Uninitialized {
			continue
		}
		out = append(out, SlotInfo{
			Index:         i,
			Status:        ord.Status.String(),
			Side:          ord.Side.String(),
			Market:        ord.Market,
			Price:         ord.Price,
			Size:          ord.Size,
			Counterparty:  ord.Counterparty.Hex(),
			Expires:       ord.Expires,
			CreatedAt:     ord.CreatedAt,
			LastChangedAt: ord.LastChangedAt,
		})
	}
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
