package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/yeonho-jung/otcledger/params"
	"github.com/yeonho-jung/otcledger/pkg/api"
	ledgercrypto "github.com/yeonho-jung/otcledger/pkg/crypto"
	"github.com/yeonho-jung/otcledger/pkg/ledger/exec"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
	"github.com/yeonho-jung/otcledger/pkg/ledger/oracle"
	"github.com/yeonho-jung/otcledger/pkg/ledger/tx"
	"github.com/yeonho-jung/otcledger/pkg/storage"
	"github.com/yeonho-jung/otcledger/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" loads .env from the current directory

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/otcd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.Node.DBPath), 0o755); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}
	store, err := storage.NewStore(cfg.Node.DBPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	// ---- Markets ----
	// Default listing: one perp and one spot pair. Operators extend via code
	// for now; a listing instruction is a possible follow-up.
	registry := market.NewRegistry()
	for _, mk := range defaultMarkets() {
		if err := registry.Register(mk); err != nil {
			logger.Fatal("register market", zap.String("symbol", mk.Symbol), zap.Error(err))
		}
	}

	orc := oracle.NewCache(cfg.Oracle.ValidWindow)
	clock := util.RealClock{}

	verifier := tx.NewVerifier(domainFromConfig(cfg.Domain))

	journalPath := os.Getenv("JOURNAL_FILE")
	var journal storage.Journal = storage.NewNopJournal()
	if journalPath != "" {
		fj, err := storage.NewFileJournal(journalPath)
		if err != nil {
			logger.Fatal("open journal", zap.Error(err))
		}
		defer fj.Close()
		journal = fj
	}

	proc, err := exec.NewProcessor(store, registry, orc, clock, verifier, cfg.Otc, journal, logger)
	if err != nil {
		logger.Fatal("init processor", zap.Error(err))
	}

	server := api.NewServer(proc, store, registry, orc, clock, logger)

	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	logger.Info("otcd started",
		zap.String("db", cfg.Node.DBPath),
		zap.String("api", cfg.Node.APIAddr),
		zap.Int64("cancel_dwell_sec", cfg.Otc.CancelDwell),
		zap.Int64("spot_fee_bps", cfg.Otc.SpotFeeBps),
		zap.Int("markets", registry.Count()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("otcd shutting down")
}

func defaultMarkets() []*market.Market {
	btcPerp, err := market.NewPerpWithDefaults("BTC-PERP", "BTC", "USDC")
	if err != nil {
		log.Fatalf("default market: %v", err)
	}
	btcSpot, err := market.NewSpotWithDefaults("BTC-USDC", "BTC", "USDC")
	if err != nil {
		log.Fatalf("default market: %v", err)
	}
	return []*market.Market{btcPerp, btcSpot}
}

func domainFromConfig(d params.Domain) ledgercrypto.EIP712Domain {
	return ledgercrypto.EIP712Domain{
		Name:    d.Name,
		Version: d.Version,
		ChainID: big.NewInt(d.ChainID),
	}
}
