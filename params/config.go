package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Otc struct {
	// CancelDwell is the minimum logical time (seconds) an order must sit in
	// Cancelled before its slot may be deleted and reused. Must be > 0 so a
	// cancel and a delete can never land in the same instruction window.
	CancelDwell int64

	// SpotFeeBps is the taker fee on spot settlements, in basis points of the
	// quote notional. Credited to FeeCollector.
	SpotFeeBps   int64
	FeeCollector common.Address
}

type Oracle struct {
	// ValidWindow is how long (logical seconds) a cached oracle price stays
	// usable before settlement refuses it as stale.
	ValidWindow int64
}

// Domain scopes instruction signatures to one deployment so a signed payload
// cannot be replayed against another chain or program instance.
type Domain struct {
	Name    string
	Version string
	ChainID int64
}

type Node struct {
	DBPath  string
	APIAddr string
}

type Config struct {
	Otc    Otc
	Oracle Oracle
	Domain Domain
	Node   Node
}

func Default() Config {
	return Config{
		Otc: Otc{
			CancelDwell:  5,
			SpotFeeBps:   0,
			FeeCollector: common.Address{},
		},
		Oracle: Oracle{
			ValidWindow: 60,
		},
		Domain: Domain{
			Name:    "OtcLedger",
			Version: "1",
			ChainID: 1337,
		},
		Node: Node{
			DBPath:  "./data/ledger.db",
			APIAddr: ":8080",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("OTC_CANCEL_DWELL_SEC"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
			cfg.Otc.CancelDwell = sec
		}
	}

	if v := os.Getenv("OTC_SPOT_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil && bps >= 0 {
			cfg.Otc.SpotFeeBps = bps
		}
	}

	if v := os.Getenv("OTC_FEE_COLLECTOR"); v != "" {
		cfg.Otc.FeeCollector = common.HexToAddress(v)
	}

	if v := os.Getenv("ORACLE_VALID_WINDOW_SEC"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
			cfg.Oracle.ValidWindow = sec
		}
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Domain.ChainID = id
		}
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}

	return cfg
}
