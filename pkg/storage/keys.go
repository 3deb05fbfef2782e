package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema:
//
//	acc:<address>                   → MarginAccount (JSON)
//	book:<address>                  → Book (fixed-width binary, see codec.go)
//	fill:<market>:<time>:<fillID>   → Fill (JSON)
//	seq                             → last applied instruction sequence
const (
	prefixAccount = "acc:"
	prefixBook    = "book:"
	prefixFill    = "fill:"
)

// accountKey: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(prefixAccount + addr.Hex())
}

// bookKey: "book:{derived book address}"
func bookKey(addr common.Address) []byte {
	return []byte(prefixBook + addr.Hex())
}

// fillKey: "fill:{market}:{time}:{id}". Time is zero-padded to 20 digits so
// a prefix scan walks fills in chronological order.
func fillKey(market string, time int64, fillID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixFill, market, time, fillID))
}

// fillPrefix: "fill:{market}:"
func fillPrefix(market string) []byte {
	return []byte(prefixFill + market + ":")
}

func seqKey() []byte { return []byte("seq") }

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
