package exec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/otc"
	"github.com/yeonho-jung/otcledger/pkg/storage"
)

// StateHash computes a deterministic digest of the full ledger state.
//
// Components, in order:
//  1. last applied sequence number (8 bytes, big-endian)
//  2. every account in key order (address + canonical JSON; encoding/json
//     sorts map keys, so account bodies are deterministic)
//  3. every order book in key order (fixed-width binary encoding)
//
// Two nodes that applied the same instruction sequence produce the same hash.
func (p *Processor) StateHash() ([32]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], p.seq)
	h.Write(buf[:])

	err := p.store.ForEachAccount(func(acc *account.MarginAccount) error {
		h.Write(acc.Owner.Bytes())
		body, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		h.Write(body)
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}

	err = p.store.ForEachBook(func(b *otc.Book) error {
		body, err := storage.EncodeBook(b)
		if err != nil {
			return err
		}
		h.Write(body)
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(h.Sum(nil)), nil
}
