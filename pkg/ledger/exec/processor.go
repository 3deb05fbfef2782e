// Package exec sequences signed instructions against the ledger. The
// processor is the host boundary the settlement core assumes: one instruction
// at a time, exclusive access to every record it touches, and all-or-nothing
// durability per instruction via a staged storage batch.
package exec

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/yeonho-jung/otcledger/params"
	"github.com/yeonho-jung/otcledger/pkg/ledger/account"
	"github.com/yeonho-jung/otcledger/pkg/ledger/lerr"
	"github.com/yeonho-jung/otcledger/pkg/ledger/market"
	"github.com/yeonho-jung/otcledger/pkg/ledger/oracle"
	"github.com/yeonho-jung/otcledger/pkg/ledger/otc"
	"github.com/yeonho-jung/otcledger/pkg/ledger/tx"
	"github.com/yeonho-jung/otcledger/pkg/storage"
	"github.com/yeonho-jung/otcledger/pkg/util"
)

// FillFeed receives every committed fill. The websocket hub implements this;
// tests use a slice collector.
type FillFeed interface {
	PublishFill(fill *otc.Fill)
}

// Receipt reports what one accepted instruction did.
type Receipt struct {
	Seq       uint64    `json:"seq"`
	Type      tx.Type   `json:"type"`
	SlotIndex int       `json:"slot_index,omitempty"` // CreateOrder only
	Fill      *otc.Fill `json:"fill,omitempty"`       // TakeOrder only
}

// Processor executes signed instructions one at a time. Every handler stages
// its writes into one storage batch and the batch commits only when the
// handler returns nil; a failed instruction leaves durable state untouched
// except for the sender's nonce, which advances on every signature-valid
// instruction.
type Processor struct {
	mu sync.Mutex

	store    *storage.Store
	registry *market.Registry
	oracle   *oracle.Cache
	clock    util.Clock
	verifier *tx.Verifier
	engine   *otc.Engine
	eval     *account.Evaluator
	cfg      params.Otc
	journal  storage.Journal
	feed     FillFeed
	log      *zap.Logger

	seq uint64
}

func NewProcessor(
	store *storage.Store,
	registry *market.Registry,
	orc *oracle.Cache,
	clock util.Clock,
	verifier *tx.Verifier,
	cfg params.Otc,
	journal storage.Journal,
	log *zap.Logger,
) (*Processor, error) {
	seq, err := store.LastSeq()
	if err != nil {
		return nil, err
	}
	eval := account.NewEvaluator(registry, orc)
	return &Processor{
		store:    store,
		registry: registry,
		oracle:   orc,
		clock:    clock,
		verifier: verifier,
		engine:   otc.NewEngine(registry, eval, cfg.SpotFeeBps, cfg.FeeCollector),
		eval:     eval,
		cfg:      cfg,
		journal:  journal,
		feed:     nil,
		log:      log,
		seq:      seq,
	}, nil
}

// SetFillFeed attaches a fill publisher. Call before serving traffic.
func (p *Processor) SetFillFeed(feed FillFeed) {
	p.feed = feed
}

// Apply authenticates and executes one instruction. Each instruction sees a
// single logical timestamp taken at entry.
func (p *Processor) Apply(s *tx.Signed) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now().Unix()

	if err := p.verifier.Verify(s); err != nil {
		p.log.Warn("instruction rejected: bad signature",
			zap.String("type", string(s.Type)),
			zap.String("sender", s.Sender.Hex()))
		return nil, err
	}

	sender, err := p.getOrCreateAccount(s.Sender)
	if err != nil {
		return nil, err
	}
	// Replay protection: the nonce must advance. It advances whether or not
	// execution then succeeds, so a failed instruction cannot be replayed
	// either.
	if err := lerr.Check(s.Nonce > sender.Nonce, lerr.InvalidSigner); err != nil {
		return nil, err
	}
	sender.Nonce = s.Nonce

	batch := p.store.NewBatch()
	defer batch.Close()

	receipt := &Receipt{Type: s.Type}
	err = p.dispatch(batch, s, sender, now, receipt)
	if err != nil {
		if nerr := p.commitNonce(sender); nerr != nil {
			p.log.Error("nonce commit failed", zap.Error(nerr))
		}
		p.log.Info("instruction failed",
			zap.String("type", string(s.Type)),
			zap.String("sender", s.Sender.Hex()),
			zap.Error(err))
		return nil, err
	}

	p.seq++
	receipt.Seq = p.seq
	if err := batch.PutSeq(p.seq); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	if line, jerr := json.Marshal(receipt); jerr == nil {
		p.journal.Append(string(line))
	}
	if receipt.Fill != nil && p.feed != nil {
		p.feed.PublishFill(receipt.Fill)
	}
	p.log.Info("instruction applied",
		zap.Uint64("seq", p.seq),
		zap.String("type", string(s.Type)),
		zap.String("sender", s.Sender.Hex()))
	return receipt, nil
}

func (p *Processor) dispatch(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount, now int64, receipt *Receipt) error {
	switch s.Type {
	case tx.TypeDeposit:
		return p.applyDeposit(batch, s, sender)
	case tx.TypeWithdraw:
		return p.applyWithdraw(batch, s, sender, now)
	case tx.TypeInitOrderBook:
		return p.applyInitOrderBook(batch, sender)
	case tx.TypeCreateOrder:
		return p.applyCreateOrder(batch, s, sender, now, receipt)
	case tx.TypeCancelOrder:
		return p.applyCancelOrder(batch, s, sender, now)
	case tx.TypeDeleteOrder:
		return p.applyDeleteOrder(batch, s, sender, now)
	case tx.TypeTakeOrder:
		return p.applyTakeOrder(batch, s, sender, now, receipt)
	}
	return lerr.Throw(lerr.InvalidParam)
}

func (p *Processor) applyDeposit(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount) error {
	var payload tx.DepositPayload
	if err := s.DecodePayload(&payload); err != nil {
		return err
	}
	if err := sender.Deposit(payload.Amount); err != nil {
		return err
	}
	return batch.PutAccount(sender)
}

func (p *Processor) applyWithdraw(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount, now int64) error {
	var payload tx.WithdrawPayload
	if err := s.DecodePayload(&payload); err != nil {
		return err
	}
	proposed := sender.Clone()
	if err := proposed.Withdraw(payload.Amount); err != nil {
		return err
	}
	// A withdrawal is new risk like any other: the remaining collateral must
	// still clear the initial-margin tier.
	health, err := p.eval.Health(proposed, account.TierInit, now)
	if err != nil {
		return err
	}
	if err := lerr.Check(health >= 0, lerr.InsufficientHealth); err != nil {
		return err
	}
	return batch.PutAccount(proposed)
}

func (p *Processor) applyInitOrderBook(batch *storage.Batch, sender *account.MarginAccount) error {
	addr, _ := otc.DeriveAddress(sender.Owner)
	existing, err := p.store.LoadBook(addr)
	if err != nil {
		return err
	}
	if err := lerr.Check(existing == nil, lerr.AlreadyInitialized); err != nil {
		return err
	}
	if err := batch.PutBook(otc.NewBook(sender.Owner)); err != nil {
		return err
	}
	return batch.PutAccount(sender)
}

func (p *Processor) applyCreateOrder(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount, now int64, receipt *Receipt) error {
	var payload tx.CreateOrderPayload
	if err := s.DecodePayload(&payload); err != nil {
		return err
	}
	class, err := classFromWire(payload.Class)
	if err != nil {
		return err
	}
	side, err := sideFromWire(payload.Side)
	if err != nil {
		return err
	}

	m, err := p.registry.Get(payload.Market)
	if err != nil {
		return lerr.Throw(lerr.InvalidMarket)
	}
	if err := lerr.Check(m.Class == class && m.Status == market.Active, lerr.InvalidMarket); err != nil {
		return err
	}

	book, err := p.loadBookOf(s.Sender)
	if err != nil {
		return err
	}
	idx, err := book.Create(class, payload.Market, side, payload.Price, payload.Size, payload.Counterparty, payload.Expires, now)
	if err != nil {
		return err
	}
	receipt.SlotIndex = idx

	if err := batch.PutBook(book); err != nil {
		return err
	}
	return batch.PutAccount(sender)
}

func (p *Processor) applyCancelOrder(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount, now int64) error {
	var payload tx.CancelOrderPayload
	if err := s.DecodePayload(&payload); err != nil {
		return err
	}
	class, err := classFromWire(payload.Class)
	if err != nil {
		return err
	}
	book, err := p.loadBookOf(s.Sender)
	if err != nil {
		return err
	}
	if err := book.Cancel(class, payload.SlotIndex, s.Sender, now); err != nil {
		return err
	}
	if err := batch.PutBook(book); err != nil {
		return err
	}
	return batch.PutAccount(sender)
}

func (p *Processor) applyDeleteOrder(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount, now int64) error {
	var payload tx.DeleteOrderPayload
	if err := s.DecodePayload(&payload); err != nil {
		return err
	}
	class, err := classFromWire(payload.Class)
	if err != nil {
		return err
	}
	book, err := p.loadBookOf(s.Sender)
	if err != nil {
		return err
	}
	if err := book.Delete(class, payload.SlotIndex, s.Sender, now, p.cfg.CancelDwell); err != nil {
		return err
	}
	if err := batch.PutBook(book); err != nil {
		return err
	}
	return batch.PutAccount(sender)
}

func (p *Processor) applyTakeOrder(batch *storage.Batch, s *tx.Signed, sender *account.MarginAccount, now int64, receipt *Receipt) error {
	var payload tx.TakeOrderPayload
	if err := s.DecodePayload(&payload); err != nil {
		return err
	}
	class, err := classFromWire(payload.Class)
	if err != nil {
		return err
	}

	book, err := p.loadBookOf(payload.Creator)
	if err != nil {
		return err
	}
	creator, err := p.store.LoadAccount(payload.Creator)
	if err != nil {
		return err
	}
	if err := lerr.Check(creator != nil, lerr.InvalidAccount); err != nil {
		return err
	}

	var feeAcct *account.MarginAccount
	if p.cfg.SpotFeeBps > 0 {
		feeAcct, err = p.getOrCreateAccount(p.cfg.FeeCollector)
		if err != nil {
			return err
		}
	}

	res, err := p.engine.Take(book, class, payload.SlotIndex, creator, sender, feeAcct, now)
	if err != nil {
		return err
	}
	receipt.Fill = res.Fill

	if err := batch.PutBook(book); err != nil {
		return err
	}
	if err := batch.PutAccount(res.Creator); err != nil {
		return err
	}
	if err := batch.PutAccount(res.Taker); err != nil {
		return err
	}
	if res.FeeCollector != nil {
		if err := batch.PutAccount(res.FeeCollector); err != nil {
			return err
		}
	}
	return batch.PutFill(res.Fill)
}

// loadBookOf resolves and loads a creator's book, failing InvalidAccount when
// it was never initialized.
func (p *Processor) loadBookOf(creator common.Address) (*otc.Book, error) {
	addr, _ := otc.DeriveAddress(creator)
	book, err := p.store.LoadBook(addr)
	if err != nil {
		return nil, err
	}
	if err := lerr.Check(book != nil, lerr.InvalidAccount); err != nil {
		return nil, err
	}
	return book, nil
}

func (p *Processor) getOrCreateAccount(addr common.Address) (*account.MarginAccount, error) {
	acc, err := p.store.LoadAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = account.NewMarginAccount(addr)
	}
	return acc, nil
}

// commitNonce persists only the sender's advanced nonce after a failed
// instruction, leaving everything else untouched.
func (p *Processor) commitNonce(sender *account.MarginAccount) error {
	batch := p.store.NewBatch()
	defer batch.Close()
	if err := batch.PutAccount(sender); err != nil {
		return err
	}
	return batch.Commit()
}

func classFromWire(c uint8) (market.Class, error) {
	switch c {
	case 0:
		return market.Perp, nil
	case 1:
		return market.Spot, nil
	}
	return 0, lerr.Throw(lerr.InvalidParam)
}

func sideFromWire(s uint8) (otc.Side, error) {
	switch s {
	case 0:
		return otc.Bid, nil
	case 1:
		return otc.Ask, nil
	}
	return 0, lerr.Throw(lerr.InvalidParam)
}
