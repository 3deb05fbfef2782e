package api

// MarketInfo describes one settleable market.
type MarketInfo struct {
	Symbol               string `json:"symbol"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	Class                string `json:"class"`
	Status               string `json:"status"`
	PriceScale           int64  `json:"priceScale"`
	InitialMarginBps     int64  `json:"initialMarginBps"`
	MaintenanceMarginBps int64  `json:"maintenanceMarginBps"`
}

// AccountInfo is the public view of a margin account.
type AccountInfo struct {
	Address       string           `json:"address"`
	Nonce         uint64           `json:"nonce"`
	QuoteBalance  int64            `json:"quoteBalance"`
	TokenBalances map[string]int64 `json:"tokenBalances"`
	Positions     []PositionInfo   `json:"positions"`
	InitHealth    int64            `json:"initHealth"`
	MaintHealth   int64            `json:"maintHealth"`
}

type PositionInfo struct {
	Symbol     string `json:"symbol"`
	Size       int64  `json:"size"`
	EntryPrice int64  `json:"entryPrice"`
}

// BookInfo is the public view of a creator's order book.
type BookInfo struct {
	Creator   string     `json:"creator"`
	Address   string     `json:"address"`
	PerpLen   uint8      `json:"perpLen"`
	SpotLen   uint8      `json:"spotLen"`
	PerpSlots []SlotInfo `json:"perpSlots"`
	SpotSlots []SlotInfo `json:"spotSlots"`
}

// SlotInfo is one occupied slot; Uninitialized slots are omitted from
// responses but the Index field keeps the on-ledger position.
type SlotInfo struct {
	Index         int    `json:"index"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Market        string `json:"market"`
	Price         int64  `json:"price"`
	Size          int64  `json:"size"`
	Counterparty  string `json:"counterparty"`
	Expires       int64  `json:"expires"`
	CreatedAt     int64  `json:"createdAt"`
	LastChangedAt int64  `json:"lastChangedAt"`
}

// OraclePriceInfo is one cached mark price.
type OraclePriceInfo struct {
	Symbol string `json:"symbol"`
	Price  int64  `json:"price"`
}

// StateHashResponse carries the deterministic state digest.
type StateHashResponse struct {
	Seq  uint64 `json:"seq,omitempty"`
	Hash string `json:"hash"`
}

// ErrorResponse reports a failed request. Code carries the ledger error code
// when the failure came from instruction execution, zero otherwise.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    uint32 `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// FillUpdate is the websocket payload for a committed fill.
type FillUpdate struct {
	Type string      `json:"type"` // always "fill"
	Fill interface{} `json:"fill"`
}

// WSSubscribeRequest is the client → server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}
