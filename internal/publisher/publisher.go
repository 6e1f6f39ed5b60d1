// Package publisher exposes the read-only snapshot view and trade
// tape of spec.md §4.6, simplified from the teacher's net/server.go
// ClientSession registry (a lock-guarded map of network connections)
// down to a lock-guarded slice of in-process callbacks, since network
// I/O is out of scope here.
package publisher

import (
	"sync"

	"lobsim/internal/book"
	"lobsim/internal/common"
)

// Snapshot is the read-only projection of spec.md §4.6: best bid/ask,
// spread, mid, depth, and the last trade, observable at any point
// between events.
type Snapshot struct {
	Symbol     string
	BestBid    common.Price
	HaveBid    bool
	BestAsk    common.Price
	HaveAsk    bool
	Spread     int64
	HaveSpread bool
	Mid        int64
	HaveMid    bool
	BidDepth   []book.DepthLevel
	AskDepth   []book.DepthLevel
	LastTrade  *common.Trade
}

// Publisher takes a snapshot of a live OrderBook and fans out trades
// to subscribers, grounded on the teacher's ClientSession registry
// pattern (sync.Mutex-guarded slice, mutated only through accessor
// methods).
type Publisher struct {
	b *book.OrderBook

	mu        sync.Mutex
	lastTrade *common.Trade
	tape      []common.Trade

	subsMu sync.Mutex
	subs   []func(common.Trade)
}

// New constructs a Publisher projecting b.
func New(b *book.OrderBook) *Publisher {
	return &Publisher{b: b}
}

// Subscribe registers fn to be invoked synchronously after every
// trade this Publisher records, in emission order (spec.md §4.6/§5).
func (p *Publisher) Subscribe(fn func(common.Trade)) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	p.subs = append(p.subs, fn)
}

// RecordTrade appends trade to the tape and notifies subscribers.
// Called by the dispatcher immediately after a matching.Result's
// trades are finalized.
func (p *Publisher) RecordTrade(trade common.Trade) {
	p.mu.Lock()
	p.tape = append(p.tape, trade)
	p.lastTrade = &trade
	p.mu.Unlock()

	p.subsMu.Lock()
	subs := append([]func(common.Trade){}, p.subs...)
	p.subsMu.Unlock()
	for _, fn := range subs {
		fn(trade)
	}
}

// Tape returns the append-only trade tape recorded so far. Callers
// must not mutate the returned slice.
func (p *Publisher) Tape() []common.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tape
}

// Snapshot returns the current read-only projection of the book,
// including up to depth price levels per side.
func (p *Publisher) Snapshot(depth int) Snapshot {
	snap := Snapshot{Symbol: p.b.Symbol}

	if bid, ok := p.b.BestBid(); ok {
		snap.BestBid, snap.HaveBid = bid, true
	}
	if ask, ok := p.b.BestAsk(); ok {
		snap.BestAsk, snap.HaveAsk = ask, true
	}
	if spread, ok := p.b.Spread(); ok {
		snap.Spread, snap.HaveSpread = spread, true
	}
	if mid, ok := p.b.Mid(); ok {
		snap.Mid, snap.HaveMid = mid, true
	}
	snap.BidDepth = p.b.BidDepth(depth)
	snap.AskDepth = p.b.AskDepth(depth)

	p.mu.Lock()
	snap.LastTrade = p.lastTrade
	p.mu.Unlock()

	return snap
}
