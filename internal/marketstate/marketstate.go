// Package marketstate holds the process-wide, sharded view of the most
// recent order book per (exchange, symbol). Writers are the owning
// connector only; readers take an immutable snapshot and never hold a
// lock while doing I/O.
package marketstate

import (
	"sync"
	"time"

	"github.com/cryptoarb/arbot/internal/types"
)

// Config controls the staleness policy applied at read time.
type Config struct {
	StaleThreshold time.Duration // default 30s
	MaxLatency     time.Duration // detector.max_latency_ms
}

func DefaultConfig() Config {
	return Config{
		StaleThreshold: 30 * time.Second,
		MaxLatency:     200 * time.Millisecond,
	}
}

type entry struct {
	top     types.TopOfBook
	book    *types.OrderBook
	version int64
}

const shardCount = 32

// State is the sharded, lock-striped market view. Each shard guards a
// disjoint subset of (exchange, symbol) keys so a write on one pair never
// blocks a read on another.
type State struct {
	cfg    Config
	shards [shardCount]*shard

	subsMu sync.Mutex
	subs   []chan ChangeEvent

	coldCache *ColdCache
}

// SetColdCache attaches a durable Redis mirror for dashboards and restart
// recovery. Optional: a nil cache leaves Publish untouched.
func (s *State) SetColdCache(cc *ColdCache) {
	s.coldCache = cc
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// ChangeEvent is published to subscribers whenever Publish updates a key.
type ChangeEvent struct {
	Exchange string
	Symbol   string
	Version  int64
}

// New builds an empty State.
func New(cfg Config) *State {
	s := &State{cfg: cfg}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

func key(exchange, symbol string) string {
	return exchange + "|" + symbol
}

func (s *State) shardFor(k string) *shard {
	h := fnv32(k)
	return s.shards[h%shardCount]
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Publish installs a new normalized OrderBook as the current state for its
// (exchange, symbol) key, bumping the version counter, and notifies
// subscribers. Only the owning connector should call this.
func (s *State) Publish(book *types.OrderBook) {
	k := key(book.Exchange, book.Symbol)
	sh := s.shardFor(k)

	sh.mu.Lock()
	e, ok := sh.entries[k]
	if !ok {
		e = &entry{}
		sh.entries[k] = e
	}
	e.book = book
	e.top = types.TopOfBookFrom(book)
	e.version++
	version := e.version
	top := e.top
	sh.mu.Unlock()

	s.coldCache.enqueue(top)
	s.notify(ChangeEvent{Exchange: book.Exchange, Symbol: book.Symbol, Version: version})
}

// Snapshot returns the most recent TopOfBook for (exchange, symbol), or
// false if absent or stale. Staleness is evaluated here, at read time, not
// at write time.
func (s *State) Snapshot(exchange, symbol string) (types.TopOfBook, bool) {
	k := key(exchange, symbol)
	sh := s.shardFor(k)

	sh.mu.RLock()
	e, ok := sh.entries[k]
	var top types.TopOfBook
	if ok {
		top = e.top
	}
	sh.mu.RUnlock()

	if !ok {
		return types.TopOfBook{}, false
	}
	if s.stale(top) {
		return types.TopOfBook{}, false
	}
	return top, true
}

// BookSnapshot returns a copy of the full depth for walking the book
// (used by the paper executor and slippage estimation). Absent or stale
// pairs return false.
func (s *State) BookSnapshot(exchange, symbol string) (types.OrderBook, bool) {
	k := key(exchange, symbol)
	sh := s.shardFor(k)

	sh.mu.RLock()
	e, ok := sh.entries[k]
	var book types.OrderBook
	if ok && e.book != nil {
		book = *e.book
		book.Bids = append([]types.PriceLevel(nil), e.book.Bids...)
		book.Asks = append([]types.PriceLevel(nil), e.book.Asks...)
	}
	sh.mu.RUnlock()

	if !ok || book.Asks == nil {
		return types.OrderBook{}, false
	}
	if s.stale(types.TopOfBookFrom(&book)) {
		return types.OrderBook{}, false
	}
	return book, true
}

func (s *State) stale(top types.TopOfBook) bool {
	now := time.Now()
	if now.Sub(top.EventTS) > s.cfg.StaleThreshold {
		return true
	}
	if now.Sub(top.IngressTS) > s.cfg.MaxLatency {
		return true
	}
	return false
}

// Subscribe returns a channel of change events. The channel is closed when
// ctx-like lifetime management is handled by the caller via Unsubscribe.
func (s *State) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()

	unsubscribe := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

func (s *State) notify(ev ChangeEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Backpressure policy: drop the oldest rather than block the
			// writer. Detectors re-derive state from Snapshot on their next
			// tick regardless of a missed notification.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
