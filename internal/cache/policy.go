package cache

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Policies receive the live metadata map in Victim and must not modify it.

// clock hands out strictly increasing ticks
type clock struct {
	now atomic.Uint64
}

func (c *clock) tick() uint64 {
	return c.now.Add(1)
}

// LRU evicts the least recently used key. Metadata is the tick of the last insert or read.
type LRU[K comparable] struct {
	clock clock
}

// NewLRU creates a least-recently-used policy
func NewLRU[K comparable]() *LRU[K] {
	return &LRU[K]{}
}

func (p *LRU[K]) Created(K) uint64 { return p.clock.tick() }

func (p *LRU[K]) Accessed(K, uint64) uint64 { return p.clock.tick() }

func (p *LRU[K]) Victim(entries map[K]uint64) (K, bool) {
	var victim K
	found := false
	var oldest uint64
	for k, tick := range entries {
		if !found || tick < oldest {
			victim, oldest, found = k, tick, true
		}
	}
	return victim, found
}

// FIFO evicts the oldest inserted key; reads do not change its metadata
type FIFO[K comparable] struct {
	clock clock
}

// NewFIFO creates a first-in-first-out policy
func NewFIFO[K comparable]() *FIFO[K] {
	return &FIFO[K]{}
}

func (p *FIFO[K]) Created(K) uint64 { return p.clock.tick() }

func (p *FIFO[K]) Accessed(_ K, meta uint64) uint64 { return meta }

func (p *FIFO[K]) Victim(entries map[K]uint64) (K, bool) {
	var victim K
	found := false
	var oldest uint64
	for k, tick := range entries {
		if !found || tick < oldest {
			victim, oldest, found = k, tick, true
		}
	}
	return victim, found
}

// Frequency is the LFU metadata
type Frequency struct {
	Hits uint64
	// Tick orders keys with equal hits, oldest first
	Tick uint64
}

// LFU evicts the least frequently read key, oldest first on ties
type LFU[K comparable] struct {
	clock clock
}

// NewLFU creates a least-frequently-used policy
func NewLFU[K comparable]() *LFU[K] {
	return &LFU[K]{}
}

func (p *LFU[K]) Created(K) Frequency { return Frequency{Tick: p.clock.tick()} }

func (p *LFU[K]) Accessed(_ K, meta Frequency) Frequency {
	return Frequency{Hits: meta.Hits + 1, Tick: p.clock.tick()}
}

func (p *LFU[K]) Victim(entries map[K]Frequency) (K, bool) {
	var victim K
	found := false
	var best Frequency
	for k, freq := range entries {
		if !found || freq.Hits < best.Hits || (freq.Hits == best.Hits && freq.Tick < best.Tick) {
			victim, best, found = k, freq, true
		}
	}
	return victim, found
}

// NewWithPolicyName creates a cache whose policy is chosen by name (lru, lfu or fifo)
func NewWithPolicyName[K comparable, V any](capacity int, name string, opts ...Option[K, V]) (*Cache[K, V], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lru":
		return New[K, V, uint64](capacity, NewLRU[K](), opts...)
	case "lfu":
		return New[K, V, Frequency](capacity, NewLFU[K](), opts...)
	case "fifo":
		return New[K, V, uint64](capacity, NewFIFO[K](), opts...)
	default:
		return nil, fmt.Errorf("unknown cache policy %q", name)
	}
}
