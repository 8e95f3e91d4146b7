package service

import (
	"log"
	"sync"
	"time"
)

const defaultSweepInterval = 60 * time.Second

type historyEntry struct {
	payload   string
	expiresAt time.Time
}

// HistoryCache keeps a bounded, time-expiring message history per user.
// A background sweeper drops expired entries and trims each user to the most
// recent maxSize messages; one lock covers the whole cache, so readers never
// observe a half-pruned list.
type HistoryCache struct {
	mu      sync.Mutex
	entries map[string][]historyEntry

	ttl           time.Duration
	maxSize       int
	sweepInterval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

func NewHistoryCache(ttl time.Duration, maxSize int) *HistoryCache {
	if maxSize <= 0 {
		maxSize = 10
	}
	return &HistoryCache{
		entries:       make(map[string][]historyEntry),
		ttl:           ttl,
		maxSize:       maxSize,
		sweepInterval: defaultSweepInterval,
		done:          make(chan struct{}),
	}
}

// Start launches the expiry sweeper. Call Stop at shutdown.
func (c *HistoryCache) Start() {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.sweep(time.Now())
			}
		}
	}()
}

// Stop terminates the sweeper. Safe to call more than once.
func (c *HistoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// Add appends one message to the user's history.
func (c *HistoryCache) Add(user, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[user] = append(c.entries[user], historyEntry{
		payload:   payload,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Get returns the user's messages in insertion order, or nil when absent.
func (c *HistoryCache) Get(user string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.entries[user]
	if !ok {
		return nil
	}
	messages := make([]string, len(entries))
	for i, e := range entries {
		messages[i] = e.payload
	}
	return messages
}

// Pairs groups the user's alternating question/answer messages into pairs.
// A trailing unanswered question pairs with an empty answer.
func (c *HistoryCache) Pairs(user string) [][2]string {
	messages := c.Get(user)
	var pairs [][2]string
	for i := 0; i < len(messages); i += 2 {
		pair := [2]string{messages[i], ""}
		if i+1 < len(messages) {
			pair[1] = messages[i+1]
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

// Set replaces the user's history wholesale.
func (c *HistoryCache) Set(user string, payloads []string) {
	expiresAt := time.Now().Add(c.ttl)
	entries := make([]historyEntry, len(payloads))
	for i, p := range payloads {
		entries[i] = historyEntry{payload: p, expiresAt: expiresAt}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[user] = entries
}

func (c *HistoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pruned := 0
	for user, entries := range c.entries {
		kept := entries[:0]
		for _, e := range entries {
			if e.expiresAt.After(now) {
				kept = append(kept, e)
			}
		}
		if len(kept) > c.maxSize {
			kept = kept[len(kept)-c.maxSize:]
		}
		pruned += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(c.entries, user)
			continue
		}
		c.entries[user] = kept
	}
	if pruned > 0 {
		log.Printf("history cache: pruned %d expired messages", pruned)
	}
}
