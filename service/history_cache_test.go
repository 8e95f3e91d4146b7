package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistoryCacheAddGet(t *testing.T) {
	cache := NewHistoryCache(time.Minute, 10)

	cache.Add("alice", "question")
	cache.Add("alice", "answer")
	cache.Add("bob", "other question")

	assert.Equal(t, []string{"question", "answer"}, cache.Get("alice"))
	assert.Equal(t, []string{"other question"}, cache.Get("bob"))
	assert.Nil(t, cache.Get("carol"))
}

func TestHistoryCacheSweepExpiry(t *testing.T) {
	cache := NewHistoryCache(time.Minute, 10)
	cache.Add("alice", "old message")

	cache.sweep(time.Now().Add(2 * time.Minute))

	assert.Nil(t, cache.Get("alice"))
}

func TestHistoryCacheSweepKeepsFresh(t *testing.T) {
	cache := NewHistoryCache(time.Hour, 10)
	cache.Add("alice", "fresh message")

	cache.sweep(time.Now().Add(time.Minute))

	assert.Equal(t, []string{"fresh message"}, cache.Get("alice"))
}

func TestHistoryCacheSweepTrimsToMaxSize(t *testing.T) {
	cache := NewHistoryCache(time.Hour, 3)
	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		cache.Add("alice", msg)
	}

	cache.sweep(time.Now())

	assert.Equal(t, []string{"three", "four", "five"}, cache.Get("alice"))
}

func TestHistoryCachePairs(t *testing.T) {
	cache := NewHistoryCache(time.Minute, 10)
	cache.Add("alice", "q1")
	cache.Add("alice", "a1")
	cache.Add("alice", "q2")

	assert.Equal(t, [][2]string{{"q1", "a1"}, {"q2", ""}}, cache.Pairs("alice"))
	assert.Nil(t, cache.Pairs("bob"))
}

func TestHistoryCacheSet(t *testing.T) {
	cache := NewHistoryCache(time.Minute, 10)
	cache.Add("alice", "stale")
	cache.Set("alice", []string{"q", "a"})

	assert.Equal(t, []string{"q", "a"}, cache.Get("alice"))
}

func TestHistoryCacheStopIdempotent(t *testing.T) {
	cache := NewHistoryCache(time.Minute, 10)
	cache.Start()
	cache.Stop()
	cache.Stop()
}
