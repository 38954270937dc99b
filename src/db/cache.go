package db

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// ReportCache holds computed report responses per user. Each user has a
// generation that InvalidateUser bumps; an entry is only served while its
// generation is current, so a report computed before a write can never be
// served after it, whatever order its Set lands in.
type ReportCache struct {
	cache *ristretto.Cache

	mu          sync.Mutex
	generations map[int64]uint64
	keys        map[int64]map[string]struct{}
}

type reportEntry struct {
	userID     int64
	generation uint64
	key        string
	value      interface{}
}

func NewReportCache(maxCost int64) (*ReportCache, error) {
	c := &ReportCache{
		generations: make(map[int64]uint64),
		keys:        make(map[int64]map[string]struct{}),
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10, // number of keys to track frequency of
		MaxCost:     maxCost,
		BufferItems: 64, // number of keys per Get buffer
		// every report costs 1, MaxCost is a number of entries
		IgnoreInternalCost: true,
		OnEvict:            c.forget,
		OnReject:           c.forget,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize report cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// ReportKey builds the cache key for one report request of a user.
func ReportKey(userID int64, report string, params ...any) string {
	return fmt.Sprintf("report:%d:%s:%v", userID, report, params)
}

// Generation returns the current generation of userID. Read it before
// computing a report and hand it to Set.
func (c *ReportCache) Generation(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

func (c *ReportCache) Get(userID int64, key string) (interface{}, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry, ok := v.(reportEntry)
	if !ok || entry.userID != userID || entry.generation != c.Generation(userID) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key and waits for the write to become visible. A
// value computed under an older generation is dropped.
func (c *ReportCache) Set(userID int64, generation uint64, key string, value interface{}) {
	c.mu.Lock()
	if c.generations[userID] != generation {
		c.mu.Unlock()
		return
	}
	if c.keys[userID] == nil {
		c.keys[userID] = make(map[string]struct{})
	}
	c.keys[userID][key] = struct{}{}
	c.mu.Unlock()

	entry := reportEntry{userID: userID, generation: generation, key: key, value: value}
	if !c.cache.Set(key, entry, 1) {
		// dropped by a full set buffer
		c.forget(&ristretto.Item{Value: entry})
		return
	}
	c.cache.Wait()
}

// InvalidateUser drops every cached report of userID.
func (c *ReportCache) InvalidateUser(userID int64) {
	c.mu.Lock()
	c.generations[userID]++
	keys := c.keys[userID]
	delete(c.keys, userID)
	c.mu.Unlock()

	for key := range keys {
		c.cache.Del(key)
	}
}

// forget stops tracking a key ristretto evicted or refused to admit.
func (c *ReportCache) forget(item *ristretto.Item) {
	entry, ok := item.Value.(reportEntry)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if keys := c.keys[entry.userID]; keys != nil {
		delete(keys, entry.key)
		if len(keys) == 0 {
			delete(c.keys, entry.userID)
		}
	}
}

func (c *ReportCache) Close() {
	c.cache.Close()
}
