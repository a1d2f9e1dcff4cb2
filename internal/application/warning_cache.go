package application

import (
	"sync"
	"time"
)

// warningCache stores recently computed conflict reports to avoid repeated
// detector execution for identical ranges while schedules remain unchanged.
type warningCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]warningCacheEntry
}

type warningCacheEntry struct {
	report    ConflictReport
	expiresAt time.Time
}

func newWarningCache(ttl time.Duration, maxEntries int, now func() time.Time) *warningCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &warningCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]warningCacheEntry),
	}
}

func (c *warningCache) Get(key string) (ConflictReport, bool) {
	if c == nil {
		return ConflictReport{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return ConflictReport{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return ConflictReport{}, false
	}
	return cloneReport(entry.report), true
}

func (c *warningCache) Store(key string, report ConflictReport) {
	if c == nil {
		return
	}
	cloned := cloneReport(report)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = warningCacheEntry{report: cloned, expiresAt: expiry}
}

// Invalidate drops every cached report. Called on any schedule mutation.
func (c *warningCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]warningCacheEntry)
	c.mu.Unlock()
}

func (c *warningCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *warningCache) evictOneLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, entry := range c.entries {
		if !found || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

func cloneReport(report ConflictReport) ConflictReport {
	cloned := ConflictReport{}
	if report.Conflicts != nil {
		cloned.Conflicts = append(cloned.Conflicts, report.Conflicts...)
	}
	if report.ScheduleErrors != nil {
		cloned.ScheduleErrors = make(map[string]error, len(report.ScheduleErrors))
		for id, err := range report.ScheduleErrors {
			cloned.ScheduleErrors[id] = err
		}
	}
	return cloned
}
