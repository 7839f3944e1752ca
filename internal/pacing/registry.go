package pacing

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// hostSlot carries the pacing state for one host. The slot mutex is the
// single point of mutation for the delay, which keeps concurrent updates
// linearizable without a global lock on the steady-state path.
type hostSlot struct {
	mu    sync.Mutex
	delay time.Duration
}

func (s *hostSlot) current() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// registry maps a canonical host key to its slot. Slots are created lazily on
// the first recorded outcome, seeded at the configured base delay, and are
// never removed during a run unless a tracked-host bound is configured, in
// which case the least-recently-updated host is evicted past the bound.
type registry struct {
	base time.Duration

	// Exactly one of slots/cache is active, chosen at construction.
	mu    sync.RWMutex
	slots map[string]*hostSlot
	cache *lru.Cache[string, *hostSlot]
}

func newRegistry(base time.Duration, maxHosts int) (*registry, error) {
	r := &registry{base: base}
	if maxHosts > 0 {
		cache, err := lru.New[string, *hostSlot](maxHosts)
		if err != nil {
			return nil, err
		}
		r.cache = cache
		return r, nil
	}
	r.slots = make(map[string]*hostSlot)
	return r, nil
}

// getOrCreate returns the slot for host, creating it at the base delay if the
// host has not been seen. Creation happens at most once per key: the
// insertion path is serialized by the registry mutex (or by the LRU cache's
// internal lock), while existing slots are returned without writing.
func (r *registry) getOrCreate(host string) *hostSlot {
	if r.cache != nil {
		if slot, ok := r.cache.Get(host); ok {
			return slot
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if slot, ok := r.cache.Get(host); ok {
			return slot
		}
		slot := &hostSlot{delay: r.base}
		r.cache.Add(host, slot)
		return slot
	}

	r.mu.RLock()
	slot, ok := r.slots[host]
	r.mu.RUnlock()
	if ok {
		return slot
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots[host]; ok {
		return slot
	}
	slot = &hostSlot{delay: r.base}
	r.slots[host] = slot
	return slot
}

// delay returns the current delay for host, or the base delay if the host is
// unknown. It never creates a slot.
func (r *registry) delay(host string) time.Duration {
	if r.cache != nil {
		if slot, ok := r.cache.Peek(host); ok {
			return slot.current()
		}
		return r.base
	}
	r.mu.RLock()
	slot, ok := r.slots[host]
	r.mu.RUnlock()
	if !ok {
		return r.base
	}
	return slot.current()
}

// len reports the number of tracked hosts.
func (r *registry) len() int {
	if r.cache != nil {
		return r.cache.Len()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// snapshot copies the current per-host delays for observability endpoints.
func (r *registry) snapshot() map[string]time.Duration {
	if r.cache != nil {
		keys := r.cache.Keys()
		out := make(map[string]time.Duration, len(keys))
		for _, host := range keys {
			if slot, ok := r.cache.Peek(host); ok {
				out[host] = slot.current()
			}
		}
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]time.Duration, len(r.slots))
	for host, slot := range r.slots {
		out[host] = slot.current()
	}
	return out
}
