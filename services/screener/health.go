package screener

import (
	"log"
	"sync"
	"time"
)

// storeHealth gates the precomputed evaluation path. After a store
// failure queries go straight to the on-demand path, except for a
// single probe query allowed once per probe interval so the engine
// can recover without a restart.
type storeHealth struct {
	mu            sync.Mutex
	available     bool
	lastProbe     time.Time
	probeInterval time.Duration
}

func newStoreHealth(probeInterval time.Duration) *storeHealth {
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	return &storeHealth{available: true, probeInterval: probeInterval}
}

// Usable reports whether the next query may hit the store. While the
// store is marked down it returns true once per probe interval.
func (h *storeHealth) Usable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.available {
		return true
	}
	if time.Since(h.lastProbe) >= h.probeInterval {
		h.lastProbe = time.Now()
		return true
	}
	return false
}

func (h *storeHealth) MarkDown(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.available {
		log.Printf("Screener store unavailable, switching to on-demand evaluation: %v", err)
	}
	h.available = false
	h.lastProbe = time.Now()
}

func (h *storeHealth) MarkUp() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available {
		log.Println("Screener store available again, resuming precomputed evaluation")
	}
	h.available = true
}
