package genai

import "sync"

// Handle supplies the current generative client, or nil when no
// credential is configured. Endpoints fetch the client per request, so
// a config reload can swap it in without restarting the server.
type Handle struct {
	mu  sync.RWMutex
	gen Generator
}

// NewHandle creates a handle. gen may be nil for an unconfigured start.
func NewHandle(gen Generator) *Handle {
	return &Handle{gen: gen}
}

// Client returns the current generator, or nil when absent. Callers
// must check for nil and surface a configuration error rather than
// crash.
func (h *Handle) Client() Generator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gen
}

// Swap replaces the current generator.
func (h *Handle) Swap(gen Generator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen = gen
}
