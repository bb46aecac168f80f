package memory

import (
	"context"
	"sync"

	"github.com/lancao008/google-pay/iap"
)

// Host records the buy intents handed to it. Tests complete them through
// Service.Approve or Service.Decline and report back to the session.
type Host struct {
	mu      sync.Mutex
	intents map[int]*iap.BuyIntent
	err     error
}

func NewHost() *Host {
	return &Host{intents: map[int]*iap.BuyIntent{}}
}

// FailWith makes later handoffs fail with err.
func (h *Host) FailWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.err = err
}

func (h *Host) Authorize(_ context.Context, requestCode int, intent *iap.BuyIntent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err != nil {
		return h.err
	}
	h.intents[requestCode] = intent
	return nil
}

// Intent returns the buy intent handed off for requestCode, or nil.
func (h *Host) Intent(requestCode int) *iap.BuyIntent {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.intents[requestCode]
}
