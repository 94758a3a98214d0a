package bus

import (
	"context"
	"sync"

	"github.com/vultisig/vultiwallet/internal/types"
)

// Handler receives every notification sent on the bus.
type Handler func(n *types.Notification)

// Bus fans persisted notifications out to subscribers. Delivery is best
// effort; callers log send failures and move on.
type Bus interface {
	Send(ctx context.Context, n *types.Notification) error
	OnMessage(h Handler)
	Close() error
}

type handlers struct {
	mu   sync.RWMutex
	list []Handler
}

func (h *handlers) add(fn Handler) {
	h.mu.Lock()
	h.list = append(h.list, fn)
	h.mu.Unlock()
}

func (h *handlers) dispatch(n *types.Notification) {
	h.mu.RLock()
	list := append([]Handler(nil), h.list...)
	h.mu.RUnlock()
	for _, fn := range list {
		fn(n)
	}
}

// Local delivers notifications to in-process handlers synchronously.
type Local struct {
	handlers handlers
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Send(_ context.Context, n *types.Notification) error {
	l.handlers.dispatch(n)
	return nil
}

func (l *Local) OnMessage(h Handler) {
	l.handlers.add(h)
}

func (l *Local) Close() error {
	return nil
}
