package walletlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vultisig/vultiwallet/internal/types"
)

type memoryHold struct {
	token  string
	expiry *time.Timer
}

// MemoryLocker is a process-local Locker for single instance deployments.
// Holds expire after execTTL like the Redis keys of RedisLocker.
type MemoryLocker struct {
	execTTL time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
	holds map[string]memoryHold
}

func NewMemoryLocker(execTTL time.Duration) *MemoryLocker {
	if execTTL <= 0 {
		execTTL = types.LockExecTime
	}
	return &MemoryLocker{
		execTTL: execTTL,
		slots:   make(map[string]chan struct{}),
		holds:   make(map[string]memoryHold),
	}
}

func (m *MemoryLocker) slot(walletID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[walletID]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[walletID] = s
	}
	return s
}

func (m *MemoryLocker) Acquire(ctx context.Context, walletID string, wait time.Duration) (string, error) {
	s := m.slot(walletID)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
	case <-timer.C:
		return "", types.ErrLockTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
	token := uuid.NewString()
	m.mu.Lock()
	m.holds[walletID] = memoryHold{
		token:  token,
		expiry: time.AfterFunc(m.execTTL, func() { _ = m.free(walletID, token) }),
	}
	m.mu.Unlock()
	return token, nil
}

func (m *MemoryLocker) Release(_ context.Context, walletID, token string) error {
	return m.free(walletID, token)
}

func (m *MemoryLocker) free(walletID, token string) error {
	m.mu.Lock()
	h, ok := m.holds[walletID]
	if !ok || h.token != token {
		m.mu.Unlock()
		return ErrNotHeld
	}
	h.expiry.Stop()
	delete(m.holds, walletID)
	s := m.slots[walletID]
	m.mu.Unlock()
	<-s
	return nil
}
