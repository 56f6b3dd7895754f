// account/manager.go
package account

import (
	"context"
	"sync"
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
)

// Manager caches the account equity so position sizing never blocks on a
// venue round-trip inside the tick handler. The monitor refreshes it on its
// own cadence.
type Manager struct {
	client  broker.Client
	mu      sync.RWMutex
	equity  float64
	updated time.Time
}

// NewManager creates an equity tracker seeded with an initial value.
func NewManager(client broker.Client, initial float64) *Manager {
	return &Manager{client: client, equity: initial, updated: time.Now()}
}

// Refresh pulls the latest equity from the venue. Failures keep the cached
// value; sizing on slightly stale equity beats halting the pipeline.
func (m *Manager) Refresh(ctx context.Context) {
	eq, err := m.client.GetEquity(ctx)
	if err != nil {
		logs.Warnf("[Account] Equity refresh failed, keeping cached %.2f: %v", m.Equity(), err)
		return
	}
	m.mu.Lock()
	m.equity = eq
	m.updated = time.Now()
	m.mu.Unlock()
}

// Equity returns the cached account equity.
func (m *Manager) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

// UpdatedAt returns when the cache was last refreshed.
func (m *Manager) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updated
}
