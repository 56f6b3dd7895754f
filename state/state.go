// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sergeysmolkin-grodt/SilverBullet/risk"
)

// Store is what the orchestrator needs from the persistence layer; the
// interface keeps it decoupled from the file implementation for tests.
type Store interface {
	// Daily returns the persisted daily counters.
	Daily() risk.Snapshot
	// SaveDaily replaces and persists the daily counters.
	SaveDaily(s risk.Snapshot) error
	// PendingLabel returns the label of the signal that was pending when
	// the process last saved, empty when none.
	PendingLabel() string
	// SavePendingLabel persists the currently pending signal label.
	SavePendingLabel(label string) error
}

// AppState is the top-level structure persisted to the state file.
type AppState struct {
	Daily        risk.Snapshot `json:"daily"`
	PendingLabel string        `json:"pending_label"`
}

// Manager is the file-backed Store implementation. Saves are atomic
// (tmp file + rename) so a crash never leaves a torn state file.
type Manager struct {
	mu       sync.Mutex
	filePath string
	state    AppState
}

// NewManager loads existing state or creates a fresh file.
func NewManager(filePath string) (*Manager, error) {
	m := &Manager{filePath: filePath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			if err := m.save(); err != nil {
				return nil, fmt.Errorf("failed to create initial state file: %w", err)
			}
			return m, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &m.state)
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(&m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp := m.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	return os.Rename(tmp, m.filePath)
}

func (m *Manager) Daily() risk.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Daily
}

func (m *Manager) SaveDaily(s risk.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Daily = s
	return m.save()
}

func (m *Manager) PendingLabel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.PendingLabel
}

func (m *Manager) SavePendingLabel(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PendingLabel = label
	return m.save()
}
