package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

const prefsFile = "preferences.yaml"

// Preferences are the persisted user choices that survive a restart:
// the storage mode and the last active workspace.
type Preferences struct {
	Mode            types.StorageMode `yaml:"mode"`
	ActiveWorkspace *string           `yaml:"active_workspace,omitempty"`
}

// RestorePreferences loads the cached registry and the persisted
// preferences, reapplying the saved mode and workspace. Failures are
// downgraded to the filesystem/personal defaults rather than blocking
// startup: a stale preference must never prevent the app from booting.
func (m *Manager) RestorePreferences(ctx context.Context) {
	m.loadCache()

	prefs, err := m.loadPrefs()
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to load preferences, using defaults", zap.Error(err))
		}
		return
	}

	if prefs.Mode.Valid() {
		if err := m.SwitchMode(ctx, prefs.Mode); err != nil {
			m.logger.Warn("could not restore storage mode",
				zap.String("mode", string(prefs.Mode)),
				zap.Error(err),
			)
		}
	}

	if prefs.ActiveWorkspace != nil {
		if err := m.SwitchWorkspace(ctx, prefs.ActiveWorkspace); err != nil {
			m.logger.Warn("could not restore active workspace, staying on personal",
				zap.String("workspace", *prefs.ActiveWorkspace),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) loadPrefs() (*Preferences, error) {
	data, err := os.ReadFile(m.prefsPath())
	if err != nil {
		return nil, err
	}

	var prefs Preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// persistPrefs saves the current mode and active workspace. Best
// effort: a write failure costs only preference restoration.
func (m *Manager) persistPrefs() {
	m.mu.RLock()
	prefs := Preferences{Mode: m.mode}
	if m.activeID != nil {
		id := *m.activeID
		prefs.ActiveWorkspace = &id
	}
	m.mu.RUnlock()

	data, err := yaml.Marshal(&prefs)
	if err != nil {
		return
	}
	if err := os.MkdirAll(m.stateDir, 0o700); err != nil {
		m.logger.Warn("failed to create state dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(m.prefsPath(), data, 0o600); err != nil {
		m.logger.Warn("failed to persist preferences", zap.Error(err))
	}
}

func (m *Manager) prefsPath() string {
	return filepath.Join(m.stateDir, prefsFile)
}
