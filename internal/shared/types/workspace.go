package types

import "time"

// WorkspaceType distinguishes the virtual personal workspace from
// remotely registered shared workspaces.
type WorkspaceType string

const (
	WorkspacePersonal WorkspaceType = "personal"
	WorkspaceShared   WorkspaceType = "shared"
)

// Workspace is a named data-isolation boundary. The personal workspace
// is virtual: its ID is nil and it is never persisted as a registry row.
type Workspace struct {
	ID             *string       `json:"id"`
	Name           string        `json:"name"`
	Type           WorkspaceType `json:"type"`
	DriveFolderRef string        `json:"drive_folder_ref,omitempty"`
	Role           string        `json:"role,omitempty"`
	LastAccessed   time.Time     `json:"last_accessed"`
}

// PersonalWorkspace returns the virtual personal workspace.
func PersonalWorkspace() *Workspace {
	return &Workspace{
		ID:   nil,
		Name: "Personal",
		Type: WorkspacePersonal,
	}
}

// StorageMode selects which storage adapter backs conversation data.
type StorageMode string

const (
	ModeFilesystem StorageMode = "filesystem"
	ModeLocalVault StorageMode = "local-vault"
	ModeCloud      StorageMode = "cloud"
)

// RequiresCloudIdentity reports whether the mode needs an authenticated
// cloud identity before workspace or mode switches are allowed.
func (m StorageMode) RequiresCloudIdentity() bool {
	return m == ModeCloud
}

// Valid reports whether the mode is one of the known storage modes.
func (m StorageMode) Valid() bool {
	switch m {
	case ModeFilesystem, ModeLocalVault, ModeCloud:
		return true
	}
	return false
}

// RegistryStats holds workspace registry statistics.
type RegistryStats struct {
	TotalWorkspaces int        `json:"total_workspaces"`
	ActiveID        *string    `json:"active_id"`
	Mode            string     `json:"mode"`
	LastSynced      *time.Time `json:"last_synced,omitempty"`
}
