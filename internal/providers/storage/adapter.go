package storage

import (
	"context"
	"errors"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("object not found")

// Adapter abstracts a persistence backend for conversation data. The
// active adapter is selected by the workspace manager based on the
// configured storage mode; a nil workspace id targets the virtual
// personal workspace.
type Adapter interface {
	// Mode identifies the adapter variant.
	Mode() types.StorageMode

	// SwitchWorkspace retargets the adapter at the given workspace.
	SwitchWorkspace(ctx context.Context, id *string) error

	// Reinitialize prepares the adapter against its current workspace
	// location. Called after every workspace switch.
	Reinitialize(ctx context.Context) error

	// Read fetches an object from the active workspace.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores an object in the active workspace.
	Write(ctx context.Context, key string, data []byte) error
}
