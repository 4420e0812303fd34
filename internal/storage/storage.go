package storage

import (
	"context"

	"vaultBridge/internal/model"
)

// Store persists bridge change sets and restores the full state.
type Store interface {
	Load(ctx context.Context) (*model.State, error)
	Apply(ctx context.Context, cs model.ChangeSet) error
}
