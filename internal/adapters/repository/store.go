// Package repository persists the roster document.
package repository

import (
	"context"

	"github.com/okian/aura/internal/domain/model"
)

// Store provides whole-document read/write access to the roster.
type Store interface {
	// Load reads and decodes the full document.
	// Returns an error matching ErrLoad when it is missing or corrupt.
	Load(ctx context.Context) (*model.Document, error)

	// Save replaces the full document.
	// Returns an error matching ErrPersist when the write fails.
	Save(ctx context.Context, doc *model.Document) error
}

// Locker is implemented by stores that support single-writer locking.
type Locker interface {
	// Lock acquires the store for one cycle. The returned func releases it.
	// Returns ErrLocked when another writer holds it.
	Lock(ctx context.Context) (func() error, error)
}
