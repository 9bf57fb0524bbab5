package hunts

import (
	"context"
	"log/slog"
)

// FallbackRepository serves hunts from the index store when it is healthy
// and transparently falls back to the canonical filesystem store when the
// index is missing or a query errors. Index errors are never surfaced to
// the caller; only a failed canonical read is.
type FallbackRepository struct {
	index     *IndexStore // nil when degraded
	canonical *FilesystemStore
	logger    *slog.Logger
}

var _ Repository = (*FallbackRepository)(nil)

// NewRepository opens the index at dbPath and wires the canonical store
// over the category directories. An unopenable index puts the repository
// in degraded mode for its whole lifetime; there is no re-probe.
func NewRepository(dbPath string, dirs []string, logger *slog.Logger) *FallbackRepository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FallbackRepository{
		canonical: NewFilesystemStore(dirs, logger),
		logger:    logger,
	}
	index, err := OpenIndexStore(dbPath)
	if err != nil {
		logger.Warn("index unavailable, serving from hunt files", "path", dbPath, "error", err)
		return r
	}
	logger.Debug("index open", "path", dbPath)
	r.index = index
	return r
}

// Degraded reports whether the repository is operating without an index.
func (r *FallbackRepository) Degraded() bool {
	return r.index == nil
}

// Invalidate drops the canonical store's cached scan. The index is
// rebuilt externally and needs no invalidation here.
func (r *FallbackRepository) Invalidate() {
	r.canonical.Invalidate()
}

// Close releases the index handle, if any.
func (r *FallbackRepository) Close() error {
	if r.index == nil {
		return nil
	}
	return r.index.Close()
}

// GetAll returns the full corpus.
func (r *FallbackRepository) GetAll(ctx context.Context) ([]Hunt, error) {
	if r.index != nil {
		hunts, err := r.index.GetAll(ctx)
		if err == nil {
			return hunts, nil
		}
		r.logger.Warn("index query failed, falling back to hunt files", "op", "GetAll", "error", err)
	}
	return r.canonical.GetAll(ctx)
}

// GetByID returns one hunt by identifier, or nil if absent.
func (r *FallbackRepository) GetByID(ctx context.Context, id string) (*Hunt, error) {
	if r.index != nil {
		h, err := r.index.GetByID(ctx, id)
		if err == nil {
			return h, nil
		}
		r.logger.Warn("index query failed, falling back to hunt files", "op", "GetByID", "id", id, "error", err)
	}
	return r.canonical.GetByID(ctx, id)
}

// GetByCategory returns hunts in a category.
func (r *FallbackRepository) GetByCategory(ctx context.Context, category string) ([]Hunt, error) {
	if r.index != nil {
		hunts, err := r.index.GetByCategory(ctx, category)
		if err == nil {
			return hunts, nil
		}
		r.logger.Warn("index query failed, falling back to hunt files", "op", "GetByCategory", "category", category, "error", err)
	}
	return r.canonical.GetByCategory(ctx, category)
}

// GetByTactic returns hunts matching a tactic.
func (r *FallbackRepository) GetByTactic(ctx context.Context, tactic string) ([]Hunt, error) {
	if r.index != nil {
		hunts, err := r.index.GetByTactic(ctx, tactic)
		if err == nil {
			return hunts, nil
		}
		r.logger.Warn("index query failed, falling back to hunt files", "op", "GetByTactic", "tactic", tactic, "error", err)
	}
	return r.canonical.GetByTactic(ctx, tactic)
}
