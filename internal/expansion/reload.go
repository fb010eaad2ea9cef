package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
)

// OpenFunc opens a service over the index currently on disk.
type OpenFunc func(ctx context.Context) (*Service, error)

// Opener opens cfg's index each time it is called. When store is non-nil
// vectors are read from it, and it must carry the fingerprint of the segment
// just opened; otherwise the open fails with ErrStoreMismatch.
func Opener(cfg *config.Config, store docstore.Store, m *metrics.Metrics) OpenFunc {
	return func(ctx context.Context) (*Service, error) {
		ix, err := indexer.Open(cfg.Indexer)
		if err != nil {
			return nil, err
		}
		var source termdict.VectorSource
		if store != nil {
			if err := docstore.Verify(ctx, store, ix.Segment.Fingerprint()); err != nil {
				ix.Close()
				return nil, fmt.Errorf("opening index %s: %w", cfg.Indexer.BaseName, err)
			}
			source = store
		}
		svc, err := NewService(ix, source, cfg.Expansion)
		if err != nil {
			ix.Close()
			return nil, err
		}
		return svc.WithMetrics(m), nil
	}
}

// retireAfter is how long a replaced service stays open for requests that
// started before the swap.
const retireAfter = 30 * time.Second

// HandleIndexBuilt reloads the served index whenever an index-complete
// event for baseName arrives. The cache is invalidated after the swap.
// Events for other indices and failed reloads are logged and acknowledged.
func HandleIndexBuilt(baseName string, h *Handler, open OpenFunc) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-reloader", "base_name", baseName)
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexBuiltEvent](value)
		if err != nil {
			logger.Error("failed to decode index-built event", "error", err)
			return nil
		}
		if event.BaseName != baseName {
			logger.Debug("ignoring index-built event", "event_base_name", event.BaseName)
			return nil
		}
		next, err := open(ctx)
		if err != nil {
			logger.Error("reloading index failed, keeping current", "error", err)
			return nil
		}
		prev := h.Swap(next)
		if h.cache != nil {
			if _, err := h.cache.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation after reload failed", "error", err)
			}
		}
		logger.Info("index reloaded",
			"documents", event.Documents,
			"terms", event.Terms,
			"built_at", event.BuiltAt,
		)
		if prev != nil {
			time.AfterFunc(retireAfter, func() {
				if err := prev.Close(); err != nil {
					logger.Warn("closing replaced index failed", "error", err)
				}
			})
		}
		return nil
	}
}
