// Package docstore provides the document term-vector backends the expansion
// service can read from. Export copies a built segment into one; Verify
// checks that a store belongs to the segment being served.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore/boltstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore/sqlstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/sqlite"
)

// Backend names where document vectors are read from at query time.
type Backend int

const (
	BackendSegment Backend = iota
	BackendPostgres
	BackendSQLite
	BackendBolt
)

func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "segment":
		return BackendSegment, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "sqlite":
		return BackendSQLite, nil
	case "bolt":
		return BackendBolt, nil
	default:
		return 0, fmt.Errorf("unknown document store backend %q", name)
	}
}

func (b Backend) String() string {
	switch b {
	case BackendSegment:
		return "segment"
	case BackendPostgres:
		return "postgres"
	case BackendSQLite:
		return "sqlite"
	case BackendBolt:
		return "bolt"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

type VectorReader interface {
	Vector(ctx context.Context, doc int) (index.DocVector, error)
}

type VectorWriter interface {
	Put(ctx context.Context, doc int, vec index.DocVector) error
}

// Fingerprinter records which segment a store's vectors came from.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
	SetFingerprint(ctx context.Context, fp string) error
}

// Store is a writable term-vector backend.
type Store interface {
	termdict.VectorSource
	VectorReader
	VectorWriter
	Fingerprinter
	Close() error
}

// Segment is the source side of Export; *segment.Reader satisfies it.
type Segment interface {
	VectorReader
	DocumentCount() int
	Fingerprint() string
}

var connectBackoff = resilience.Backoff{Attempts: 5, Initial: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}

// Open connects to the external backend selected by cfg.DocStore.Backend.
// The segment backend has no separate store and is rejected.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	backend, err := ParseBackend(cfg.DocStore.Backend)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendPostgres:
		var client *postgres.Client
		err := resilience.Retry(ctx, "postgres connect", connectBackoff, func(ctx context.Context) error {
			var err error
			client, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, err
		}
		s := sqlstore.New(client.DB, sqlstore.DialectPostgres)
		if err := s.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		client, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		s := sqlstore.New(client.DB, sqlstore.DialectSQLite)
		if err := s.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return s, nil
	case BackendBolt:
		return boltstore.Open(cfg.Bolt)
	default:
		return nil, fmt.Errorf("backend %s has no external store", backend)
	}
}

// Copy writes the vectors of documents [0, n) from src into dst.
func Copy(ctx context.Context, src VectorReader, n int, dst VectorWriter) error {
	logger := slog.Default().With("component", "docstore")
	for doc := 0; doc < n; doc++ {
		vec, err := src.Vector(ctx, doc)
		if err != nil {
			return fmt.Errorf("reading document %d: %w", doc, err)
		}
		if err := dst.Put(ctx, doc, vec); err != nil {
			return fmt.Errorf("writing document %d: %w", doc, err)
		}
		if (doc+1)%1000 == 0 {
			logger.Info("export progress", "documents", doc+1, "total", n)
		}
	}
	logger.Info("export complete", "documents", n)
	return nil
}

// Export copies every document of seg into dst and then stamps dst with the
// segment's fingerprint. The old stamp is cleared first, so an interrupted
// export never verifies against either segment.
func Export(ctx context.Context, seg Segment, dst Store) error {
	if err := dst.SetFingerprint(ctx, ""); err != nil {
		return err
	}
	if err := Copy(ctx, seg, seg.DocumentCount(), dst); err != nil {
		return err
	}
	return dst.SetFingerprint(ctx, seg.Fingerprint())
}

// Verify fails with ErrStoreMismatch unless store was exported from the
// segment with fingerprint fp.
func Verify(ctx context.Context, store Fingerprinter, fp string) error {
	got, err := store.Fingerprint(ctx)
	if err != nil {
		return err
	}
	switch {
	case got == "":
		return fmt.Errorf("no segment fingerprint recorded, re-export the index: %w", apperrors.ErrStoreMismatch)
	case got != fp:
		return fmt.Errorf("store exported from segment %s, index is %s: %w", got, fp, apperrors.ErrStoreMismatch)
	}
	return nil
}
