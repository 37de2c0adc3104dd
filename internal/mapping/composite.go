package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/logging"
)

// Composite fans writes out to several stores in order.
type Composite struct {
	stores []Store
	logger *slog.Logger
}

// NewComposite wraps stores; order decides write order and load precedence.
func NewComposite(logger *slog.Logger, stores ...Store) *Composite {
	return &Composite{stores: stores, logger: logging.NewComponentLogger(logger, "mapping")}
}

// Name identifies the backend.
func (c *Composite) Name() string { return "composite" }

// Stores returns the wrapped stores.
func (c *Composite) Stores() []Store { return c.stores }

// Initialize initializes each store, stopping at the first failure.
func (c *Composite) Initialize(ctx context.Context) error {
	for _, store := range c.stores {
		if err := store.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", store.Name(), err)
		}
	}
	return nil
}

// Add writes to each store in order and stops at the first failure. Stores
// already written keep the record.
func (c *Composite) Add(ctx context.Context, ordinalID int64, key string, at time.Time) error {
	at = stamp(at)
	for _, store := range c.stores {
		if err := store.Add(ctx, ordinalID, key, at); err != nil {
			return fmt.Errorf("add to %s: %w", store.Name(), err)
		}
	}
	return nil
}

// Load merges every store left to right; later stores override earlier ones.
// A store that fails to load is logged and skipped unless all of them fail.
func (c *Composite) Load(ctx context.Context) (map[int64]string, error) {
	merged := make(map[int64]string)
	var errs []error
	for _, store := range c.stores {
		records, err := store.Load(ctx)
		if err != nil {
			c.logger.Warn("mapping backend load failed; skipping",
				logging.String("backend", store.Name()),
				logging.Error(err),
				logging.String(logging.FieldEventType, "mapping_load_failed"),
				logging.String(logging.FieldErrorHint, "run 'embedder index verify' after fixing the backend"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
			continue
		}
		for id, key := range records {
			merged[id] = key
		}
	}
	if len(c.stores) > 0 && len(errs) == len(c.stores) {
		return nil, fmt.Errorf("load mappings: %w", errors.Join(errs...))
	}
	return merged, nil
}

// Close closes every store.
func (c *Composite) Close() error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", store.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Open builds the composite from cfg.Mapping.Backends. Stores are not yet
// initialized.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Composite, error) {
	stores := make([]Store, 0, len(cfg.Mapping.Backends))
	closeAll := func() {
		for _, store := range stores {
			_ = store.Close()
		}
	}
	for _, name := range cfg.Mapping.Backends {
		var (
			store Store
			err   error
		)
		switch name {
		case config.MappingCSV:
			store = NewCSV(cfg.Paths.MappingCSV)
		case config.MappingSQLite:
			store, err = OpenSQLite(cfg.Mapping.SQLitePath)
		case config.MappingPostgres:
			store, err = OpenPostgres(ctx, cfg.Mapping.DSN)
		case config.MappingBadger:
			store, err = OpenBadger(BadgerOptions{Dir: cfg.Mapping.BadgerDir, Logger: logger})
		default:
			err = fmt.Errorf("unknown mapping backend %q", name)
		}
		if err != nil {
			closeAll()
			return nil, err
		}
		stores = append(stores, store)
	}
	return NewComposite(logger, stores...), nil
}
