package mapping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aprskalo1/UMS/internal/services"
)

// Store persists ordinal id to external key records.
type Store interface {
	Name() string
	Initialize(ctx context.Context) error
	// Add records key for ordinalID; a zero at means now.
	Add(ctx context.Context, ordinalID int64, key string, at time.Time) error
	Load(ctx context.Context) (map[int64]string, error)
	Close() error
}

// Record is one mapping row.
type Record struct {
	OrdinalID   int64
	ExternalKey string
	InsertedAt  time.Time
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

func writeErr(backend, op string, err error) error {
	return services.Wrap(services.ErrMappingWrite, "mapping", backend+" "+op, "", err)
}

func validate(ordinalID int64, key string) error {
	if ordinalID < 0 {
		return services.Wrap(services.ErrValidation, "mapping", "add", fmt.Sprintf("negative ordinal id %d", ordinalID), nil)
	}
	if key == "" {
		return services.Wrap(services.ErrValidation, "mapping", "add", "external key is empty", nil)
	}
	return nil
}

// Orphans compares a loaded mapping with an index of size n. Missing lists
// ordinal ids in [0, n) without a record; Dangling lists records at or beyond n.
func Orphans(records map[int64]string, n int) (missing, dangling []int64) {
	for id := int64(0); id < int64(n); id++ {
		if _, ok := records[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range records {
		if id < 0 || id >= int64(n) {
			dangling = append(dangling, id)
		}
	}
	sort.Slice(dangling, func(i, j int) bool { return dangling[i] < dangling[j] })
	return missing, dangling
}
