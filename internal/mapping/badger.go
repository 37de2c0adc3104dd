package mapping

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aprskalo1/UMS/internal/logging"
)

var badgerPrefix = []byte("map/")

type badgerValue struct {
	Key        string    `msgpack:"key"`
	InsertedAt time.Time `msgpack:"inserted_at"`
}

// BadgerStore keeps records under map/<big-endian ordinal id>.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures the Badger backend.
type BadgerOptions struct {
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// OpenBadger opens or creates the database directory.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("mapping badger dir is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{logger: logging.NewComponentLogger(opts.Logger, "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open mapping badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Name identifies the backend.
func (s *BadgerStore) Name() string { return "badger" }

// Initialize is a no-op; Badger needs no schema.
func (s *BadgerStore) Initialize(context.Context) error { return nil }

func badgerKey(ordinalID int64) []byte {
	key := make([]byte, len(badgerPrefix)+8)
	copy(key, badgerPrefix)
	binary.BigEndian.PutUint64(key[len(badgerPrefix):], uint64(ordinalID))
	return key
}

// Add upserts the record for ordinalID.
func (s *BadgerStore) Add(_ context.Context, ordinalID int64, key string, at time.Time) error {
	if err := validate(ordinalID, key); err != nil {
		return err
	}
	value, err := msgpack.Marshal(badgerValue{Key: key, InsertedAt: stamp(at)})
	if err != nil {
		return writeErr("badger", "encode", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(ordinalID), value)
	}); err != nil {
		return writeErr("badger", "add", err)
	}
	return nil
}

// Load iterates every record in key order.
func (s *BadgerStore) Load(context.Context) (map[int64]string, error) {
	out := make(map[int64]string)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = badgerPrefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			item := it.Item()
			rawKey := item.Key()
			if len(rawKey) != len(badgerPrefix)+8 {
				continue
			}
			id := int64(binary.BigEndian.Uint64(rawKey[len(badgerPrefix):]))
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var value badgerValue
			if err := msgpack.Unmarshal(raw, &value); err != nil {
				return fmt.Errorf("decode mapping %d: %w", id, err)
			}
			out[id] = value.Key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load badger mappings: %w", err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// badgerLogger routes badger's warnings and errors into slog and drops the
// info/debug chatter.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
