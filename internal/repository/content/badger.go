package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

// BadgerStore is an embedded persistent store. Entries expire after ttl when
// ttl is positive.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger logger.Logger
}

func NewBadgerStore(dir string, ttl time.Duration, l logger.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	l.Info("badger content store initialized", "dir", dir, "ttl", ttl)

	return &BadgerStore{db: db, ttl: ttl, logger: l}, nil
}

var _ Store = (*BadgerStore)(nil)

func (c *BadgerStore) Get(_ context.Context, k Key) (Value, bool, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		c.logger.Warn("badger content get failed", "key", k, "error", err)
		return nil, false, err
	}
	return out, true, nil
}

func (c *BadgerStore) Set(_ context.Context, k Key, v Value) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(k), v)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		c.logger.Warn("badger content set failed", "key", k, "error", err)
		return err
	}
	return nil
}

func (c *BadgerStore) Close() error {
	return c.db.Close()
}
