// Package boltstore is an implementation of the pin and photo store
// using bbolt for storing data persistently
package boltstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

var (
	pinsBucket      = []byte("pins")
	photosBucket    = []byte("photos")
	imagesBucket    = []byte("images")
	pinPhotosBucket = []byte("pinPhotos")
	pinURLsBucket   = []byte("pinURLs")

	// Buckets lists the top-level buckets of the store
	Buckets = [][]byte{pinsBucket, photosBucket, imagesBucket, pinPhotosBucket, pinURLsBucket}
)

// BoltStore uses bbolt as the storage implementation to store pins and photos
type BoltStore struct {
	db *bolt.DB
}

// Open opens, or creates, the store in file name within basedir
func Open(basedir string, name string) (*BoltStore, error) {
	if err := os.MkdirAll(basedir, 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(basedir, name), 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	store, err := NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewBoltStore creates the buckets of the store in db if needed
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	for _, b := range Buckets {
		if err := createBucket(db, b); err != nil {
			return nil, err
		}
	}
	return &BoltStore{db: db}, nil
}

// NewReadOnlyStore wraps a database opened read-only, all buckets must
// already exist
func NewReadOnlyStore(db *bolt.DB) (*BoltStore, error) {
	err := db.View(func(tx *bolt.Tx) error {
		for _, b := range Buckets {
			if tx.Bucket(b) == nil {
				return failure.Newf(failure.Store, "boltstore.open", "missing bucket %s", b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func createBucket(db *bolt.DB, name []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

// DB gives access to the underlying database for other components
// sharing the same file
func (store *BoltStore) DB() *bolt.DB {
	return store.db
}

// Close closes this store
func (store *BoltStore) Close() error {
	return store.db.Close()
}

func (store *BoltStore) Update(ctx context.Context, fn func(library.Tx) error) error {
	if err := failure.FromContext(ctx, "store.update"); err != nil {
		return err
	}
	err := store.db.Update(func(btx *bolt.Tx) error {
		if err := fn(&tx{tx: btx}); err != nil {
			return err
		}
		// a caller gone while fn ran must not see its changes committed
		return failure.FromContext(ctx, "store.update")
	})
	return classify(ctx, "store.update", err)
}

func (store *BoltStore) View(ctx context.Context, fn func(library.Tx) error) error {
	if err := failure.FromContext(ctx, "store.view"); err != nil {
		return err
	}
	err := store.db.View(func(btx *bolt.Tx) error {
		return fn(&tx{tx: btx})
	})
	return classify(ctx, "store.view", err)
}

// BucketSizes returns the number of keys per top-level bucket
func (store *BoltStore) BucketSizes() (map[string]int, error) {
	sizes := make(map[string]int)
	err := store.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			sizes[string(name)] = b.Stats().KeyN
			return nil
		})
	})
	return sizes, err
}

func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *failure.Error
	if errors.As(err, &classified) {
		return err
	}
	logging.From(ctx).Named("boltstore").Error("Store operation failed", zap.String("op", op), zap.Error(err))
	return failure.Wrap(failure.Store, op, err)
}
