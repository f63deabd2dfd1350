package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements persistent object storage on BadgerDB.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens or creates a BadgerDB at dir. An empty dir opens an
// in-memory database.
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	// Log files of 10MB, memtables of 5MB, values above 0.5MB go to the
	// value log.
	opt := badger.DefaultOptions(dir).
		WithValueLogFileSize(10 * (1 << 20)).
		WithMemTableSize(5 * (1 << 20)).
		WithValueThreshold(1 << 19)
	if dir == "" {
		opt = opt.WithInMemory(true)
	}
	opt.Logger = nil
	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

func (s *BadgerStorage) Store(_ context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(handle), data)
	})
	if err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}
	return handle, nil
}

func (s *BadgerStorage) Load(_ context.Context, handle Handle) ([]byte, error) {
	if !handle.Valid() {
		return nil, ErrInvalidHandle
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(handle))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load object: %w", err)
	}
	return data, nil
}

func (s *BadgerStorage) Delete(ctx context.Context, handle Handle) error {
	ok, err := s.Exists(ctx, handle)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(handle))
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *BadgerStorage) Exists(_ context.Context, handle Handle) (bool, error) {
	if !handle.Valid() {
		return false, ErrInvalidHandle
	}
	present := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(handle))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		present = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup object: %w", err)
	}
	return present, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}
