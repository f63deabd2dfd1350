// Package storage keeps algorithm run reports and serialized ciphertexts,
// addressed by the blake3 hash of their content.
package storage

import (
	"context"
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
)

// Common errors.
var (
	ErrNotFound      = errors.New("object not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid object handle")
)

// Handle uniquely identifies a stored object.
type Handle string

// ComputeHandle returns the hex blake3 digest of data.
func ComputeHandle(data []byte) Handle {
	sum := blake3.Sum256(data)
	return Handle(hex.EncodeToString(sum[:]))
}

// Valid reports whether h has the shape of a handle.
func (h Handle) Valid() bool {
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// Storage defines the interface for object storage.
type Storage interface {
	// Store saves data and returns its handle.
	Store(ctx context.Context, data []byte) (Handle, error)
	// Load retrieves data by handle.
	Load(ctx context.Context, handle Handle) ([]byte, error)
	// Delete removes an object.
	Delete(ctx context.Context, handle Handle) error
	// Exists checks if an object exists.
	Exists(ctx context.Context, handle Handle) (bool, error)
	// Close closes the storage.
	Close() error
}

// StoreBinary marshals obj and stores it.
func StoreBinary(ctx context.Context, s Storage, obj encoding.BinaryMarshaler) (Handle, error) {
	data, err := obj.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return s.Store(ctx, data)
}

// LoadBinary loads the object at handle into obj.
func LoadBinary(ctx context.Context, s Storage, handle Handle, obj encoding.BinaryUnmarshaler) error {
	data, err := s.Load(ctx, handle)
	if err != nil {
		return err
	}
	if err := obj.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("unmarshal object: %w", err)
	}
	return nil
}

// MemoryStorage implements in-memory object storage.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[Handle][]byte
	capacity int64
	size     int64
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		data:     make(map[Handle][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStorage) Store(_ context.Context, data []byte) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := ComputeHandle(data)
	if _, exists := s.data[handle]; exists {
		return handle, nil // Dedup by content hash.
	}
	if s.size+int64(len(data)) > s.capacity {
		return "", ErrStorageFull
	}
	s.data[handle] = append([]byte(nil), data...)
	s.size += int64(len(data))
	return handle, nil
}

func (s *MemoryStorage) Load(_ context.Context, handle Handle) ([]byte, error) {
	if !handle.Valid() {
		return nil, ErrInvalidHandle
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[handle]
	if !exists {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Delete(_ context.Context, handle Handle) error {
	if !handle.Valid() {
		return ErrInvalidHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.data[handle]
	if !exists {
		return ErrNotFound
	}
	s.size -= int64(len(data))
	delete(s.data, handle)
	return nil
}

func (s *MemoryStorage) Exists(_ context.Context, handle Handle) (bool, error) {
	if !handle.Valid() {
		return false, ErrInvalidHandle
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[handle]
	return exists, nil
}

// Size returns the number of bytes held.
func (s *MemoryStorage) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil
	s.size = 0
	return nil
}

// FileStorage implements file-based object storage.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{baseDir: baseDir}, nil
}

// path shards by the first two hex characters.
func (s *FileStorage) path(handle Handle) (string, error) {
	if !handle.Valid() {
		return "", ErrInvalidHandle
	}
	h := string(handle)
	return filepath.Join(s.baseDir, h[:2], h), nil
}

func (s *FileStorage) Store(_ context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	path, err := s.path(handle)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return handle, nil // Already exists (dedup).
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write atomically via temp file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return handle, nil
}

func (s *FileStorage) Load(_ context.Context, handle Handle) ([]byte, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *FileStorage) Delete(_ context.Context, handle Handle) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(_ context.Context, handle Handle) (bool, error) {
	path, err := s.path(handle)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat file: %w", err)
}

func (s *FileStorage) Close() error {
	return nil
}
