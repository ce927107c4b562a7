package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/types"
)

// metadataFileVersion guards against decoding an index written by an
// incompatible release.
const metadataFileVersion = 1

type metadataFile struct {
	Version int                                `msgpack:"version"`
	Items   map[string]types.CacheItemMetadata `msgpack:"items"`
}

// FileMetadataStore implements types.MetadataStore with a msgpack index
// persisted to a single file. Mutations are buffered in memory; Sync
// writes the index atomically via a temp file and rename.
type FileMetadataStore struct {
	mu    sync.Mutex
	path  string
	items map[string]types.CacheItemMetadata
	dirty bool
}

var _ types.MetadataStore = (*FileMetadataStore)(nil)

// NewFileMetadataStore opens or creates a metadata index at path
func NewFileMetadataStore(path string) (*FileMetadataStore, error) {
	if path == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "metadata path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageWrite, "failed to create metadata directory").
			WithContext("path", path).
			WithCause(err)
	}

	s := &FileMetadataStore{
		path:  path,
		items: make(map[string]types.CacheItemMetadata),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageRead, "failed to read metadata index").
			WithContext("path", path).
			WithCause(err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var file metadataFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, errors.NewError(errors.ErrCodeMetadataCorrupt, "metadata index is not valid msgpack").
			WithContext("path", path).
			WithCause(err)
	}
	if file.Version != metadataFileVersion {
		return nil, errors.NewError(errors.ErrCodeMetadataCorrupt,
			fmt.Sprintf("unsupported metadata index version %d", file.Version)).
			WithContext("path", path)
	}
	if file.Items != nil {
		s.items = file.Items
	}
	return s, nil
}

// Load returns a snapshot of all tracked item metadata
func (s *FileMetadataStore) Load(ctx context.Context) (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(types.Snapshot, 0, len(s.items))
	for _, meta := range s.items {
		snapshot = append(snapshot, meta)
	}
	return snapshot, nil
}

// Get returns metadata for one key
func (s *FileMetadataStore) Get(ctx context.Context, key string) (types.CacheItemMetadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.items[key]
	return meta, ok, nil
}

// Put records or replaces metadata for one item
func (s *FileMetadataStore) Put(ctx context.Context, meta types.CacheItemMetadata) error {
	if meta.Key == "" {
		return errors.NewError(errors.ErrCodeValidationFailed, "metadata key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[meta.Key] = meta
	s.dirty = true
	return nil
}

// Delete drops metadata for a key. Deleting an absent key is not an error.
func (s *FileMetadataStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		s.dirty = true
	}
	return nil
}

// Sync persists the index if it changed since the last write
func (s *FileMetadataStore) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	data, err := msgpack.Marshal(&metadataFile{
		Version: metadataFileVersion,
		Items:   s.items,
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "failed to encode metadata index").
			WithCause(err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "failed to write metadata index").
			WithContext("path", tmp).
			WithCause(err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, "failed to replace metadata index").
			WithContext("path", s.path).
			WithCause(err)
	}

	s.dirty = false
	return nil
}

// Close flushes pending changes
func (s *FileMetadataStore) Close(ctx context.Context) error {
	return s.Sync(ctx)
}

// Len returns the number of tracked items
func (s *FileMetadataStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
