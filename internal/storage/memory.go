package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data     []byte
	info     ObjectInfo
	mimeType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memoryObject{}, now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error) {
	normalized, err := CleanKey("", key)
	if err != nil {
		return ObjectInfo{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("read object body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return ObjectInfo{}, fmt.Errorf("object %q: read %d bytes, expected %d", normalized, len(data), size)
	}
	sum := md5.Sum(data)
	info := ObjectInfo{
		Key:          normalized,
		Size:         int64(len(data)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: m.now().UTC(),
	}
	m.mu.Lock()
	m.objects[normalized] = memoryObject{data: data, info: info, mimeType: opts.ContentType}
	m.mu.Unlock()
	return info, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	obj, err := m.lookup(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	return obj.info, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	normalized, err := CleanKey("", key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, normalized)
	m.mu.Unlock()
	return nil
}

// Keys lists stored keys in lexical order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) lookup(key string) (memoryObject, error) {
	normalized, err := CleanKey("", key)
	if err != nil {
		return memoryObject{}, err
	}
	m.mu.RLock()
	obj, ok := m.objects[normalized]
	m.mu.RUnlock()
	if !ok {
		return memoryObject{}, ErrObjectNotFound
	}
	return obj, nil
}
