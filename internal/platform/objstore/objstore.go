// Package objstore provides object storage for offloaded patient files.
// It defines the ObjectStore interface, an S3-compatible implementation
// backed by the AWS SDK (pointed at a custom endpoint such as DigitalOcean
// Spaces), and an in-memory implementation for testing and development.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrEmptyKey       = errors.New("object key is required")
)

// ACL values applied to uploaded objects.
const (
	ACLPublicRead = "public-read"
	ACLPrivate    = "private"
)

// Object is a stored object with its content and access control setting.
type Object struct {
	Key         string
	ContentType string
	ACL         string
	Size        int64
}

// ObjectStore uploads objects to a bucket. Put stores the object; SetACL
// adjusts its access control afterwards. The two are separate calls so
// that an upload can succeed even when the ACL change fails.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	SetACL(ctx context.Context, key, acl string) error
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore is an in-memory ObjectStore for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
}

type memObject struct {
	data        []byte
	contentType string
	acl         string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = &memObject{
		data:        data,
		contentType: contentType,
		acl:         ACLPrivate,
	}
	return nil
}

func (s *MemoryStore) SetACL(ctx context.Context, key, acl string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return ErrObjectNotFound
	}
	obj.acl = acl
	return nil
}

// Get returns the stored object. Test helper.
func (s *MemoryStore) Get(key string) (Object, io.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return Object{}, nil, ErrObjectNotFound
	}
	return Object{
		Key:         key,
		ContentType: obj.contentType,
		ACL:         obj.acl,
		Size:        int64(len(obj.data)),
	}, bytes.NewReader(obj.data), nil
}

// Len returns the number of stored objects. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
