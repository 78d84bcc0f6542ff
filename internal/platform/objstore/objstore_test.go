package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Put(ctx, "media/reports/scan.pdf", strings.NewReader("pdf-bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	obj, r, err := s.Get("media/reports/scan.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.ContentType != "application/pdf" {
		t.Errorf("expected content type application/pdf, got %q", obj.ContentType)
	}
	if obj.ACL != ACLPrivate {
		t.Errorf("expected private ACL before SetACL, got %q", obj.ACL)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "pdf-bytes" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestMemoryStore_PutEmptyKey(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(context.Background(), "", strings.NewReader("x"), "")
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMemoryStore_SetACL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "k", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.SetACL(ctx, "k", ACLPublicRead); err != nil {
		t.Fatalf("SetACL: %v", err)
	}

	obj, _, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.ACL != ACLPublicRead {
		t.Errorf("expected public-read, got %q", obj.ACL)
	}
}

func TestMemoryStore_SetACLMissingObject(t *testing.T) {
	s := NewMemoryStore()
	err := s.SetACL(context.Background(), "missing", ACLPublicRead)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(ctx, "k", strings.NewReader("v1"), "")
	s.Put(ctx, "k", strings.NewReader("v2"), "")

	if s.Len() != 1 {
		t.Fatalf("expected 1 object, got %d", s.Len())
	}
	_, r, _ := s.Get("k")
	data, _ := io.ReadAll(r)
	if string(data) != "v2" {
		t.Errorf("expected v2, got %q", data)
	}
}
