package uploader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/eclinic/eclinic/internal/platform/objstore"
)

func newTestUploader(t *testing.T, cfg Config, store objstore.ObjectStore) (*Uploader, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	u := New(cfg, store, zerolog.Nop(), metrics)
	return u, metrics
}

func writeMediaFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func staticResolver(relPath string) PathResolver {
	return func(ctx context.Context, entityID string) (string, error) {
		return relPath, nil
	}
}

func TestDo_UploadsAndSetsPublicACL(t *testing.T) {
	root := t.TempDir()
	writeMediaFile(t, root, "medical_records/2026/scan.pdf", "pdf-bytes")

	store := objstore.NewMemoryStore()
	u, _ := newTestUploader(t, Config{
		Enabled:        true,
		MediaRoot:      root,
		LocationPrefix: "media",
	}, store)
	u.RegisterKind("medical_record", staticResolver("medical_records/2026/scan.pdf"))

	outcome := u.Do(context.Background(), "medical_record", "r1", OriginSync)
	if outcome != OutcomeUploaded {
		t.Fatalf("expected uploaded, got %s", outcome)
	}

	obj, r, err := store.Get("media/medical_records/2026/scan.pdf")
	if err != nil {
		t.Fatalf("object not stored under prefixed key: %v", err)
	}
	if obj.ACL != objstore.ACLPublicRead {
		t.Errorf("expected public-read ACL, got %q", obj.ACL)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "pdf-bytes" {
		t.Errorf("unexpected object content %q", data)
	}
}

func TestTrigger_DisabledIsNoOp(t *testing.T) {
	store := objstore.NewMemoryStore()
	u, metrics := newTestUploader(t, Config{Enabled: false, MediaRoot: t.TempDir()}, store)
	u.RegisterKind("medical_record", staticResolver("x.pdf"))

	u.Trigger(context.Background(), "medical_record", "r1")

	if store.Len() != 0 {
		t.Errorf("expected no uploads while disabled, found %d", store.Len())
	}
	if got := testutil.CollectAndCount(metrics.Uploads); got != 0 {
		t.Errorf("expected no upload metrics, got %d series", got)
	}
}

func TestTrigger_SyncAndAsyncBothUpload(t *testing.T) {
	root := t.TempDir()
	writeMediaFile(t, root, "docs/report.pdf", "x")

	store := objstore.NewMemoryStore()
	u, metrics := newTestUploader(t, Config{
		Enabled:   true,
		MediaRoot: root,
		Workers:   1,
		QueueSize: 4,
	}, store)
	u.RegisterKind("patient_document", staticResolver("docs/report.pdf"))

	u.Start()
	u.Trigger(context.Background(), "patient_document", "d1")
	u.Stop()

	syncCount := testutil.ToFloat64(metrics.Uploads.WithLabelValues(
		"patient_document", string(OriginSync), string(OutcomeUploaded)))
	asyncCount := testutil.ToFloat64(metrics.Uploads.WithLabelValues(
		"patient_document", string(OriginAsync), string(OutcomeUploaded)))

	if syncCount != 1 {
		t.Errorf("expected 1 sync upload, got %v", syncCount)
	}
	if asyncCount != 1 {
		t.Errorf("expected 1 async upload, got %v", asyncCount)
	}
}

func TestDo_EntityNotFound(t *testing.T) {
	store := objstore.NewMemoryStore()
	u, _ := newTestUploader(t, Config{Enabled: true, MediaRoot: t.TempDir()}, store)
	u.RegisterKind("medical_record", func(ctx context.Context, id string) (string, error) {
		return "", ErrEntityNotFound
	})

	outcome := u.Do(context.Background(), "medical_record", "gone", OriginAsync)
	if outcome != OutcomeNotFound {
		t.Errorf("expected entity_not_found, got %s", outcome)
	}
	if store.Len() != 0 {
		t.Error("expected no upload for missing entity")
	}
}

func TestDo_NoFileAttached(t *testing.T) {
	store := objstore.NewMemoryStore()
	u, _ := newTestUploader(t, Config{Enabled: true, MediaRoot: t.TempDir()}, store)
	u.RegisterKind("medical_record", staticResolver(""))

	outcome := u.Do(context.Background(), "medical_record", "r1", OriginSync)
	if outcome != OutcomeNoFile {
		t.Errorf("expected no_file, got %s", outcome)
	}
}

func TestDo_MissingLocalFile(t *testing.T) {
	store := objstore.NewMemoryStore()
	u, _ := newTestUploader(t, Config{Enabled: true, MediaRoot: t.TempDir()}, store)
	u.RegisterKind("medical_record", staticResolver("not/there.pdf"))

	outcome := u.Do(context.Background(), "medical_record", "r1", OriginSync)
	if outcome != OutcomeMissingLocal {
		t.Errorf("expected missing_local_file, got %s", outcome)
	}
}

type failingStore struct {
	putErr error
	aclErr error
	inner  *objstore.MemoryStore
}

func (f *failingStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.inner.Put(ctx, key, body, contentType)
}

func (f *failingStore) SetACL(ctx context.Context, key, acl string) error {
	if f.aclErr != nil {
		return f.aclErr
	}
	return f.inner.SetACL(ctx, key, acl)
}

func TestDo_PutFailure(t *testing.T) {
	root := t.TempDir()
	writeMediaFile(t, root, "a.pdf", "x")

	store := &failingStore{putErr: errors.New("connection refused"), inner: objstore.NewMemoryStore()}
	u, _ := newTestUploader(t, Config{Enabled: true, MediaRoot: root}, store)
	u.RegisterKind("medical_record", staticResolver("a.pdf"))

	outcome := u.Do(context.Background(), "medical_record", "r1", OriginSync)
	if outcome != OutcomeFailed {
		t.Errorf("expected failed, got %s", outcome)
	}
}

func TestDo_ACLFailure(t *testing.T) {
	root := t.TempDir()
	writeMediaFile(t, root, "a.pdf", "x")

	store := &failingStore{aclErr: errors.New("access denied"), inner: objstore.NewMemoryStore()}
	u, _ := newTestUploader(t, Config{Enabled: true, MediaRoot: root}, store)
	u.RegisterKind("medical_record", staticResolver("a.pdf"))

	outcome := u.Do(context.Background(), "medical_record", "r1", OriginSync)
	if outcome != OutcomeFailed {
		t.Errorf("expected failed, got %s", outcome)
	}
}

func TestDo_UnregisteredKind(t *testing.T) {
	u, _ := newTestUploader(t, Config{Enabled: true, MediaRoot: t.TempDir()}, objstore.NewMemoryStore())
	outcome := u.Do(context.Background(), "unknown", "r1", OriginSync)
	if outcome != OutcomeFailed {
		t.Errorf("expected failed, got %s", outcome)
	}
}

func TestTrigger_FullQueueDropsAsyncRepeat(t *testing.T) {
	root := t.TempDir()
	writeMediaFile(t, root, "a.pdf", "x")

	store := objstore.NewMemoryStore()
	u, metrics := newTestUploader(t, Config{
		Enabled:   true,
		MediaRoot: root,
		Workers:   1,
		QueueSize: 1,
	}, store)
	u.RegisterKind("medical_record", staticResolver("a.pdf"))

	// Workers never started, so the queue fills after one Trigger.
	u.Trigger(context.Background(), "medical_record", "r1")
	u.Trigger(context.Background(), "medical_record", "r2")

	if got := testutil.ToFloat64(metrics.Dropped); got != 1 {
		t.Errorf("expected 1 dropped repeat, got %v", got)
	}
}

func TestStop_WaitsForInFlightUploads(t *testing.T) {
	root := t.TempDir()
	writeMediaFile(t, root, "a.pdf", "x")

	store := objstore.NewMemoryStore()
	u, _ := newTestUploader(t, Config{
		Enabled:   true,
		MediaRoot: root,
		Workers:   2,
		QueueSize: 8,
		Timeout:   5 * time.Second,
	}, store)
	u.RegisterKind("medical_record", staticResolver("a.pdf"))

	u.Start()
	for i := 0; i < 5; i++ {
		u.Trigger(context.Background(), "medical_record", "r1")
	}
	u.Stop()

	if store.Len() != 1 {
		t.Errorf("expected the object stored, got %d objects", store.Len())
	}
}
