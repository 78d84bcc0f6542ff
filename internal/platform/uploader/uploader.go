// Package uploader offloads patient files from local disk to object
// storage. Every saved record or document with a file triggers one
// synchronous upload in the request path followed by an asynchronous
// repeat on a bounded worker pool. Upload failures are logged and
// counted but never surface to the caller; persistence of the entity
// must not depend on object storage being reachable.
package uploader

import (
	"context"
	"errors"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eclinic/eclinic/internal/platform/objstore"
)

// ErrEntityNotFound is returned by a PathResolver when the entity no
// longer exists by the time the upload runs.
var ErrEntityNotFound = errors.New("entity not found")

// Outcome classifies the result of one upload attempt.
type Outcome string

const (
	OutcomeUploaded     Outcome = "uploaded"
	OutcomeNotFound     Outcome = "entity_not_found"
	OutcomeNoFile       Outcome = "no_file"
	OutcomeMissingLocal Outcome = "missing_local_file"
	OutcomeFailed       Outcome = "failed"
)

// Origin tags where an upload attempt came from.
type Origin string

const (
	OriginSync     Origin = "sync"
	OriginAsync    Origin = "async"
	OriginBackfill Origin = "backfill"
)

// PathResolver re-reads the stored relative file path for an entity.
// It returns ErrEntityNotFound when the entity is gone and an empty
// string when the entity exists but has no file attached.
type PathResolver func(ctx context.Context, entityID string) (string, error)

// Config controls the uploader. Enabled gates all uploads; when false
// Trigger is a no-op. The flag is injected here rather than read from
// process globals so tests and environments can flip it per instance.
type Config struct {
	Enabled        bool
	MediaRoot      string
	LocationPrefix string
	Workers        int
	QueueSize      int
	Timeout        time.Duration
}

type task struct {
	kind     string
	entityID string
}

// Uploader performs the uploads. Register one PathResolver per entity
// kind, then Start the pool before serving traffic.
type Uploader struct {
	cfg       Config
	store     objstore.ObjectStore
	logger    zerolog.Logger
	metrics   *Metrics
	resolvers map[string]PathResolver

	tasks chan task
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(cfg Config, store objstore.ObjectStore, logger zerolog.Logger, metrics *Metrics) *Uploader {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.LocationPrefix == "" {
		cfg.LocationPrefix = "media"
	}

	return &Uploader{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		metrics:   metrics,
		resolvers: make(map[string]PathResolver),
		tasks:     make(chan task, cfg.QueueSize),
	}
}

// RegisterKind wires a resolver for an entity kind. Must be called
// before Start; the resolver map is not guarded after that.
func (u *Uploader) RegisterKind(kind string, resolve PathResolver) {
	u.resolvers[kind] = resolve
}

// Start launches the worker pool for async uploads.
func (u *Uploader) Start() {
	u.startOnce.Do(func() {
		for i := 0; i < u.cfg.Workers; i++ {
			u.wg.Add(1)
			go u.worker()
		}
	})
}

// Stop closes the queue and waits for in-flight uploads to finish.
func (u *Uploader) Stop() {
	u.stopOnce.Do(func() {
		close(u.tasks)
	})
	u.wg.Wait()
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for t := range u.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), u.cfg.Timeout)
		u.Do(ctx, t.kind, t.entityID, OriginAsync)
		cancel()
	}
}

// Trigger runs after an entity with a file is saved. It uploads once
// synchronously, then enqueues an async repeat so a transient failure in
// the request path still gets retried. Never returns an error; the
// caller's save must not fail because object storage is down.
func (u *Uploader) Trigger(ctx context.Context, kind, entityID string) {
	if !u.cfg.Enabled {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	u.Do(syncCtx, kind, entityID, OriginSync)
	cancel()

	select {
	case u.tasks <- task{kind: kind, entityID: entityID}:
	default:
		u.metrics.Dropped.Inc()
		u.logger.Warn().
			Str("kind", kind).
			Str("entity_id", entityID).
			Msg("upload queue full, async repeat dropped")
	}
}

// Do performs one upload attempt and returns its outcome. All failure
// modes are logged here with the origin tag; callers never propagate.
func (u *Uploader) Do(ctx context.Context, kind, entityID string, origin Origin) Outcome {
	outcome := u.do(ctx, kind, entityID, origin)
	u.metrics.Uploads.WithLabelValues(kind, string(origin), string(outcome)).Inc()
	return outcome
}

func (u *Uploader) do(ctx context.Context, kind, entityID string, origin Origin) Outcome {
	log := u.logger.With().
		Str("kind", kind).
		Str("entity_id", entityID).
		Str("origin", string(origin)).
		Logger()

	resolve, ok := u.resolvers[kind]
	if !ok {
		log.Error().Msg("no path resolver registered for kind")
		return OutcomeFailed
	}

	relPath, err := resolve(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			log.Error().Msg("entity vanished before upload")
			return OutcomeNotFound
		}
		log.Error().Err(err).Msg("resolving file path failed")
		return OutcomeFailed
	}

	if relPath == "" {
		// Entity saved without a file attached. Nothing to do.
		return OutcomeNoFile
	}

	localPath := filepath.Join(u.cfg.MediaRoot, filepath.FromSlash(relPath))
	f, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File never landed on this host's disk. Skip without noise;
			// the metric still counts it.
			return OutcomeMissingLocal
		}
		log.Error().Err(err).Str("path", relPath).Msg("opening local file failed")
		return OutcomeFailed
	}
	defer f.Close()

	key := path.Join(u.cfg.LocationPrefix, relPath)
	contentType := mime.TypeByExtension(filepath.Ext(relPath))

	if err := u.store.Put(ctx, key, f, contentType); err != nil {
		log.Error().Err(err).Str("key", key).Msg("object upload failed")
		return OutcomeFailed
	}

	if err := u.store.SetACL(ctx, key, objstore.ACLPublicRead); err != nil {
		log.Error().Err(err).Str("key", key).Msg("setting object acl failed")
		return OutcomeFailed
	}

	log.Info().Str("key", key).Msg("file uploaded")
	return OutcomeUploaded
}
