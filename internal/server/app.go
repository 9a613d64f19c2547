package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/emrgen/notesync/internal/attachment"
	"github.com/emrgen/notesync/internal/audit"
	"github.com/emrgen/notesync/internal/blob"
	"github.com/emrgen/notesync/internal/cache"
	"github.com/emrgen/notesync/internal/compress"
	"github.com/emrgen/notesync/internal/config"
	"github.com/emrgen/notesync/internal/jobs"
	"github.com/emrgen/notesync/internal/plan"
	"github.com/emrgen/notesync/internal/reader"
	"github.com/emrgen/notesync/internal/revision"
	"github.com/emrgen/notesync/internal/service"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tags"
	"github.com/emrgen/notesync/internal/token"
	"github.com/emrgen/notesync/internal/worker"
	"github.com/sirupsen/logrus"
)

// App holds every component built from the configuration.
type App struct {
	Config      *config.Config
	Store       *store.GormStore
	Blobs       blob.Store
	Plans       plan.Provider
	Signer      *token.Signer
	Pool        *worker.Pool
	Revisions   *revision.Tracker
	Tags        *tags.Synchronizer
	Attachments *attachment.Manager
	Reader      *reader.Reader
	Toolkit     *audit.Toolkit
	Notes       *service.NoteService

	closers []func() error
}

// NewApp opens the database, blob store and cache and wires the services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.Store = store.NewGormStore(config.GetDb(cfg), store.WithTables(cfg.Tables()))
	if err := app.Store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	switch cfg.BlobBackend {
	case "s3":
		s3Store, err := blob.NewS3Store(ctx, cfg.AWSS3Region, cfg.S3BucketName)
		if err != nil {
			return nil, err
		}
		app.Blobs = s3Store
	default:
		badgerStore, err := blob.NewBadgerStore(badger.DefaultOptions(cfg.BlobPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		app.Blobs = badgerStore
		app.closers = append(app.closers, badgerStore.Close)
	}

	static := plan.NewStaticProvider(plan.DefaultPlans(), cfg.DefaultPlan)
	app.Plans = static
	var cached *plan.CachedProvider
	if cfg.RedisAddr != "" {
		redis := cache.NewRedis(cfg.RedisAddr)
		cached = plan.NewCachedProvider(static, redis, cfg.PlanCacheTTL())
		app.Plans = cached
		app.closers = append(app.closers, redis.Close)
	}

	assignments, err := cfg.Assignments()
	if err != nil {
		return nil, err
	}
	if err := plan.ApplyAssignments(ctx, static, cached, assignments); err != nil {
		return nil, err
	}

	codec, err := compress.ByName(cfg.RevisionCompression)
	if err != nil {
		return nil, err
	}

	app.Signer = token.NewSigner(cfg.SigningSecret, cfg.SignedURLTTL(), token.WithBaseURL(cfg.PublicBaseURL))
	if !app.Signer.Enabled() {
		logrus.Warn("SIGNING_SECRET is empty, signed attachment urls are disabled")
	}

	app.Pool = worker.NewPool("revision-prune", cfg.PruneWorkers, cfg.PruneWorkers*64)
	app.closers = append(app.closers, func() error {
		app.Pool.Shutdown()
		return nil
	})

	counter := tags.NewReadModifyWriteCounter(app.Store)
	app.Revisions = revision.NewTracker(app.Store, app.Plans, codec, app.Pool)
	app.Tags = tags.NewSynchronizer(app.Store, counter)
	app.Attachments = attachment.NewManager(app.Store, app.Blobs, app.Plans, app.Signer)
	app.Reader = reader.NewReader(app.Store, reader.WithChunkSize(cfg.PivotQueryChunk))
	app.Toolkit = audit.NewToolkit(app.Store, counter)
	app.Notes = service.NewNoteService(app.Store, app.Tags, app.Revisions, app.Attachments)

	return app, nil
}

// Executor schedules the reconciliation and retention jobs.
func (a *App) Executor() *jobs.TaskExecutor {
	return jobs.NewTaskExecutor([]jobs.CronJob{
		jobs.NewReconcileTask(a.Config.ReconcileSchedule, a.Toolkit),
		jobs.NewRetentionSweeper(a.Config.RetentionSchedule, a.Config.RetentionWindow(), a.Store, a.Revisions),
	})
}

// MaxUpload is the largest attachment any plan accepts.
func (a *App) MaxUpload() int64 {
	var largest int64
	for _, p := range plan.DefaultPlans() {
		largest = max(largest, p.AttachmentSizeBytes())
	}
	return largest
}

// Close releases the components in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
