package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"badgecerts/badgecerts-backend/pkg/storage"
)

// KeySource lists the blob keys still referenced by templates
type KeySource interface {
	BackgroundKeys(ctx context.Context) ([]string, error)
}

// ReconcilerConfig configures the orphaned background cleanup
type ReconcilerConfig struct {
	Schedule    string
	Prefix      string
	GracePeriod time.Duration
}

// Reconciler deletes background blobs no template points at. Blobs younger
// than the grace period are kept, they may belong to a create in flight.
type Reconciler struct {
	cron    *cron.Cron
	keys    KeySource
	blobs   storage.BlobStore
	config  ReconcilerConfig
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.Mutex
	running bool
}

// NewReconciler creates a new reconciler
func NewReconciler(keys KeySource, blobs storage.BlobStore, config ReconcilerConfig, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cron:   cron.New(cron.WithSeconds()),
		keys:   keys,
		blobs:  blobs,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules the cleanup
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reconciler already running")
	}

	_, err := r.cron.AddFunc(r.config.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("Background reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconciler schedule %q: %w", r.config.Schedule, err)
	}

	r.logger.Info("Starting background reconciler", zap.String("schedule", r.config.Schedule))
	r.cron.Start()
	r.running = true
	return nil
}

// Stop stops the scheduler and waits for a running cleanup
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}

	r.logger.Info("Stopping background reconciler")
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.running = false
}

// RunOnce deletes every orphaned blob and returns the deleted keys
func (r *Reconciler) RunOnce(ctx context.Context) ([]string, error) {
	referenced, err := r.keys.BackgroundKeys(ctx)
	if err != nil {
		return nil, err
	}
	inUse := make(map[string]struct{}, len(referenced))
	for _, key := range referenced {
		inUse[key] = struct{}{}
	}

	objects, err := r.blobs.List(ctx, r.config.Prefix)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.config.GracePeriod)
	var deleted []string
	for _, obj := range objects {
		if _, ok := inUse[obj.Key]; ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := r.blobs.Delete(ctx, obj.Key); err != nil {
			r.logger.Warn("Failed to delete orphaned background", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		deleted = append(deleted, obj.Key)
	}

	r.logger.Info("Background reconciliation completed",
		zap.Int("blobs", len(objects)),
		zap.Int("referenced", len(referenced)),
		zap.Int("deleted", len(deleted)),
	)
	return deleted, nil
}
