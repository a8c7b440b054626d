package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/observability"
)

// Syncer periodically mirrors the remote registry into the local catalog.
type Syncer struct {
	catalog *Catalog
	client  *Client
	log     *logrus.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
	onSync  func()
}

// SyncerOptions configures a Syncer. OnSync, when set, runs after every
// successful sync; the resolver's cache invalidation hooks in here.
type SyncerOptions struct {
	Catalog *Catalog
	Client  *Client
	Logger  *logrus.Logger
	Metrics *observability.Metrics
	OnSync  func()
}

// NewSyncer creates a syncer. Call Start to schedule it.
func NewSyncer(opts SyncerOptions) *Syncer {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Syncer{
		catalog: opts.Catalog,
		client:  opts.Client,
		log:     log,
		metrics: opts.Metrics,
		onSync:  opts.OnSync,
	}
}

// Start schedules syncs on the given cron expression (standard 5-field
// syntax, e.g. "*/30 * * * *").
func (s *Syncer) Start(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("syncer already started")
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.SyncNow(ctx); err != nil {
			s.log.WithError(err).Warn("scheduled catalog sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.log.WithField("schedule", schedule).Info("catalog syncer started")
	return nil
}

// Stop cancels the schedule and waits for a running sync to finish.
func (s *Syncer) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// SyncNow performs one full sync immediately.
func (s *Syncer) SyncNow(ctx context.Context) error {
	start := time.Now()

	manifests, err := s.client.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list registry catalog: %w", err)
	}

	var synced, failed int
	for _, m := range manifests {
		if err := s.catalog.UpsertPlugin(ctx, m); err != nil {
			failed++
			id := ""
			if m != nil {
				id = m.ID
			}
			s.log.WithError(err).WithField("plugin", id).Warn("failed to sync plugin")
			continue
		}
		synced++
	}

	if s.metrics != nil {
		if total, err := s.catalog.CountPlugins(ctx); err == nil {
			s.metrics.CatalogPlugins.Set(float64(total))
		}
	}
	if s.onSync != nil && synced > 0 {
		s.onSync()
	}

	s.log.WithFields(logrus.Fields{
		"synced":   synced,
		"failed":   failed,
		"duration": time.Since(start).String(),
	}).Info("catalog sync complete")

	if failed > 0 && synced == 0 {
		return fmt.Errorf("catalog sync failed for all %d plugins", failed)
	}
	return nil
}
