// Package jobs runs periodic maintenance: expired idempotency records, media
// files no message refers to any more, and idle per-user clients.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/repo"
)

// MediaCleaner removes stale media files, keeping referenced ones.
type MediaCleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time, keep map[string]struct{}) (int, error)
}

// IdleEvictor drops per-user state not used since cutoff.
type IdleEvictor interface {
	EvictIdle(cutoff time.Time) int
}

// Result summarizes one maintenance pass.
type Result struct {
	IdempotencyPurged int64
	MediaRemoved      int
	ClientsEvicted    int
}

// Janitor schedules RunOnce on a fixed interval.
type Janitor struct {
	db       *gorm.DB
	media    MediaCleaner
	mediaTTL time.Duration
	clients  IdleEvictor
	idleTTL  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	sched gocron.Scheduler
}

// NewJanitor returns a Janitor. media may be nil to skip file cleanup.
func NewJanitor(db *gorm.DB, media MediaCleaner, mediaTTL time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		db:       db,
		media:    media,
		mediaTTL: mediaTTL,
		log:      log.With().Str("component", "janitor").Logger(),
		now:      time.Now,
	}
}

// EvictIdleClients makes each pass drop clients idle for longer than ttl.
// A non-positive ttl disables eviction.
func (j *Janitor) EvictIdleClients(e IdleEvictor, ttl time.Duration) *Janitor {
	j.clients, j.idleTTL = e, ttl
	return j
}

// Start schedules the maintenance pass every interval. Runs never overlap.
func (j *Janitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("janitor interval must be positive")
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(schedulerLogger{j.log}),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := j.RunOnce(ctx); err != nil {
				j.log.Error().Err(err).Msg("maintenance pass failed")
			}
		}),
		gocron.WithName("maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	s.Start()
	j.sched = s
	j.log.Info().Dur("interval", interval).Msg("janitor started")
	return nil
}

// Stop waits for a running pass and stops the scheduler.
func (j *Janitor) Stop() error {
	if j.sched == nil {
		return nil
	}
	return j.sched.Shutdown()
}

// RunOnce purges expired idempotency records, media older than the TTL that
// no message references (when a cleaner is set) and idle clients (when an
// evictor is set).
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := j.now()

	n, err := repo.PurgeExpiredIdempotency(ctx, j.db, now)
	if err != nil {
		return res, fmt.Errorf("purge idempotency: %w", err)
	}
	res.IdempotencyPurged = n

	if j.media != nil && j.mediaTTL > 0 {
		refs, err := repo.ListMediaRefs(ctx, j.db)
		if err != nil {
			return res, fmt.Errorf("list media refs: %w", err)
		}
		keep := make(map[string]struct{}, len(refs))
		for _, r := range refs {
			keep[r] = struct{}{}
		}
		removed, err := j.media.Cleanup(ctx, now.Add(-j.mediaTTL), keep)
		res.MediaRemoved = removed
		if err != nil {
			return res, fmt.Errorf("media cleanup: %w", err)
		}
	}

	if j.clients != nil && j.idleTTL > 0 {
		res.ClientsEvicted = j.clients.EvictIdle(now.Add(-j.idleTTL))
	}

	j.log.Info().
		Int64("idempotency_purged", res.IdempotencyPurged).
		Int("media_removed", res.MediaRemoved).
		Int("clients_evicted", res.ClientsEvicted).
		Msg("maintenance pass done")
	return res, nil
}

// schedulerLogger adapts zerolog to gocron.Logger.
type schedulerLogger struct{ l zerolog.Logger }

func (s schedulerLogger) Debug(msg string, args ...any) { s.l.Debug().Fields(args).Msg(msg) }
func (s schedulerLogger) Info(msg string, args ...any)  { s.l.Info().Fields(args).Msg(msg) }
func (s schedulerLogger) Warn(msg string, args ...any)  { s.l.Warn().Fields(args).Msg(msg) }
func (s schedulerLogger) Error(msg string, args ...any) { s.l.Error().Fields(args).Msg(msg) }
