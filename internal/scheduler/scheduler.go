package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketplace/internal/clock"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	hierarchydomain "github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	obsmetrics "github.com/smallbiznis/marketplace/internal/observability/metrics"
	"github.com/smallbiznis/marketplace/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const lockPrefix = "scheduler:lock:"

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	GenID        *snowflake.Node
	HierarchySvc hierarchydomain.Service
	Relay        eventdomain.Relay
	Locker       *ratelimit.Locker `optional:"true"`
	Config       Config            `optional:"true"`
}

// Scheduler runs the periodic invitation expiry sweep and outbox relay.
type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	hierarchySvc hierarchydomain.Service
	relay        eventdomain.Relay
	locker       *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.HierarchySvc == nil || p.Relay == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		hierarchySvc: p.HierarchySvc,
		relay:        p.Relay,
		locker:       p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A timed out batch is resumed on the next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// withLeaderLock runs fn only on the instance holding the job's lock. Without
// a Redis locker every instance runs the job; the row-level version checks
// keep that safe.
func (s *Scheduler) withLeaderLock(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	lease, err := s.locker.Acquire(ctx, lockPrefix+job, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", job, err)
	}
	if lease == nil {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("job lock held elsewhere", zap.String("job", job))
		return nil
	}
	defer func() {
		// The job context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}

type job struct {
	name string
	run  func(context.Context) error
}

// RunOnce runs every enabled job once, concurrently, and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []job{
		{obsmetrics.JobExpireInvitations, s.ExpireInvitationsJob},
		{obsmetrics.JobRelayEvents, s.RelayEventsJob},
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, j := range jobs {
		if !s.isJobEnabled(j.name) {
			continue
		}
		g.Go(func() error {
			err := s.runJob(parent, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
				return s.withLeaderLock(ctx, j.name, j.run)
			})
			if err != nil {
				mu.Lock()
				errs = errors.Join(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			if lag := tick.Sub(nextRun); lag > 0 {
				schedMetrics.ObserveRunLoopLag(lag)
			}
			nextRun = tick.Add(s.cfg.RunInterval)
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireInvitationsJob sweeps lapsed Pending invitations in batches until a
// batch comes back short.
func (s *Scheduler) ExpireInvitationsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobExpireInvitations, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.hierarchySvc.ExpireInvitations(ctx, hierarchydomain.ExpireInvitationsCommand{Limit: s.cfg.BatchSize})
		if err != nil {
			s.logJobError(ctx, run, "scheduler.invitations.expire.failed", err)
			return err
		}
		run.AddProcessed(res.Expired)
		schedMetrics.AddBatchProcessed(obsmetrics.JobExpireInvitations, obsmetrics.ResourceInvitations, res.Expired)
		if res.Expired == 0 {
			schedMetrics.IncBatchDeferred(obsmetrics.JobExpireInvitations, obsmetrics.SchedulerBatchDeferredReasonEmptyBatch)
		}
		if res.Expired < s.cfg.BatchSize {
			return nil
		}
	}
}

// RelayEventsJob drains the outbox. A batch with delivery failures ends the
// run so failing rows are retried on the next tick rather than in a loop.
func (s *Scheduler) RelayEventsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobRelayEvents, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.relay.RelayBatch(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.events.relay.failed", err)
			return err
		}
		run.AddProcessed(res.Published)
		schedMetrics.AddBatchProcessed(obsmetrics.JobRelayEvents, obsmetrics.ResourceEvents, res.Published)
		if res.Failed > 0 {
			for i := 0; i < res.Failed; i++ {
				run.IncError()
			}
			return nil
		}
		if res.Published < s.cfg.BatchSize {
			return nil
		}
	}
}
