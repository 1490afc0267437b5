// Package scheduler runs the periodic billing jobs: the three dunning stages
// and the expiry of voucher redemptions. Jobs fire on cron specs and take a
// redis lease so only one replica runs a job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/authorization"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/dunning"
	obsmetrics "github.com/lukasmk87/basketmanager/internal/observability/metrics"
	"github.com/lukasmk87/basketmanager/internal/ratelimit"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMarkOverdue       = "mark_overdue"
	JobSendReminders     = "send_reminders"
	JobSuspendOverdue    = "suspend_overdue"
	JobExpireRedemptions = "expire_redemptions"
)

const lockKeyPrefix = "scheduler:lock:"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Billing  *config.BillingConfigHolder
	Dunning  *dunning.Processor
	Vouchers voucherdomain.Service
	Authz    authorization.Service `optional:"true"`
	Locker   *ratelimit.Locker     `optional:"true"`
	Config   Config                `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	genID    *snowflake.Node
	billing  *config.BillingConfigHolder
	dunning  *dunning.Processor
	vouchers voucherdomain.Service
	authz    authorization.Service
	locker   *ratelimit.Locker

	mu          sync.Mutex
	lastChecked map[string]time.Time
}

// job is one schedulable unit. run returns the number of items it moved.
type job struct {
	name       string
	spec       string
	resource   string
	transition string
	authorize  bool
	run        func(ctx context.Context) (int, error)
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Billing == nil || p.Dunning == nil || p.Vouchers == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	for _, spec := range []string{cfg.ExpireRedemptionsSchedule, p.Billing.Get().Dunning.Schedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidConfig, spec, err)
		}
	}

	s := &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         cfg,
		clock:       p.Clock,
		genID:       p.GenID,
		billing:     p.Billing,
		dunning:     p.Dunning,
		vouchers:    p.Vouchers,
		authz:       p.Authz,
		locker:      p.Locker,
		lastChecked: make(map[string]time.Time),
	}
	now := p.Clock.Now()
	for _, j := range s.jobs() {
		s.lastChecked[j.name] = now
	}
	return s, nil
}

// jobs is rebuilt per tick so a reloaded dunning schedule takes effect.
func (s *Scheduler) jobs() []job {
	dunningSpec := s.billing.Get().Dunning.Schedule
	return []job{
		{
			name:       JobMarkOverdue,
			spec:       dunningSpec,
			resource:   obsmetrics.LockResourceOverdueCandidates,
			transition: obsmetrics.DunningTransitionOverdue,
			authorize:  true,
			run: func(ctx context.Context) (int, error) {
				res, err := s.dunning.MarkOverdue(ctx)
				return res.MarkedOverdue, err
			},
		},
		{
			name:       JobSendReminders,
			spec:       dunningSpec,
			resource:   obsmetrics.LockResourceReminderCandidates,
			transition: obsmetrics.DunningTransitionReminder,
			authorize:  true,
			run: func(ctx context.Context) (int, error) {
				res, err := s.dunning.SendReminders(ctx)
				return res.RemindersSent, err
			},
		},
		{
			name:       JobSuspendOverdue,
			spec:       dunningSpec,
			resource:   obsmetrics.LockResourceSuspensionCandidates,
			transition: obsmetrics.DunningTransitionSuspended,
			authorize:  true,
			run: func(ctx context.Context) (int, error) {
				res, err := s.dunning.SuspendOverdue(ctx)
				return res.SubscriptionsSuspended, err
			},
		},
		{
			name:     JobExpireRedemptions,
			spec:     s.cfg.ExpireRedemptionsSchedule,
			resource: obsmetrics.LockResourceExpiredRedemptions,
			run:      s.expireRedemptions,
		},
	}
}

// RunOnce runs every enabled job regardless of its schedule.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

// Tick runs the enabled jobs whose cron spec fired since they were last checked.
func (s *Scheduler) Tick(parent context.Context) error {
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		due, dueErr := s.due(j, now)
		if dueErr != nil {
			s.log.Error("invalid job schedule", zap.String("job", j.name), zap.String("spec", j.spec), zap.Error(dueErr))
			err = errors.Join(err, dueErr)
			continue
		}
		if !due {
			schedMetrics.IncJobSkipped(j.name, obsmetrics.SchedulerSkipReasonNotDue)
			continue
		}
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := s.clock.Now()
		schedMetrics.ObserveRunLoopLag(now.Sub(nextRun))
		if err := s.Tick(ctx); err != nil {
			s.log.Warn("scheduler tick failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) due(j job, now time.Time) (bool, error) {
	schedule, err := cron.ParseStandard(j.spec)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastChecked[j.name]
	if !ok {
		s.lastChecked[j.name] = now
		return false, nil
	}
	if schedule.Next(last).After(now) {
		return false, nil
	}
	s.lastChecked[j.name] = now
	return true, nil
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = tenantcontext.WithActor(ctx, tenantcontext.Actor{ID: "scheduler", Role: authorization.RoleSystem})
	run := s.newJobRun(j.name, start)
	log := s.logger(ctx).With(
		zap.String("job", j.name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()

	release, acquired, err := s.acquire(ctx, j)
	if err != nil {
		schedMetrics.IncJobError(j.name, err)
		return fmt.Errorf("%s: lock: %w", j.name, err)
	}
	if !acquired {
		schedMetrics.IncJobSkipped(j.name, obsmetrics.SchedulerSkipReasonLockHeld)
		log.Debug("scheduler.job.skipped", zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
		return nil
	}
	defer release()

	schedMetrics.IncJobRun(j.name)
	s.logJobStart(ctx, run)

	if j.authorize && s.authz != nil {
		err = s.authz.Authorize(ctx, nil, authorization.ObjectDunning, authorization.ActionDunningRun)
	}
	if err == nil {
		var processed int
		processed, err = j.run(ctx)
		run.AddProcessed(processed)
		schedMetrics.AddBatchProcessed(j.name, j.resource, processed)
		if j.transition != "" {
			schedMetrics.AddDunningTransitions(j.transition, processed)
		}
	}

	schedMetrics.ObserveJobDuration(j.name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft failure: the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(j.name)
	}
	schedMetrics.IncJobError(j.name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	s.logJobError(ctx, run, err)
	return fmt.Errorf("%s: %w", j.name, err)
}

// acquire takes the job lease. Without a locker every replica runs every job.
func (s *Scheduler) acquire(ctx context.Context, j job) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	key := lockKeyPrefix + j.name
	start := time.Now()
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	obsmetrics.Scheduler().ObserveLockWait(j.resource, time.Since(start))
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// the job context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", j.name), zap.Error(err))
		}
	}, true, nil
}

func (s *Scheduler) expireRedemptions(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := s.vouchers.ExpireRedemptions(ctx, s.cfg.ExpireBatchSize)
		total += int(expired)
		if err != nil {
			return total, err
		}
		if expired < int64(s.cfg.ExpireBatchSize) {
			return total, nil
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
