package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// Housekeeping job names.
const (
	JobExpireInvitations   = "expire-invitations"
	JobPurgeResetTokens    = "purge-reset-tokens"
	JobExpireSubscriptions = "expire-subscriptions"
)

// HousekeepingService periodically applies time driven transitions that are
// otherwise only evaluated lazily: overdue invitations, stale password reset
// tokens and lapsed subscriptions.
type HousekeepingService struct {
	Invitations   *InviteService
	Users         *UserService
	Subscriptions *SubscriptionService
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Interval      time.Duration

	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

type housekeepingJob struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to 15 minutes.
func NewHousekeepingService(
	invitations *InviteService,
	users *UserService,
	subscriptions *SubscriptionService,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slogx.Discard()
	}
	return &HousekeepingService{
		Invitations:   invitations,
		Users:         users,
		Subscriptions: subscriptions,
		Metrics:       m,
		Logger:        logger,
		Interval:      interval,
	}
}

func (s *HousekeepingService) jobs() []housekeepingJob {
	var jobs []housekeepingJob
	if s.Invitations != nil {
		jobs = append(jobs, housekeepingJob{JobExpireInvitations, s.Invitations.ExpireStale})
	}
	if s.Users != nil {
		jobs = append(jobs, housekeepingJob{JobPurgeResetTokens, s.Users.PurgeResetTokens})
	}
	if s.Subscriptions != nil {
		jobs = append(jobs, housekeepingJob{JobExpireSubscriptions, s.Subscriptions.ExpireEnded})
	}
	return jobs
}

// Start schedules every job, running each once immediately. It does not
// block. Call Stop to shut the scheduler down.
func (s *HousekeepingService) Start(ctx context.Context) error {
	if s.scheduler != nil {
		return errors.New("housekeeping already started")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(slogx.WithContext(ctx, s.Logger))
	for _, job := range s.jobs() {
		_, err := scheduler.NewJob(
			gocron.DurationJob(s.Interval),
			gocron.NewTask(func() { s.run(ctx, job) }),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = scheduler.Shutdown()
			return err
		}
	}

	s.scheduler, s.cancel = scheduler, cancel
	scheduler.Start()
	s.Logger.Info("housekeeping service started", slog.Duration("interval", s.Interval))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *HousekeepingService) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	s.cancel()
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	s.Logger.Info("housekeeping service stopped")
	return err
}

// RunOnce runs every job synchronously and returns the rows each changed.
// Failures in one job do not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) (map[string]int64, error) {
	ctx = slogx.WithContext(ctx, s.Logger)
	changed := make(map[string]int64)
	var errs []error
	for _, job := range s.jobs() {
		n, err := s.run(ctx, job)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		changed[job.name] = n
	}
	return changed, errors.Join(errs...)
}

func (s *HousekeepingService) run(ctx context.Context, job housekeepingJob) (int64, error) {
	n, err := job.run(ctx)
	s.Metrics.HousekeepingRun(job.name, err)
	if err != nil {
		s.Logger.Error("housekeeping job failed", slog.String("job", job.name), slog.Any("error", err))
		return 0, err
	}
	s.Logger.Debug("housekeeping job completed", slog.String("job", job.name), slog.Int64("changed", n))
	return n, nil
}
