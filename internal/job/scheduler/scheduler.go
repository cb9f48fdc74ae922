package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/job/usecase"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrPassInProgress is returned by RunOnce while another pass is running
var ErrPassInProgress = errors.New("follow-up pass already in progress")

// PassReport summarizes one follow-up pass
type PassReport struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

// FollowUpScheduler runs the transition engine over every stored record on a
// fixed interval and on demand.
type FollowUpScheduler struct {
	repo       repository.JobRepository
	mailers    usecase.MailerFactory
	processor  usecase.FollowUpProcessor
	interval   time.Duration
	runOnStart bool
	log        *zap.SugaredLogger

	trigger chan struct{}
	running atomic.Bool
}

func NewFollowUpScheduler(
	repo repository.JobRepository,
	mailers usecase.MailerFactory,
	processor usecase.FollowUpProcessor,
	interval time.Duration,
	runOnStart bool,
	log *zap.SugaredLogger,
) *FollowUpScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &FollowUpScheduler{
		repo:       repo,
		mailers:    mailers,
		processor:  processor,
		interval:   interval,
		runOnStart: runOnStart,
		log:        log.Named("scheduler"),
		trigger:    make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled
func (s *FollowUpScheduler) Run(ctx context.Context) error {
	s.log.Infow("Starting follow-up scheduler", "interval", s.interval.String(), "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.runPass(ctx, "start")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runPass(ctx, "interval")
		case <-s.trigger:
			s.runPass(ctx, "trigger")
		case <-ctx.Done():
			s.log.Info("Follow-up scheduler stopped")
			return nil
		}
	}
}

// Trigger asks the Run loop for an early pass. It never blocks; a request
// made while one is already queued is folded into it.
func (s *FollowUpScheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *FollowUpScheduler) runPass(ctx context.Context, cause string) {
	report, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrPassInProgress):
		s.log.Debugw("Skipping follow-up pass, previous one still running", "cause", cause)
	case err != nil:
		s.log.Errorw("Follow-up pass aborted", "cause", cause, "error", err)
	default:
		s.log.Infow("Follow-up pass complete", "cause", cause, "checked", report.Checked, "changed", report.Changed, "failed", report.Failed)
	}
}

// RunOnce performs a single pass: load once, evaluate every record in order,
// then write back the changed ones in one save. A record that fails is
// skipped; changes to the others are still persisted.
func (s *FollowUpScheduler) RunOnce(ctx context.Context) (PassReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return PassReport{}, ErrPassInProgress
	}
	defer s.running.Store(false)

	var report PassReport

	mail, err := s.mailers.NewMailer(ctx)
	if err != nil {
		return report, errors.Wrap(err, "initialize mail client")
	}

	jobs, err := s.repo.Load(ctx)
	if err != nil {
		return report, errors.Wrap(err, "load jobs")
	}

	var changed []*domain.JobRecord
	for _, rec := range jobs {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		ok, err := s.process(ctx, rec, mail)
		if err != nil {
			report.Failed++
			s.log.Errorw("Follow-up check failed", "job_id", rec.JobID, "error", err)
			continue
		}
		if ok {
			changed = append(changed, rec)
		}
	}

	report.Changed = len(changed)
	if len(changed) == 0 {
		return report, nil
	}
	// ctx may be done by now; the transitions already happened at the
	// mail provider, so they are written regardless
	if err := s.repo.Merge(context.WithoutCancel(ctx), changed); err != nil {
		return report, errors.Wrapf(err, "save %d changed jobs", len(changed))
	}
	return report, nil
}

// process runs the engine on a copy so a panic or error leaves rec untouched
func (s *FollowUpScheduler) process(ctx context.Context, rec *domain.JobRecord, mail usecase.Mailer) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = errors.Newf("panic: %v", r)
		}
	}()

	work := rec.Clone()
	changed, err = s.processor.Process(ctx, work, mail)
	if err != nil || !changed {
		return false, err
	}
	*rec = *work
	return true, nil
}
