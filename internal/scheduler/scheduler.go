// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/internal/auth"
	"github.com/eGGnogSC/qbsync/internal/database"
	"github.com/eGGnogSC/qbsync/internal/metrics"
	"github.com/eGGnogSC/qbsync/internal/payment"
	"github.com/eGGnogSC/qbsync/internal/settings"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

const pollJobTag = "payment-poll"

// Poller runs one inbound payment poll for a user
type Poller interface {
	PollPayments(ctx context.Context, userID uint) (*payment.PollResult, error)
}

// RunSummary counts what one scheduler tick did
type RunSummary struct {
	Connections int
	Polled      int
	NotDue      int
	Failed      int
}

// Service polls QuickBooks for new payments on behalf of every connected user
// whose poll interval has elapsed
type Service struct {
	scheduler *gocron.Scheduler
	db        database.DB
	settings  *settings.Service
	poller    Poller
	tick      time.Duration
	logger    logrus.FieldLogger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewService creates a new scheduler service. tick is how often due users are
// looked up; each user's own interval decides whether they are polled.
func NewService(db database.DB, prefs *settings.Service, poller Poller, tick time.Duration, logger logrus.FieldLogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		scheduler: gocron.NewScheduler(time.UTC),
		db:        db,
		settings:  prefs,
		poller:    poller,
		tick:      tick,
		logger:    logger.WithField("module", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the poll job and runs the scheduler in the background
func (s *Service) Start() error {
	s.scheduler.SingletonModeAll()
	_, err := s.scheduler.Every(s.tick).Tag(pollJobTag).Do(func() {
		s.RunDuePolls(s.ctx, time.Now().UTC())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule payment poll: %w", err)
	}
	s.logger.WithField("tick", s.tick.String()).Info("starting scheduler")
	s.scheduler.StartAsync()
	return nil
}

// Stop halts the job and cancels any poll in flight
func (s *Service) Stop() {
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.scheduler.Stop()
}

// RunDuePolls polls every active connection whose interval has elapsed at now.
// Users are polled one after another and a failure for one never skips the rest.
func (s *Service) RunDuePolls(ctx context.Context, now time.Time) RunSummary {
	var summary RunSummary

	conns, err := s.db.ListActiveConnections(ctx)
	if err != nil {
		config.LogError(s.logger, "scheduler", "RunDuePolls", "list connections", nil, err)
		metrics.PollRuns.WithLabelValues("error").Inc()
		return summary
	}
	summary.Connections = len(conns)

	for _, conn := range conns {
		if ctx.Err() != nil {
			break
		}
		prefs, err := s.settings.Get(ctx, conn.UserID)
		if err != nil {
			summary.Failed++
			config.LogError(s.logger, "scheduler", "RunDuePolls", "load settings", map[string]any{"user_id": conn.UserID}, err)
			continue
		}
		if !settings.PollDue(prefs, now) {
			summary.NotDue++
			continue
		}

		result, err := s.poller.PollPayments(ctx, conn.UserID)
		if err != nil {
			summary.Failed++
			outcome := "error"
			if errors.Is(err, auth.ErrNotConnected) {
				outcome = "disconnected"
			}
			metrics.PollRuns.WithLabelValues(outcome).Inc()
			config.LogError(s.logger, "scheduler", "RunDuePolls", "poll payments", map[string]any{"user_id": conn.UserID}, err)
			continue
		}
		summary.Polled++
		metrics.PollRuns.WithLabelValues("success").Inc()
		if result.Imported > 0 || len(result.Errors) > 0 {
			s.logger.WithFields(logrus.Fields{
				"user_id":  conn.UserID,
				"imported": result.Imported,
				"errors":   len(result.Errors),
			}).Info("payments polled")
		}
	}
	return summary
}
