package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/internal/payment"
	"github.com/eGGnogSC/qbsync/internal/qbtest"
	"github.com/eGGnogSC/qbsync/internal/scheduler"
	"github.com/eGGnogSC/qbsync/internal/settings"
)

type fakePoller struct {
	mu     sync.Mutex
	users  []uint
	failOn map[uint]error
}

func (p *fakePoller) PollPayments(ctx context.Context, userID uint) (*payment.PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	if err := p.failOn[userID]; err != nil {
		return nil, err
	}
	return &payment.PollResult{}, nil
}

func (p *fakePoller) polled() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.users...)
}

func TestRunDuePolls(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	env.Connect(t, 2)
	env.Connect(t, 3)
	env.Connect(t, 4)
	if err := env.Store.DeactivateConnection(ctx, 4); err != nil {
		t.Fatal(err)
	}

	prefs := settings.NewService(env.Store, env.Logger)
	now := time.Now().UTC()
	// user 2 polled five minutes ago with the default 15 minute interval
	if _, err := prefs.Get(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := prefs.RecordPaymentPoll(ctx, 2, now.Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	// user 3 fails
	poller := &fakePoller{failOn: map[uint]error{3: errors.New("boom")}}

	svc := scheduler.NewService(env.Store, prefs, poller, time.Minute, env.Logger)
	summary := svc.RunDuePolls(ctx, now)

	if summary.Connections != 3 || summary.Polled != 1 || summary.NotDue != 1 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	got := poller.polled()
	if len(got) != 2 || got[0] != qbtest.UserID || got[1] != 3 {
		t.Errorf("polled users = %v, want [1 3]", got)
	}
}

func TestRunDuePollsSkipsDisabledUsers(t *testing.T) {
	ctx := context.Background()
	env := qbtest.NewEnv(t)
	prefs := settings.NewService(env.Store, env.Logger)
	if err := env.Store.CreateSyncSettings(ctx, &models.SyncSettings{
		UserID:              qbtest.UserID,
		SyncPaymentsFromQB:  false,
		PollIntervalMinutes: 15,
	}); err != nil {
		t.Fatal(err)
	}
	poller := &fakePoller{}

	summary := scheduler.NewService(env.Store, prefs, poller, time.Minute, env.Logger).RunDuePolls(ctx, time.Now())
	if summary.NotDue != 1 || len(poller.polled()) != 0 {
		t.Errorf("disabled user polled: %+v", summary)
	}
}

func TestStartRunsPolls(t *testing.T) {
	env := qbtest.NewEnv(t)
	poller := &fakePoller{}
	svc := scheduler.NewService(env.Store, settings.NewService(env.Store, env.Logger), poller, time.Hour, env.Logger)
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for len(poller.polled()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if len(poller.polled()) == 0 {
		t.Fatal("scheduler never polled")
	}
}
