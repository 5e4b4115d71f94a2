package booking

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/store"
)

type recordingReporter struct {
	mu     sync.Mutex
	errors []error
}

func (r *recordingReporter) Report(_ context.Context, err error, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func newTestSweeper(driver *fakeDriver, notifier *fakeNotifier, reporter errorReporter) *Sweeper {
	st := store.New(driver, &profile.Profile{})
	admins := []int64{adminChat}
	dispatcher := NewDispatcher(st, notifier, admins, nil)
	engine := NewEngine(st, dispatcher, notifier, admins, nil)
	return NewSweeper(st, engine, reporter, nil)
}

func TestSweepProcessesExpiredRows(t *testing.T) {
	driver := newFakeDriver()
	driver.expired = []*store.ExpiredBooking{
		{ID: uuid.New(), UserChatID: userChat, ListingTitle: "Zomin Plaza", WasDispatched: true},
	}
	notifier := &fakeNotifier{fail: map[int64]error{}}
	s := newTestSweeper(driver, notifier, nil)

	s.sweep(context.Background())
	require.Len(t, notifier.to(userChat), 1)

	// Second tick sees nothing and sends nothing.
	s.sweep(context.Background())
	require.Len(t, notifier.to(userChat), 1)
}

func TestSweepFailureReportedAndLoopSurvives(t *testing.T) {
	driver := newFakeDriver()
	driver.sweepErr = assert.AnError
	notifier := &fakeNotifier{fail: map[int64]error{}}
	reporter := &recordingReporter{}
	s := newTestSweeper(driver, notifier, reporter)

	s.sweep(context.Background())
	require.Len(t, reporter.errors, 1)
	assert.Empty(t, notifier.sent)

	// Recovery on the next tick.
	driver.sweepErr = nil
	driver.expired = []*store.ExpiredBooking{
		{ID: uuid.New(), UserChatID: userChat, ListingTitle: "A", WasDispatched: true},
	}
	s.sweep(context.Background())
	require.Len(t, notifier.to(userChat), 1)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	driver := newFakeDriver()
	notifier := &fakeNotifier{fail: map[int64]error{}}
	s := newTestSweeper(driver, notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
