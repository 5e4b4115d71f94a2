package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReporter(bot *fakeBot, admins []int64) *Reporter {
	n, _ := newTestNotifier(bot)
	return NewReporter(n, admins, nil)
}

func TestReportFansOutToAllAdmins(t *testing.T) {
	bot := &fakeBot{}
	r := newTestReporter(bot, []int64{1, 2, 3})

	r.Report(context.Background(), errors.New("db down"), "sweeper")
	assert.Equal(t, 3, bot.calls)
}

func TestReportDeduplicatesWithinWindow(t *testing.T) {
	bot := &fakeBot{}
	r := newTestReporter(bot, []int64{1})

	now := time.Now()
	r.now = func() time.Time { return now }
	report := func(msg string) { r.Report(context.Background(), errors.New(msg), "sweeper") }

	report("db down")
	report("db down")
	assert.Equal(t, 1, bot.calls)

	now = now.Add(dedupWindow + time.Second)
	report("db down")
	assert.Equal(t, 2, bot.calls)
}

func TestReportDistinctErrorsNotDeduplicated(t *testing.T) {
	bot := &fakeBot{}
	r := newTestReporter(bot, []int64{1})

	report := func(msg string) { r.Report(context.Background(), errors.New(msg), "sweeper") }
	report("db down")
	report("tg down")
	assert.Equal(t, 2, bot.calls)
}

func TestReportCacheEviction(t *testing.T) {
	bot := &fakeBot{}
	r := newTestReporter(bot, nil)

	base := time.Now()
	for i := 0; i < dedupCapacity+10; i++ {
		at := base.Add(time.Duration(i) * time.Millisecond)
		r.now = func() time.Time { return at }
		r.Report(context.Background(), errors.New("e"+string(rune('a'+i%26))+time.Duration(i).String()), "x")
	}
	require.LessOrEqual(t, len(r.seen), dedupCapacity+1)
}

func TestReportNilErrorIgnored(t *testing.T) {
	bot := &fakeBot{}
	r := newTestReporter(bot, []int64{1})

	r.Report(context.Background(), nil, "sweeper")
	assert.Zero(t, bot.calls)
}
