package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/safartrip/safarbot/metrics"
)

const (
	dedupWindow   = 30 * time.Second
	dedupCapacity = 100
)

// Reporter fans internal errors out to the admin chats. Repeats of the
// same error within the dedup window are dropped so a crash loop cannot
// flood the admins. Reporting never returns an error to the caller.
type Reporter struct {
	notifier *Notifier
	admins   []int64
	metrics  *metrics.Metrics

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewReporter builds a reporter delivering through the given notifier.
func NewReporter(notifier *Notifier, admins []int64, m *metrics.Metrics) *Reporter {
	return &Reporter{
		notifier: notifier,
		admins:   admins,
		metrics:  m,
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Report sends err to every admin unless an identical error was reported
// within the last 30 seconds. The identity key is the error type, the
// first 100 characters of its message and the reporting call site.
func (r *Reporter) Report(ctx context.Context, err error, where string) {
	if err == nil || r == nil {
		return
	}

	frame := callerFrame(2)
	if r.duplicate(fingerprint(err, frame)) {
		return
	}

	r.metrics.ErrorReported()
	text := fmt.Sprintf("⚠️ <b>%s</b>\n\n<code>%s</code>\n\n%s",
		Escape(where), Escape(err.Error()), Escape(frame))
	for _, admin := range r.admins {
		if _, sendErr := r.notifier.Send(ctx, admin, text, nil); sendErr != nil {
			slog.Error("reporter: failed to notify admin",
				"admin", admin, "error", sendErr)
		}
	}
}

func (r *Reporter) duplicate(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if at, ok := r.seen[key]; ok && now.Sub(at) < dedupWindow {
		return true
	}
	r.seen[key] = now

	if len(r.seen) > dedupCapacity {
		r.evictOldest()
	}
	return false
}

// evictOldest drops the older half of the cache. Called with mu held.
func (r *Reporter) evictOldest() {
	type entry struct {
		key string
		at  time.Time
	}
	entries := make([]entry, 0, len(r.seen))
	for k, at := range r.seen {
		entries = append(entries, entry{k, at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for _, e := range entries[:len(entries)/2] {
		delete(r.seen, e.key)
	}
}

func fingerprint(err error, frame string) string {
	msg := err.Error()
	if len(msg) > 100 {
		msg = msg[:100]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%T|%s|%s", err, msg, frame)))
	return hex.EncodeToString(sum[:8])
}

func callerFrame(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
