// Package notify sends renewal reminders to users who favorited a record.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/records"
)

// DefaultLeadDays is how many days before renewal the reminder goes out.
const DefaultLeadDays = 2

// Notifier delivers a reminder to one user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Report summarizes one scanner pass.
type Report struct {
	RunID   string
	Started time.Time
	Took    time.Duration
	Records int
	Skipped int
	Due     int
	Sent    int
	Failed  int
}

// Options tune a Scanner. Zero values mean defaults.
type Options struct {
	LeadDays int
	Location *time.Location
	Now      func() time.Time
}

// Scanner runs reminder passes over the record store. It keeps no memory of
// earlier passes, so two passes on the same day remind twice.
type Scanner struct {
	store    *records.Store
	notifier Notifier
	leadDays int
	loc      *time.Location
	now      func() time.Time
}

// NewScanner builds a scanner reading store and sending through notifier.
func NewScanner(store *records.Store, notifier Notifier, opts Options) *Scanner {
	s := &Scanner{
		store:    store,
		notifier: notifier,
		leadDays: opts.LeadDays,
		loc:      opts.Location,
		now:      opts.Now,
	}
	if s.leadDays <= 0 {
		s.leadDays = DefaultLeadDays
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ReminderText is the message sent for a record renewing on date.
func ReminderText(id, date string) string {
	return fmt.Sprintf("🔔 Reminder: the subscription for device %s expires on %s. Please renew it.", id, date)
}

// today returns the current civil date in the scanner location as UTC midnight,
// comparable with records.ParseRenewalDate.
func (s *Scanner) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil counts calendar days from today to date.
func daysUntil(today, date time.Time) int {
	return int(date.Sub(today).Hours() / 24)
}

// Pass scans a snapshot of the store and notifies every favoriting user of
// each record renewing exactly leadDays from today. Failed sends are logged
// and counted; they do not stop the pass.
func (s *Scanner) Pass(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Started: s.now()}
	ctx = logger.WithRID(ctx, rep.RunID)

	// The snapshot is taken under the store lock; sends happen outside it.
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		logger.LogEvent(ctx, logger.Scan, slog.LevelError, "scan.pass",
			slog.String("status", "fail"),
			logger.Err(err),
		)
		return rep, fmt.Errorf("notify: load records: %w", err)
	}
	rep.Records = len(snapshot)
	today := s.today()

	for _, rec := range snapshot.Sorted() {
		date, ok := rec.Renewal()
		if !ok {
			rep.Skipped++
			if rec.RenewalDate != "" {
				logger.LogEvent(ctx, logger.Scan, slog.LevelWarn, "scan.record.skip",
					slog.String("status", "skip"),
					slog.String("record_id", rec.ID),
					slog.String("renewal_date", rec.RenewalDate),
					slog.String("cause", "bad_date"),
				)
			}
			continue
		}
		if daysUntil(today, date) != s.leadDays {
			continue
		}
		rep.Due++
		text := ReminderText(rec.ID, rec.RenewalDate)
		for _, user := range rec.FavoritedBy {
			if err := ctx.Err(); err != nil {
				rep.Took = logger.Took(rep.Started)
				return rep, err
			}
			if err := s.notifier.Notify(ctx, int64(user), text); err != nil {
				rep.Failed++
				logger.LogEvent(ctx, logger.Scan, slog.LevelWarn, "scan.notify",
					slog.String("status", "fail"),
					slog.String("record_id", rec.ID),
					slog.Int64("recipient", int64(user)),
					logger.Err(err),
				)
				continue
			}
			rep.Sent++
		}
	}

	rep.Took = logger.Took(rep.Started)
	logger.LogEvent(ctx, logger.Scan, slog.LevelInfo, "scan.pass",
		slog.String("status", "ok"),
		slog.Int("records", rep.Records),
		slog.Int("due", rep.Due),
		slog.Int("sent", rep.Sent),
		slog.Int("failed", rep.Failed),
		slog.Int("skipped", rep.Skipped),
		slog.Duration("duration", rep.Took),
	)
	return rep, nil
}
