package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/occurrence"
	"wallcal/internal/store"
	"wallcal/internal/wallclock"
)

const (
	DefaultSchedule  = "* * * * *"
	DefaultLookahead = 7 * 24 * time.Hour

	// A trigger this far in the past at the first scan still fires.
	firstScanTolerance = 5 * time.Second
	// Fired keys are remembered this long after their trigger time.
	firedRetention = 24 * time.Hour
)

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Config controls a Scheduler. Zero fields take defaults.
type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	// Location interprets wall-clock occurrence times.
	Location *time.Location
	// Lookahead bounds the longest lead time considered.
	Lookahead time.Duration
	Expand    occurrence.Config
	Now       func() time.Time
}

// Scheduler scans occurrences on a cron schedule. A scan fires every
// occurrence whose start minus its lead time lies in (previous scan, now].
type Scheduler struct {
	store     store.Store
	notifiers []Notifier
	cfg       Config

	mu       sync.Mutex
	cron     *cron.Cron
	lastScan time.Time
	fired    map[string]time.Time
}

func NewScheduler(s store.Store, cfg Config, notifiers ...Notifier) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:     s,
		notifiers: notifiers,
		cfg:       cfg,
		lastScan:  cfg.Now().Add(-firstScanTolerance),
		fired:     make(map[string]time.Time),
	}
}

// Start runs Scan on the configured schedule until Stop.
func (s *Scheduler) Start() error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Scan(context.Background()); err != nil {
			appLog.Error("reminder: scan failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("reminder: schedule %q: %w", s.cfg.Schedule, err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()
	appLog.Info("reminder: scheduler started", "schedule", s.cfg.Schedule, "zone", s.cfg.Location.String(), "notifiers", len(s.notifiers))
	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Scan fires the reminders that came due since the previous scan and
// returns them. When the definitions cannot be read the interval is kept
// for the next scan.
func (s *Scheduler) Scan(ctx context.Context) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	from := s.lastScan
	if !now.After(from) {
		return nil, nil
	}

	defs, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reminder: %w", err)
	}
	due := s.due(defs, from, now)
	s.lastScan = now

	for key, at := range s.fired {
		if now.Sub(at) > firedRetention {
			delete(s.fired, key)
		}
	}

	for _, n := range due {
		s.fired[n.Key] = n.FireAt
		s.notify(ctx, n)
	}
	if len(due) > 0 {
		appLog.Info("reminder: scan fired", "count", len(due))
	}
	return due, nil
}

func (s *Scheduler) due(defs []model.Definition, from, now time.Time) []Notification {
	loc := s.cfg.Location
	// an hour of margin either side covers DST shifts between the zones
	ws := wallclock.Of(from.In(loc)).Add(-time.Hour)
	we := wallclock.Of(now.In(loc)).Add(s.cfg.Lookahead + time.Hour)
	res := occurrence.ExpandWithConfig(defs, ws, we, s.cfg.Expand)

	var due []Notification
	for _, occ := range res.Occurrences {
		if occ.AlertOffsetMinutes == nil || *occ.AlertOffsetMinutes < 0 {
			continue
		}
		mins := *occ.AlertOffsetMinutes
		fireAt := occ.Start.In(loc).Add(-time.Duration(mins) * time.Minute)
		if !fireAt.After(from) || fireAt.After(now) {
			continue
		}
		key := Key(occ.InstanceID)
		if _, done := s.fired[key]; done {
			continue
		}
		due = append(due, Notification{
			Key:        key,
			Title:      notificationTitle,
			Body:       Message(occ.Title, mins),
			InstanceID: occ.InstanceID,
			Start:      occ.Start,
			FireAt:     fireAt,
		})
	}
	return due
}

func (s *Scheduler) notify(ctx context.Context, n Notification) {
	for _, nt := range s.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			appLog.Error("reminder: notify failed", err, "key", n.Key, "notifier", fmt.Sprintf("%T", nt))
		}
	}
}

// cronLogger routes cron's own messages to the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("reminder: cron "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("reminder: cron "+msg, err, kv...)
}
