package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
	"github.com/haimi-h/shopify-clone-sub000/internal/messaging"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a valid 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("relay: retention schedule %q: %w", expr, err)
	}
	return nil
}

// Retention periodically deletes history older than MaxAge.
type Retention struct {
	db     *gorm.DB
	maxAge time.Duration
	now    func() time.Time
	log    *logging.Logger
	onRun  func(purged int64)
	cron   *cron.Cron
}

// RetentionOpts holds parameters for creating a Retention job.
type RetentionOpts struct {
	DB       *gorm.DB
	Schedule string
	MaxAge   time.Duration
	Now      func() time.Time
	Logger   *logging.Logger
	OnRun    func(purged int64) // called after every purge
}

// NewRetention validates opts and schedules the purge. Call Run to start it.
func NewRetention(opts RetentionOpts) (*Retention, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: retention: db is required")
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("relay: retention: max age must be positive")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("relay: retention schedule %q: %w", opts.Schedule, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Retention{
		db:     opts.DB,
		maxAge: opts.MaxAge,
		now:    now,
		log:    logging.OrNop(opts.Logger).With("component", "retention"),
		onRun:  opts.OnRun,
		cron:   cron.New(cron.WithParser(cronParser)),
	}
	r.cron.Schedule(sched, cron.FuncJob(func() {
		if _, err := r.RunOnce(); err != nil {
			r.log.Error("retention purge failed", "error", err)
		}
	}))
	return r, nil
}

// RunOnce purges expired messages immediately.
func (r *Retention) RunOnce() (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := messaging.Purge(r.db, cutoff)
	if err != nil {
		return 0, err
	}
	r.log.Info("retention purge", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	if r.onRun != nil {
		r.onRun(n)
	}
	return n, nil
}

// Next returns the next scheduled run after t.
func (r *Retention) Next(t time.Time) time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(t)
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}
