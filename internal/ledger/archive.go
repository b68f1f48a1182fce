package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// ArchiveRunner moves aged ledger data from the database to cold storage.
type ArchiveRunner struct {
	archiver      domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner over the given blob archiver.
func NewArchiveRunner(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *ArchiveRunner {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &ArchiveRunner{
		archiver:      archiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// Run executes a single archive pass: everything older than the retention
// window moves to cold storage, table by table.
func (a *ArchiveRunner) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive pass",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	steps := []struct {
		name   string
		attr   string
		export func(context.Context, time.Time) (int64, error)
	}{
		{"archive settlements", "settlements", a.archiver.ArchiveSettlements},
		{"archive risk events", "risk_events", a.archiver.ArchiveRiskEvents},
		{"archive param history", "param_versions", a.archiver.ArchiveParamHistory},
	}

	counts := make([]slog.Attr, 0, len(steps))
	for _, step := range steps {
		n, err := step.export(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("ledger: %s before %v: %w", step.name, cutoff, err)
		}
		counts = append(counts, slog.Int64(step.attr, n))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "archive pass complete", counts...)
	return nil
}

// RunCron runs archive passes on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week", e.g. "0 3 1 * *" for
// 03:00 on the 1st of every month) until the context is cancelled.
func (a *ArchiveRunner) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("ledger: parse cron expression %q: %w", cronExpr, err)
	}
	a.logger.Info("archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("ledger: cron schedule %q: %w", cronExpr, err)
		}
		a.logger.Info("archive waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archive cron stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := a.Run(ctx); err != nil {
			a.logger.Error("archive pass failed", slog.String("error", err.Error()))
		}
	}
}

// cronField is one parsed position of a cron expression: either a wildcard
// or an explicit value list.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	return f.wildcard || slices.Contains(f.values, val)
}

// parseCronField parses a single position ("0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	var values []int
	for _, tok := range strings.Split(field, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", tok, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds the five positions of a cron expression.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	switch {
	case !c.minute.matches(t.Minute()):
		return false
	case !c.hour.matches(t.Hour()):
		return false
	case !c.dayOfMonth.matches(t.Day()):
		return false
	case !c.month.matches(int(t.Month())):
		return false
	case !c.dayOfWeek.matches(int(t.Weekday())):
		return false
	}
	return true
}

// next finds the first minute boundary strictly after the given time that
// matches the schedule. The scan is capped at one year so an unsatisfiable
// expression (minute 0 on February 30th) fails instead of spinning.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	limit := after.Add(366 * 24 * time.Hour)
	for t := after.Truncate(time.Minute).Add(time.Minute); t.Before(limit); t = t.Add(time.Minute) {
		if c.matchesTime(t) {
			return t, nil
		}
	}
	return time.Time{}, errors.New("no matching time within one year")
}

// parseCron parses a 5-field cron expression.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var c parsedCron
	positions := []struct {
		name string
		dst  *cronField
	}{
		{"minute", &c.minute},
		{"hour", &c.hour},
		{"day-of-month", &c.dayOfMonth},
		{"month", &c.month},
		{"day-of-week", &c.dayOfWeek},
	}
	for i, pos := range positions {
		f, err := parseCronField(fields[i])
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", pos.name, err)
		}
		*pos.dst = f
	}
	return c, nil
}

// nextCronTime calculates the first time after 'after' matching the given
// cron expression.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	next, err := sched.next(after)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w for %q", err, cronExpr)
	}
	return next, nil
}
