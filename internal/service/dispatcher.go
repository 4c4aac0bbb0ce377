package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// DefaultNotificationDelay is the pacing between two deliveries.
const DefaultNotificationDelay = 50 * time.Millisecond

// DispatcherOptions configures NotificationDispatcher.
type DispatcherOptions struct {
	// Delay is the minimum spacing between two sends across all runs.
	// Negative disables pacing; zero uses DefaultNotificationDelay.
	Delay    time.Duration
	Location *time.Location
	Now      func() time.Time
}

// NotificationDispatcher fans one assignment event out to a section.
type NotificationDispatcher struct {
	assignments assignmentStore
	memberships membershipStore
	records     notificationStore
	notifier    Notifier
	obs         Observer

	limiter *rate.Limiter
	loc     *time.Location
	now     func() time.Time
}

// NewNotificationDispatcher builds a dispatcher. The limiter is shared by
// every run, so pacing holds in aggregate when runs overlap.
func NewNotificationDispatcher(repos Repos, notifier Notifier, obs Observer, opts DispatcherOptions) *NotificationDispatcher {
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultNotificationDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &NotificationDispatcher{
		assignments: repos.Assignments,
		memberships: repos.Memberships,
		records:     repos.Notifications,
		notifier:    notifier,
		obs:         observerOr(obs),
		limiter:     rate.NewLimiter(limit, 1),
		loc:         loc,
		now:         now,
	}
}

// Dispatch delivers kind for assignmentID to every approved, active and
// unblocked member of sectionID. Each attempt is recorded once and never
// retried. A started run is not interrupted by cancellation of ctx.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, assignmentID, sectionID int64, kind models.NotificationKind) (models.DispatchStats, error) {
	ctx = context.WithoutCancel(ctx)
	var stats models.DispatchStats
	runID := uuid.NewString()
	start := time.Now()

	switch kind {
	case models.NotifyNew, models.NotifyEdit, models.NotifyDelete, models.NotifyReminder:
	default:
		logger.Warn(ctx, logger.CompNotify, "dispatch.kind_fallback",
			slog.String("dispatch_id", runID),
			slog.String("kind", string(kind)),
		)
		kind = models.NotifyNew
	}

	a, err := d.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return stats, apperr.Internal(err)
	}
	if a == nil {
		logger.Warn(ctx, logger.CompNotify, "dispatch.assignment_missing",
			slog.String("dispatch_id", runID),
			slog.Int64("assignment_id", assignmentID),
		)
		return stats, nil
	}
	recipients, err := d.memberships.Recipients(ctx, sectionID)
	if err != nil {
		return stats, apperr.Internal(err)
	}
	if len(recipients) == 0 {
		logger.Info(ctx, logger.CompNotify, "dispatch.no_recipients",
			slog.String("dispatch_id", runID),
			slog.Int64("section_id", sectionID),
		)
		return stats, nil
	}

	text := AssignmentText(kind, a, d.now(), d.loc)
	for _, r := range recipients {
		if err := d.limiter.Wait(ctx); err != nil {
			logger.Warn(ctx, logger.CompNotify, "dispatch.pacing", slog.String("err", err.Error()))
		}
		status := d.deliver(ctx, runID, r, text)
		stats.Add(status)
		d.obs.ObserveNotification(string(kind), string(status))

		rec := &models.NotificationRecord{
			AssignmentID: assignmentID,
			StudentID:    r.PrincipalID,
			Kind:         kind,
			Status:       status,
		}
		if err := d.records.Insert(ctx, rec); err != nil {
			logger.Error(ctx, logger.CompNotify, "record.insert",
				slog.String("dispatch_id", runID),
				slog.Int64("student_id", r.PrincipalID),
				slog.String("err", err.Error()),
			)
		}
	}

	took := time.Since(start)
	d.obs.ObserveDispatch(took)
	logger.Info(ctx, logger.CompNotify, "dispatch.done",
		slog.String("dispatch_id", runID),
		slog.String("kind", string(kind)),
		slog.Int64("assignment_id", assignmentID),
		slog.Int64("section_id", sectionID),
		slog.Int("recipients", len(recipients)),
		slog.Int("sent", stats.Sent),
		slog.Int("failed", stats.Failed),
		slog.Int("blocked", stats.Blocked),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return stats, nil
}

func (d *NotificationDispatcher) deliver(ctx context.Context, runID string, r models.Recipient, text string) models.DeliveryStatus {
	if d.notifier == nil {
		return models.DeliveryFailed
	}
	err := d.notifier.Notify(ctx, r.TelegramID, Message{Text: text})
	switch {
	case err == nil:
		return models.DeliverySent
	case errors.Is(err, ErrRecipientBlocked):
		logger.Debug(ctx, logger.CompNotify, "deliver.blocked",
			slog.String("dispatch_id", runID),
			slog.Int64("student_id", r.PrincipalID),
		)
		return models.DeliveryBlocked
	default:
		logger.Warn(ctx, logger.CompNotify, "deliver.failed",
			slog.String("dispatch_id", runID),
			slog.Int64("student_id", r.PrincipalID),
			slog.String("err", err.Error()),
		)
		return models.DeliveryFailed
	}
}
