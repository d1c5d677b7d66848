package workshop

import (
	"context"
	"fmt"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
)

type ReminderResult struct {
	DayBefore  int `json:"dayBefore"`
	HourBefore int `json:"hourBefore"`
}

// SendReminders notifies enrolled participants of workshops starting within
// the day and hour lead times of the policy. Each workshop gets each reminder
// once: the flag is committed before anyone is notified.
func (m *Manager) SendReminders(ctx context.Context) (ReminderResult, error) {
	var result ReminderResult
	now := m.now().UTC()

	soon, err := m.upcoming(ctx, now.Add(m.policy.HourReminderLead))
	if err != nil {
		return result, err
	}
	for _, w := range soon {
		claimed, err := m.claimReminder(ctx, w.ID, func(r *model.RemindersSent) *bool { return &r.Hour })
		if err != nil {
			return result, err
		}
		if !claimed {
			continue
		}
		// A workshop this close no longer needs the day-before reminder.
		if _, err := m.claimReminder(ctx, w.ID, func(r *model.RemindersSent) *bool { return &r.Day }); err != nil {
			return result, err
		}
		result.HourBefore += m.remind(ctx, w, model.NotificationWorkshopStarting,
			fmt.Sprintf("The workshop %q starts in %s! Link: %s", w.Title, leadLabel(m.policy.HourReminderLead), w.MeetingLink))
	}

	tomorrow, err := m.upcoming(ctx, now.Add(m.policy.DayReminderLead))
	if err != nil {
		return result, err
	}
	for _, w := range tomorrow {
		claimed, err := m.claimReminder(ctx, w.ID, func(r *model.RemindersSent) *bool { return &r.Day })
		if err != nil {
			return result, err
		}
		if !claimed {
			continue
		}
		result.DayBefore += m.remind(ctx, w, model.NotificationWorkshopReminder,
			fmt.Sprintf("Reminder: the workshop %q takes place on %s.", w.Title, scheduleLabel(w)))
	}

	m.metrics.RecordReminders("day", result.DayBefore)
	m.metrics.RecordReminders("hour", result.HourBefore)
	if result.DayBefore+result.HourBefore > 0 {
		m.logger.Info("Workshop reminders sent", "day_before", result.DayBefore, "hour_before", result.HourBefore)
	}
	return result, nil
}

// claimReminder sets the flag chosen by field and reports whether this call set it.
func (m *Manager) claimReminder(ctx context.Context, workshopID string, field func(*model.RemindersSent) *bool) (bool, error) {
	claimed := false
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		claimed = false
		w, err := m.workshop(ctx, tx, workshopID)
		if err != nil {
			return err
		}
		flag := field(&w.RemindersSent)
		if *flag {
			return nil
		}
		*flag = true
		w.UpdatedAt = m.now().UTC()
		claimed = true
		return tx.Set(ctx, model.CollectionWorkshops, w.ID, w)
	})
	return claimed, err
}

func (m *Manager) remind(ctx context.Context, w model.Workshop, kind model.NotificationType, message string) int {
	enrolled, err := docstore.QueryAs[model.Enrollment](ctx, m.store, docstore.From(model.CollectionWorkshopEnrollments).
		Where("workshopId", docstore.OpEqual, w.ID).
		Where("status", docstore.OpEqual, string(model.EnrollmentEnrolled)))
	if err != nil {
		m.logger.Warn("Failed to list participants for reminder", "workshop_id", w.ID, "error", err)
		return 0
	}
	userIDs := make([]string, 0, len(enrolled))
	for _, e := range enrolled {
		userIDs = append(userIDs, e.UserID)
	}
	return m.notifier.NotifyMany(ctx, userIDs, notifications.NotifyParam{
		Type:       kind,
		TargetID:   w.ID,
		TargetType: "workshop",
		Message:    message,
		Metadata: map[string]any{
			"scheduledDate": w.ScheduledDate,
			"meetingLink":   w.MeetingLink,
		},
	})
}

// leadLabel renders a lead time as "1 hour", "2 hours" or "30 minutes".
func leadLabel(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
