package workshop

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
)

type CreatedStats struct {
	Total          int                          `json:"total"`
	ByStatus       map[model.WorkshopStatus]int `json:"byStatus"`
	TotalEnrolled  int                          `json:"totalEnrolled"`
	TotalCompleted int                          `json:"totalCompleted"`
}

type RecentActivity struct {
	WorkshopID  string                 `json:"workshopId"`
	Status      model.EnrollmentStatus `json:"status"`
	EnrolledAt  time.Time              `json:"enrolledAt"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
}

type Stats struct {
	TotalEnrollments     int              `json:"totalEnrollments"`
	CompletedWorkshops   int              `json:"completedWorkshops"`
	CertificatesEarned   int              `json:"certificatesEarned"`
	UpcomingWorkshops    int              `json:"upcomingWorkshops"`
	EnrolledWorkshops    int              `json:"enrolledWorkshops"`
	CancelledEnrollments int              `json:"cancelledEnrollments"`
	WaitlistedWorkshops  int              `json:"waitlistedWorkshops"`
	CompletionRate       float64          `json:"completionRate"`
	XPFromWorkshops      int              `json:"xpFromWorkshops"`
	RecentActivity       []RecentActivity `json:"recentActivity"`
	Created              CreatedStats     `json:"created"`
}

// Stats summarises the user's workshop activity as participant and creator.
// XPFromWorkshops is what the current records are worth, not a ledger.
func (m *Manager) Stats(ctx context.Context, userID string) (Stats, error) {
	stats := Stats{
		RecentActivity: []RecentActivity{},
		Created:        CreatedStats{ByStatus: map[model.WorkshopStatus]int{}},
	}

	enrollments, err := docstore.QueryAs[model.Enrollment](ctx, m.store, docstore.From(model.CollectionWorkshopEnrollments).
		Where("userId", docstore.OpEqual, userID).
		OrderBy("enrolledAt", docstore.Desc))
	if err != nil {
		return stats, fmt.Errorf("failed to list enrollments: %w", err)
	}

	now := m.now()
	for _, e := range enrollments {
		stats.TotalEnrollments++
		switch e.Status {
		case model.EnrollmentCompleted:
			stats.CompletedWorkshops++
			stats.XPFromWorkshops += m.policy.EnrollXP + m.policy.CompleteXP
		case model.EnrollmentEnrolled:
			stats.EnrolledWorkshops++
			stats.XPFromWorkshops += m.policy.EnrollXP
		case model.EnrollmentAttended:
			stats.XPFromWorkshops += m.policy.EnrollXP
		case model.EnrollmentCancelled:
			stats.CancelledEnrollments++
		case model.EnrollmentWaitlisted:
			stats.WaitlistedWorkshops++
		}

		if e.Status == model.EnrollmentEnrolled || e.Status == model.EnrollmentWaitlisted {
			w, err := m.workshop(ctx, m.store, e.WorkshopID)
			if err == nil && w.ScheduledDate.After(now) {
				stats.UpcomingWorkshops++
			}
		}
	}
	if stats.TotalEnrollments > 0 {
		stats.CompletionRate = math.Round(float64(stats.CompletedWorkshops)/float64(stats.TotalEnrollments)*1000) / 10
	}
	for _, e := range enrollments[:min(5, len(enrollments))] {
		stats.RecentActivity = append(stats.RecentActivity, RecentActivity{
			WorkshopID:  e.WorkshopID,
			Status:      e.Status,
			EnrolledAt:  e.EnrolledAt,
			CompletedAt: e.CompletedAt,
		})
	}

	stats.CertificatesEarned, err = m.store.Count(ctx, docstore.From(model.CollectionWorkshopCerts).Where("userId", docstore.OpEqual, userID))
	if err != nil {
		return stats, fmt.Errorf("failed to count certificates: %w", err)
	}

	created, err := docstore.QueryAs[model.Workshop](ctx, m.store, docstore.From(model.CollectionWorkshops).Where("creatorId", docstore.OpEqual, userID))
	if err != nil {
		return stats, fmt.Errorf("failed to list created workshops: %w", err)
	}
	for _, w := range created {
		stats.Created.Total++
		stats.Created.ByStatus[w.Status]++
		stats.Created.TotalEnrolled += w.EnrolledCount
		stats.Created.TotalCompleted += w.CompletedCount
	}
	stats.XPFromWorkshops += len(created) * CreateXP
	return stats, nil
}

// upcoming lists published workshops with reminders on that start by before.
func (m *Manager) upcoming(ctx context.Context, before time.Time) ([]model.Workshop, error) {
	workshops, err := docstore.QueryAs[model.Workshop](ctx, m.store, docstore.From(model.CollectionWorkshops).
		Where("status", docstore.OpEqual, string(model.WorkshopStatusPublished)).
		Where("scheduledDate", docstore.OpGreater, m.now().UTC()).
		Where("scheduledDate", docstore.OpLessEqual, before.UTC()).
		OrderBy("scheduledDate", docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming workshops: %w", err)
	}
	return slices.DeleteFunc(workshops, func(w model.Workshop) bool { return !w.SendReminders }), nil
}
