// Package workshop runs workshops from draft to completion and the
// enrollment state machine of their participants.
package workshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/monitoring"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/util"

	"github.com/google/uuid"
)

const (
	CreateXP   = 50
	EnrollXP   = 10
	CompleteXP = 200

	DayReminderLead  = 24 * time.Hour
	HourReminderLead = time.Hour
)

var (
	ErrWorkshopNotFound    = errors.New("workshop not found")
	ErrCreatorRoleRequired = errors.New("only workshop creators can create workshops")
	ErrNotCreator          = errors.New("only the workshop creator can do this")
	ErrNotEditable         = errors.New("cannot edit a workshop that is ongoing, completed or cancelled")
	ErrNotDraft            = errors.New("only draft workshops can be published")
	ErrAlreadyClosed       = errors.New("workshop was already completed or cancelled")
	ErrDateNotInFuture     = errors.New("workshop date must be in the future")
	ErrCapacityBelowSeats  = errors.New("max participants cannot be lower than the enrolled count")
)

// Policy holds the operator-tunable enrollment rules.
type Policy struct {
	// CutoffWindow closes enrollment this long before the scheduled start.
	CutoffWindow time.Duration
	// PromoteWaitlist moves the oldest waitlisted user into a seat freed by a cancellation.
	PromoteWaitlist bool

	// Zero values fall back to EnrollXP, CompleteXP and the reminder lead constants.
	EnrollXP         int
	CompleteXP       int
	DayReminderLead  time.Duration
	HourReminderLead time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.EnrollXP == 0 {
		p.EnrollXP = EnrollXP
	}
	if p.CompleteXP == 0 {
		p.CompleteXP = CompleteXP
	}
	if p.DayReminderLead == 0 {
		p.DayReminderLead = DayReminderLead
	}
	if p.HourReminderLead == 0 {
		p.HourReminderLead = HourReminderLead
	}
	return p
}

type Manager struct {
	logger   *slog.Logger
	store    docstore.Store
	notifier *notifications.Manager
	certs    *certificate.Manager
	meetings MeetingService
	metrics  *monitoring.Metrics
	policy   Policy
	now      func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store, notifier *notifications.Manager, certs *certificate.Manager, metrics *monitoring.Metrics, policy Policy) Manager {
	return Manager{
		logger:   logger,
		store:    store,
		notifier: notifier,
		certs:    certs,
		meetings: NewPlaceholderMeetings(),
		metrics:  metrics,
		policy:   policy.withDefaults(),
		now:      time.Now,
	}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) SetMeetingService(s MeetingService) {
	m.meetings = s
}

type CreateInput struct {
	Title                   string            `json:"title" validate:"required,max=200"`
	Description             string            `json:"description" validate:"required"`
	Category                string            `json:"category" validate:"omitempty,oneof=data_analysis data_science bi data_engineering visualization other"`
	Difficulty              string            `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Duration                int               `json:"duration" validate:"omitempty,min=15"`
	MaxParticipants         int               `json:"maxParticipants" validate:"omitempty,min=1"`
	Prerequisites           []string          `json:"prerequisites"`
	LearningObjectives      []string          `json:"learningObjectives"`
	Tags                    []string          `json:"tags"`
	ScheduledDate           time.Time         `json:"scheduledDate" validate:"required"`
	StartTime               string            `json:"startTime" validate:"omitempty,hhmm"`
	EndTime                 string            `json:"endTime" validate:"omitempty,hhmm"`
	Timezone                string            `json:"timezone" validate:"omitempty,iana_tz"`
	MeetingType             model.MeetingType `json:"meetingType" validate:"omitempty,oneof=google_meet teams"`
	AutoGenerateCertificate *bool             `json:"autoGenerateCertificate"`
	SendReminders           *bool             `json:"sendReminders"`
	AllowWaitlist           *bool             `json:"allowWaitlist"`
}

// Create stores a draft workshop and rewards its creator.
func (m *Manager) Create(ctx context.Context, creatorID string, in CreateInput) (model.Workshop, error) {
	now := m.now().UTC()
	if !in.ScheduledDate.After(now) {
		return model.Workshop{}, ErrDateNotInFuture
	}

	w := model.Workshop{
		ID:                      uuid.NewString(),
		Title:                   strings.TrimSpace(in.Title),
		Description:             strings.TrimSpace(in.Description),
		Category:                valueOr(in.Category, "other"),
		Difficulty:              valueOr(in.Difficulty, "beginner"),
		Duration:                valueOr(in.Duration, 60),
		MaxParticipants:         valueOr(in.MaxParticipants, 20),
		Prerequisites:           nonNil(in.Prerequisites),
		LearningObjectives:      nonNil(in.LearningObjectives),
		Tags:                    qa.NormalizeTags(in.Tags),
		CreatorID:               creatorID,
		ScheduledDate:           in.ScheduledDate.UTC(),
		StartTime:               in.StartTime,
		EndTime:                 in.EndTime,
		Timezone:                valueOr(in.Timezone, model.DefaultTimezone),
		MeetingType:             valueOr(in.MeetingType, model.MeetingTypeGoogleMeet),
		Status:                  model.WorkshopStatusDraft,
		AutoGenerateCertificate: in.AutoGenerateCertificate == nil || *in.AutoGenerateCertificate,
		SendReminders:           in.SendReminders == nil || *in.SendReminders,
		AllowWaitlist:           in.AllowWaitlist != nil && *in.AllowWaitlist,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		creator, err := user.Get(ctx, tx, creatorID)
		if err != nil {
			return err
		}
		if !creator.CanCreateWorkshops() {
			return ErrCreatorRoleRequired
		}
		w.CreatorName = creator.Name
		if err := tx.Create(ctx, model.CollectionWorkshops, w.ID, w); err != nil {
			return fmt.Errorf("failed to create workshop: %w", err)
		}
		creator.AddXP(CreateXP, now)
		creator.Stats.WorkshopsCreated++
		return tx.Set(ctx, model.CollectionUsers, creator.ID, creator)
	})
	if err != nil {
		return model.Workshop{}, err
	}

	// The room is allocated after commit; a failed provider call falls back to a placeholder.
	meeting := m.meeting(ctx, w)
	w, err = m.mutate(ctx, w.ID, func(w *model.Workshop, _ time.Time) error {
		w.MeetingLink, w.MeetingID, w.MeetingType = meeting.Link, meeting.ID, meeting.Type
		return nil
	})
	if err != nil {
		return w, err
	}

	m.logger.Info("Workshop created", "workshop_id", w.ID, "creator_id", creatorID)
	return w, nil
}

func (m *Manager) meeting(ctx context.Context, w model.Workshop) MeetingInfo {
	info, err := m.meetings.Generate(ctx, w.MeetingType, w.Title, w.ScheduledDate, w.Duration)
	if err != nil {
		m.logger.Warn("Failed to generate meeting link", "workshop_id", w.ID, "error", err)
		return fallbackMeeting(w.MeetingType, m.now())
	}
	return info
}

// Details is a workshop as a prospective participant sees it.
type Details struct {
	Workshop       model.Workshop
	CanEnroll      bool
	RemainingSpots int
}

func (m *Manager) Get(ctx context.Context, workshopID string) (Details, error) {
	w, err := m.workshop(ctx, m.store, workshopID)
	if err != nil {
		return Details{}, err
	}
	return Details{Workshop: w, CanEnroll: m.CanEnroll(w), RemainingSpots: w.RemainingSpots()}, nil
}

// CanEnroll applies the enrollment policy without looking at any particular user.
func (m *Manager) CanEnroll(w model.Workshop) bool {
	return w.Status == model.WorkshopStatusPublished && m.open(w) && (w.HasSeat() || w.AllowWaitlist)
}

// open reports whether the cutoff has not passed yet.
func (m *Manager) open(w model.Workshop) bool {
	return m.now().Before(w.ScheduledDate.Add(-m.policy.CutoffWindow))
}

type AvailableParams struct {
	ViewerID   string
	Category   string
	Difficulty string
	Search     string
	Limit      int
	StartAfter string
}

type Listing struct {
	Workshop         model.Workshop         `json:"workshop"`
	CanEnroll        bool                   `json:"canEnroll"`
	RemainingSpots   int                    `json:"remainingSpots"`
	IsEnrolled       bool                   `json:"isEnrolled"`
	EnrollmentStatus model.EnrollmentStatus `json:"enrollmentStatus,omitempty"`
}

type AvailablePage struct {
	Workshops []Listing
	Limit     int
	HasMore   bool
	LastID    string
}

// Available lists published upcoming workshops, soonest first.
func (m *Manager) Available(ctx context.Context, params AvailableParams) (AvailablePage, error) {
	page := AvailablePage{Limit: params.Limit}
	if page.Limit <= 0 {
		page.Limit = 20
	}

	q := docstore.From(model.CollectionWorkshops).
		Where("status", docstore.OpEqual, string(model.WorkshopStatusPublished)).
		Where("scheduledDate", docstore.OpGreater, m.now().UTC())
	if params.Category != "" {
		q = q.Where("category", docstore.OpEqual, params.Category)
	}
	if params.Difficulty != "" {
		q = q.Where("difficulty", docstore.OpEqual, params.Difficulty)
	}
	q = q.OrderBy("scheduledDate", docstore.Asc).Limit(page.Limit).StartAfter(params.StartAfter)

	workshops, err := docstore.QueryAs[model.Workshop](ctx, m.store, q)
	if err != nil {
		return page, fmt.Errorf("failed to list workshops: %w", err)
	}
	page.HasMore = len(workshops) == page.Limit
	if len(workshops) > 0 {
		page.LastID = workshops[len(workshops)-1].ID
	}

	page.Workshops = make([]Listing, 0, len(workshops))
	for _, w := range workshops {
		if !qa.MatchesSearch(params.Search, w.Title, w.Description, w.Tags) {
			continue
		}
		l := Listing{Workshop: w, CanEnroll: m.CanEnroll(w), RemainingSpots: w.RemainingSpots()}
		if params.ViewerID != "" {
			e, err := docstore.GetAs[model.Enrollment](ctx, m.store, model.CollectionWorkshopEnrollments, model.EnrollmentID(w.ID, params.ViewerID))
			switch {
			case err == nil:
				l.IsEnrolled = e.Status.Active()
				l.EnrollmentStatus = e.Status
			case !errors.Is(err, docstore.ErrNotFound):
				return page, err
			}
		}
		page.Workshops = append(page.Workshops, l)
	}
	return page, nil
}

// Created lists the creator's workshops, newest first. An empty status means all.
func (m *Manager) Created(ctx context.Context, creatorID string, status model.WorkshopStatus, limit int) ([]model.Workshop, error) {
	q := docstore.From(model.CollectionWorkshops).Where("creatorId", docstore.OpEqual, creatorID)
	if status != "" {
		q = q.Where("status", docstore.OpEqual, string(status))
	}
	if limit <= 0 {
		limit = 20
	}
	workshops, err := docstore.QueryAs[model.Workshop](ctx, m.store, q.OrderBy("createdAt", docstore.Desc).Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list created workshops: %w", err)
	}
	return workshops, nil
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Title                   util.Optional[string]            `json:"title"`
	Description             util.Optional[string]            `json:"description"`
	Category                util.Optional[string]            `json:"category"`
	Difficulty              util.Optional[string]            `json:"difficulty"`
	Duration                util.Optional[int]               `json:"duration"`
	MaxParticipants         util.Optional[int]               `json:"maxParticipants"`
	Prerequisites           util.Optional[[]string]          `json:"prerequisites"`
	LearningObjectives      util.Optional[[]string]          `json:"learningObjectives"`
	Tags                    util.Optional[[]string]          `json:"tags"`
	ScheduledDate           util.Optional[time.Time]         `json:"scheduledDate"`
	StartTime               util.Optional[string]            `json:"startTime"`
	EndTime                 util.Optional[string]            `json:"endTime"`
	Timezone                util.Optional[string]            `json:"timezone"`
	MeetingType             util.Optional[model.MeetingType] `json:"meetingType"`
	AutoGenerateCertificate util.Optional[bool]              `json:"autoGenerateCertificate"`
	SendReminders           util.Optional[bool]              `json:"sendReminders"`
	AllowWaitlist           util.Optional[bool]              `json:"allowWaitlist"`
}

var ErrInvalidUpdate = errors.New("invalid workshop update")

func (in UpdateInput) check(now time.Time) error {
	switch {
	case in.Title.IsSet && strings.TrimSpace(in.Title.Val) == "":
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidUpdate)
	case in.Category.IsSet && !slices.Contains(model.WorkshopCategories, in.Category.Val):
		return fmt.Errorf("%w: unknown category", ErrInvalidUpdate)
	case in.Difficulty.IsSet && !slices.Contains(model.WorkshopDifficulties, in.Difficulty.Val):
		return fmt.Errorf("%w: unknown difficulty", ErrInvalidUpdate)
	case in.Duration.IsSet && in.Duration.Val < 15:
		return fmt.Errorf("%w: duration must be at least 15 minutes", ErrInvalidUpdate)
	case in.MaxParticipants.IsSet && in.MaxParticipants.Val < 1:
		return fmt.Errorf("%w: max participants must be at least 1", ErrInvalidUpdate)
	case in.MeetingType.IsSet && in.MeetingType.Val != model.MeetingTypeGoogleMeet && in.MeetingType.Val != model.MeetingTypeTeams:
		return fmt.Errorf("%w: unknown meeting type", ErrInvalidUpdate)
	case in.ScheduledDate.IsSet && !in.ScheduledDate.Val.After(now):
		return ErrDateNotInFuture
	}
	return nil
}

// Update edits a workshop that has not started. Changing the title, date or
// meeting type allocates a new meeting room.
func (m *Manager) Update(ctx context.Context, workshopID, requesterID string, in UpdateInput) (model.Workshop, error) {
	if err := in.check(m.now()); err != nil {
		return model.Workshop{}, err
	}

	w, err := m.mutate(ctx, workshopID, func(w *model.Workshop, now time.Time) error {
		if w.CreatorID != requesterID {
			return ErrNotCreator
		}
		if !w.Editable() {
			return ErrNotEditable
		}
		if in.MaxParticipants.IsSet && in.MaxParticipants.Val < w.EnrolledCount {
			return ErrCapacityBelowSeats
		}
		if in.Title.IsSet {
			w.Title = strings.TrimSpace(in.Title.Val)
		}
		in.Description.ApplyTo(&w.Description)
		in.Category.ApplyTo(&w.Category)
		in.Difficulty.ApplyTo(&w.Difficulty)
		in.Duration.ApplyTo(&w.Duration)
		in.MaxParticipants.ApplyTo(&w.MaxParticipants)
		in.Prerequisites.ApplyTo(&w.Prerequisites)
		in.LearningObjectives.ApplyTo(&w.LearningObjectives)
		if in.Tags.IsSet {
			w.Tags = qa.NormalizeTags(in.Tags.Val)
		}
		if in.ScheduledDate.IsSet {
			w.ScheduledDate = in.ScheduledDate.Val.UTC()
			w.RemindersSent = model.RemindersSent{}
		}
		in.StartTime.ApplyTo(&w.StartTime)
		in.EndTime.ApplyTo(&w.EndTime)
		in.Timezone.ApplyTo(&w.Timezone)
		in.MeetingType.ApplyTo(&w.MeetingType)
		in.AutoGenerateCertificate.ApplyTo(&w.AutoGenerateCertificate)
		in.SendReminders.ApplyTo(&w.SendReminders)
		in.AllowWaitlist.ApplyTo(&w.AllowWaitlist)
		return nil
	})
	if err != nil {
		return w, err
	}

	if in.Title.IsSet || in.ScheduledDate.IsSet || in.MeetingType.IsSet {
		meeting := m.meeting(ctx, w)
		w, err = m.mutate(ctx, w.ID, func(w *model.Workshop, _ time.Time) error {
			w.MeetingLink, w.MeetingID, w.MeetingType = meeting.Link, meeting.ID, meeting.Type
			return nil
		})
	}
	return w, err
}

// Publish opens a draft workshop for enrollment.
func (m *Manager) Publish(ctx context.Context, workshopID, requesterID string) (model.Workshop, error) {
	w, err := m.mutate(ctx, workshopID, func(w *model.Workshop, now time.Time) error {
		if w.CreatorID != requesterID {
			return ErrNotCreator
		}
		if w.Status != model.WorkshopStatusDraft {
			return ErrNotDraft
		}
		if !w.ScheduledDate.After(now) {
			return ErrDateNotInFuture
		}
		w.Status = model.WorkshopStatusPublished
		w.PublishedAt = &now
		return nil
	})
	if err == nil {
		m.logger.Info("Workshop published", "workshop_id", workshopID)
	}
	return w, err
}

type CancelResult struct {
	Workshop      model.Workshop
	Affected      int
	NotifiedUsers int
}

// Cancel closes the workshop and cancels every enrolled or waitlisted
// participant in the same transaction. Participants are told afterwards.
func (m *Manager) Cancel(ctx context.Context, workshopID, requesterID, reason string) (CancelResult, error) {
	var (
		result   CancelResult
		affected []string
	)
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		affected = affected[:0]
		w, err := m.workshop(ctx, tx, workshopID)
		if err != nil {
			return err
		}
		if w.CreatorID != requesterID {
			return ErrNotCreator
		}
		if w.Status == model.WorkshopStatusCompleted || w.Status == model.WorkshopStatusCancelled {
			return ErrAlreadyClosed
		}

		enrollments, err := docstore.QueryAs[model.Enrollment](ctx, tx, docstore.From(model.CollectionWorkshopEnrollments).
			Where("workshopId", docstore.OpEqual, workshopID).
			Where("status", docstore.OpIn, []string{string(model.EnrollmentEnrolled), string(model.EnrollmentWaitlisted)}))
		if err != nil {
			return err
		}

		now := m.now().UTC()
		for _, e := range enrollments {
			prev := e.Status
			e.PreviousStatus = &prev
			e.Status = model.EnrollmentCancelled
			e.CancelledAt = &now
			e.UpdatedAt = now
			if err := tx.Set(ctx, model.CollectionWorkshopEnrollments, e.ID, e); err != nil {
				return err
			}
			affected = append(affected, e.UserID)
		}

		w.Status = model.WorkshopStatusCancelled
		w.CancelledAt = &now
		w.CancellationReason = reason
		w.EnrolledCount = 0
		w.UpdatedAt = now
		result.Workshop = w
		return tx.Set(ctx, model.CollectionWorkshops, w.ID, w)
	})
	if err != nil {
		return CancelResult{}, err
	}

	message := fmt.Sprintf("The workshop %q was cancelled.", result.Workshop.Title)
	if reason != "" {
		message += " Reason: " + reason
	}
	result.Affected = len(affected)
	result.NotifiedUsers = m.notifier.NotifyMany(ctx, affected, notifications.NotifyParam{
		Type:       model.NotificationWorkshopCancelled,
		TargetID:   workshopID,
		TargetType: "workshop",
		Message:    message,
		Metadata:   map[string]any{"reason": reason},
	})

	m.logger.Info("Workshop cancelled", "workshop_id", workshopID, "affected", result.Affected)
	return result, nil
}

func (m *Manager) mutate(ctx context.Context, workshopID string, fn func(w *model.Workshop, now time.Time) error) (model.Workshop, error) {
	var result model.Workshop
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		w, err := m.workshop(ctx, tx, workshopID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		if err := fn(&w, now); err != nil {
			return err
		}
		w.UpdatedAt = now
		result = w
		return tx.Set(ctx, model.CollectionWorkshops, w.ID, w)
	})
	return result, err
}

func (m *Manager) workshop(ctx context.Context, r docstore.Reader, workshopID string) (model.Workshop, error) {
	if workshopID == "" {
		return model.Workshop{}, ErrWorkshopNotFound
	}
	w, err := docstore.GetAs[model.Workshop](ctx, r, model.CollectionWorkshops, workshopID)
	if errors.Is(err, docstore.ErrNotFound) {
		return w, ErrWorkshopNotFound
	}
	if err != nil {
		return w, fmt.Errorf("failed to get workshop %s: %w", workshopID, err)
	}
	return w, nil
}

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
