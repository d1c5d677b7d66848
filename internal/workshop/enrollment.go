package workshop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/user"
)

var (
	ErrNotPublished          = errors.New("workshop is not open for enrollment")
	ErrEnrollmentClosed      = errors.New("enrollment for this workshop is closed")
	ErrAlreadyEnrolled       = errors.New("you are already enrolled in this workshop")
	ErrAlreadyWaitlisted     = errors.New("you are already on the waitlist for this workshop")
	ErrAlreadyCompleted      = errors.New("you have already completed this workshop")
	ErrAlreadyAttended       = errors.New("you have already attended this workshop")
	ErrWorkshopFull          = errors.New("workshop is full")
	ErrEnrollmentNotFound    = errors.New("enrollment not found")
	ErrAlreadyCancelled      = errors.New("enrollment was already cancelled")
	ErrCannotCancelCompleted = errors.New("cannot cancel a completed workshop")
	ErrNotCancellable        = errors.New("enrollment can no longer be cancelled")
	ErrNotParticipated       = errors.New("user did not take part in the workshop")
	ErrInvalidRating         = errors.New("rating must be between 1 and 5")
)

type EnrollResult struct {
	Enrollment   model.Enrollment
	Workshop     model.Workshop
	XPAwarded    int
	ReEnrollment bool
}

// Enroll claims a seat for the user, or a waitlist spot when the workshop is
// full and allows one. The seat check, the counter and the XP are one
// transaction, so enrolledCount never exceeds maxParticipants.
func (m *Manager) Enroll(ctx context.Context, workshopID, userID string) (EnrollResult, error) {
	var result EnrollResult
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = EnrollResult{}
		w, err := m.workshop(ctx, tx, workshopID)
		if err != nil {
			return err
		}
		if w.Status != model.WorkshopStatusPublished {
			return ErrNotPublished
		}
		if !m.open(w) {
			return ErrEnrollmentClosed
		}

		id := model.EnrollmentID(workshopID, userID)
		existing, err := docstore.GetAs[model.Enrollment](ctx, tx, model.CollectionWorkshopEnrollments, id)
		found := err == nil
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		if found {
			if err := rejectActive(existing.Status); err != nil {
				return err
			}
		}

		u, err := user.Get(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		e := model.Enrollment{
			ID:         id,
			WorkshopID: workshopID,
			UserID:     userID,
			UserName:   valueOr(u.Name, "User"),
			UserEmail:  u.Email,
			EnrolledAt: now,
			UpdatedAt:  now,
		}
		if found {
			prev := existing.Status
			e.PreviousStatus = &prev
			e.ReEnrolledAt = &now
			result.ReEnrollment = true
		}

		switch {
		case w.HasSeat():
			e.Status = model.EnrollmentEnrolled
			w.EnrolledCount++
			w.UpdatedAt = now
			if err := tx.Set(ctx, model.CollectionWorkshops, w.ID, w); err != nil {
				return err
			}
			u.AddXP(m.policy.EnrollXP, now)
			if err := tx.Set(ctx, model.CollectionUsers, u.ID, u); err != nil {
				return err
			}
			result.XPAwarded = m.policy.EnrollXP
		case w.AllowWaitlist:
			e.Status = model.EnrollmentWaitlisted
		default:
			return ErrWorkshopFull
		}

		// Set rather than Create: a cancelled or no-show record is reused in place.
		if err := tx.Set(ctx, model.CollectionWorkshopEnrollments, e.ID, e); err != nil {
			return fmt.Errorf("failed to store enrollment: %w", err)
		}
		result.Enrollment = e
		result.Workshop = w
		return nil
	})
	if err != nil {
		return EnrollResult{}, err
	}

	m.metrics.RecordEnrollment(string(result.Enrollment.Status))
	m.logger.Info("User enrolled", "workshop_id", workshopID, "user_id", userID, "status", result.Enrollment.Status)

	message := fmt.Sprintf("Enrollment confirmed for the workshop %q on %s.", result.Workshop.Title, scheduleLabel(result.Workshop))
	if result.Enrollment.Status == model.EnrollmentWaitlisted {
		message = fmt.Sprintf("You are on the waitlist for the workshop %q.", result.Workshop.Title)
	}
	m.notifier.NotifyBestEffort(ctx, notifications.NotifyParam{
		UserID:     userID,
		Type:       model.NotificationWorkshopEnrollment,
		TargetID:   workshopID,
		TargetType: "workshop",
		Message:    message,
		Metadata: map[string]any{
			"enrollmentId":  result.Enrollment.ID,
			"status":        string(result.Enrollment.Status),
			"scheduledDate": result.Workshop.ScheduledDate,
		},
	})
	return result, nil
}

func rejectActive(status model.EnrollmentStatus) error {
	switch status {
	case model.EnrollmentEnrolled:
		return ErrAlreadyEnrolled
	case model.EnrollmentWaitlisted:
		return ErrAlreadyWaitlisted
	case model.EnrollmentCompleted:
		return ErrAlreadyCompleted
	case model.EnrollmentAttended:
		return ErrAlreadyAttended
	}
	return nil
}

type CancelEnrollmentResult struct {
	Enrollment model.Enrollment
	// Promoted is the waitlisted enrollment that took the freed seat, if any.
	Promoted *model.Enrollment
}

// CancelEnrollment gives up a seat or a waitlist spot. With waitlist
// promotion enabled the freed seat goes to the longest-waiting user in the
// same transaction.
func (m *Manager) CancelEnrollment(ctx context.Context, workshopID, userID string) (CancelEnrollmentResult, error) {
	var result CancelEnrollmentResult
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = CancelEnrollmentResult{}
		e, err := m.enrollment(ctx, tx, workshopID, userID)
		if err != nil {
			return err
		}
		switch e.Status {
		case model.EnrollmentEnrolled, model.EnrollmentWaitlisted:
		case model.EnrollmentCancelled:
			return ErrAlreadyCancelled
		case model.EnrollmentCompleted:
			return ErrCannotCancelCompleted
		default:
			return ErrNotCancellable
		}

		now := m.now().UTC()
		prev := e.Status
		e.PreviousStatus = &prev
		e.Status = model.EnrollmentCancelled
		e.CancelledAt = &now
		e.UpdatedAt = now
		if err := tx.Set(ctx, model.CollectionWorkshopEnrollments, e.ID, e); err != nil {
			return err
		}
		result.Enrollment = e

		if prev != model.EnrollmentEnrolled {
			return nil
		}

		w, err := m.workshop(ctx, tx, workshopID)
		if errors.Is(err, ErrWorkshopNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		w.EnrolledCount = max(0, w.EnrolledCount-1)
		w.UpdatedAt = now

		if m.policy.PromoteWaitlist && w.Status == model.WorkshopStatusPublished && w.HasSeat() {
			promoted, err := m.promote(ctx, tx, w, now)
			if err != nil {
				return err
			}
			if promoted != nil {
				w.EnrolledCount++
				result.Promoted = promoted
			}
		}
		return tx.Set(ctx, model.CollectionWorkshops, w.ID, w)
	})
	if err != nil {
		return CancelEnrollmentResult{}, err
	}

	m.metrics.RecordEnrollment(string(model.EnrollmentCancelled))
	if result.Promoted != nil {
		m.metrics.RecordEnrollment("promoted")
		m.logger.Info("Waitlisted user promoted", "workshop_id", workshopID, "user_id", result.Promoted.UserID)
	}
	return result, nil
}

// promote moves the oldest waitlisted enrollment into a seat and queues its
// notification in tx. It returns nil when nobody is waiting.
func (m *Manager) promote(ctx context.Context, tx docstore.Tx, w model.Workshop, now time.Time) (*model.Enrollment, error) {
	waiting, err := docstore.QueryAs[model.Enrollment](ctx, tx, docstore.From(model.CollectionWorkshopEnrollments).
		Where("workshopId", docstore.OpEqual, w.ID).
		Where("status", docstore.OpEqual, string(model.EnrollmentWaitlisted)).
		OrderBy("enrolledAt", docstore.Asc))
	if err != nil {
		return nil, err
	}

	for _, e := range waiting {
		u, err := user.AddXP(ctx, tx, e.UserID, m.policy.EnrollXP, now)
		if errors.Is(err, user.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		prev := e.Status
		e.PreviousStatus = &prev
		e.Status = model.EnrollmentEnrolled
		e.PromotedAt = &now
		e.UpdatedAt = now
		if err := tx.Set(ctx, model.CollectionWorkshopEnrollments, e.ID, e); err != nil {
			return nil, err
		}

		n := m.notifier.Build(notifications.NotifyParam{
			UserID:     u.ID,
			Type:       model.NotificationWorkshopEnrollment,
			TargetID:   w.ID,
			TargetType: "workshop",
			Message:    fmt.Sprintf("A seat opened up: you are now enrolled in the workshop %q.", w.Title),
			Metadata:   map[string]any{"enrollmentId": e.ID, "status": string(e.Status), "promoted": true},
		})
		if err := notifications.Put(ctx, tx, n); err != nil {
			return nil, err
		}
		return &e, nil
	}
	return nil, nil
}

type FeedbackInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type CompleteResult struct {
	Enrollment  model.Enrollment
	XPAwarded   int
	Certificate *model.Certificate
}

// Complete marks an enrolled or attended participant as finished and awards
// the completion XP. A certificate and a notification follow on a best-effort basis.
func (m *Manager) Complete(ctx context.Context, workshopID, userID string, feedback *FeedbackInput) (CompleteResult, error) {
	if feedback != nil && (feedback.Rating < 1 || feedback.Rating > 5) {
		return CompleteResult{}, ErrInvalidRating
	}

	var (
		result CompleteResult
		w      model.Workshop
	)
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = CompleteResult{}
		e, err := m.enrollment(ctx, tx, workshopID, userID)
		if err != nil {
			return err
		}
		switch e.Status {
		case model.EnrollmentEnrolled, model.EnrollmentAttended:
		case model.EnrollmentCompleted:
			return ErrAlreadyCompleted
		default:
			return ErrNotParticipated
		}

		w, err = m.workshop(ctx, tx, workshopID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		u, err := user.Get(ctx, tx, userID)
		if err != nil {
			return err
		}
		u.AddXP(m.policy.CompleteXP, now)
		u.Stats.WorkshopsCompleted++
		if err := tx.Set(ctx, model.CollectionUsers, u.ID, u); err != nil {
			return err
		}

		w.CompletedCount++
		w.UpdatedAt = now
		if err := tx.Set(ctx, model.CollectionWorkshops, w.ID, w); err != nil {
			return err
		}

		e.Status = model.EnrollmentCompleted
		e.CompletedAt = &now
		e.UpdatedAt = now
		if feedback != nil {
			e.Feedback = &model.Feedback{Rating: feedback.Rating, Comment: feedback.Comment, SubmittedAt: now}
		}
		if err := tx.Set(ctx, model.CollectionWorkshopEnrollments, e.ID, e); err != nil {
			return err
		}

		result.Enrollment = e
		result.XPAwarded = m.policy.CompleteXP
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}

	m.metrics.RecordEnrollment(string(model.EnrollmentCompleted))
	m.logger.Info("Workshop completed", "workshop_id", workshopID, "user_id", userID)

	if w.AutoGenerateCertificate && m.certs != nil {
		cert, err := m.certs.Issue(ctx, certificate.IssueParams{
			WorkshopID:    w.ID,
			WorkshopTitle: w.Title,
			UserID:        userID,
			UserName:      result.Enrollment.UserName,
			CreatorName:   w.CreatorName,
			Duration:      w.Duration,
			CompletedAt:   *result.Enrollment.CompletedAt,
		})
		if err != nil {
			m.logger.Warn("Failed to issue certificate", "workshop_id", workshopID, "user_id", userID, "error", err)
		} else {
			result.Certificate = &cert
			result.Enrollment.CertificateIssued = true
			result.Enrollment.CertificateID = cert.ID
		}
	}

	message := fmt.Sprintf("Congratulations! You completed the workshop %q and earned %d XP.", w.Title, m.policy.CompleteXP)
	metadata := map[string]any{"xpAwarded": m.policy.CompleteXP}
	if result.Certificate != nil {
		message += " Your certificate is ready."
		metadata["certificateId"] = result.Certificate.ID
	}
	m.notifier.NotifyBestEffort(ctx, notifications.NotifyParam{
		UserID:     userID,
		Type:       model.NotificationWorkshopCompleted,
		TargetID:   workshopID,
		TargetType: "workshop",
		Message:    message,
		Metadata:   metadata,
	})
	return result, nil
}

type EnrollmentView struct {
	EnrollmentID string           `json:"enrollmentId"`
	Workshop     *model.Workshop  `json:"workshop"`
	Enrollment   model.Enrollment `json:"enrollment"`
}

// Enrollments lists the user's enrollments, newest first, each with its workshop.
func (m *Manager) Enrollments(ctx context.Context, userID string, status model.EnrollmentStatus, limit int) ([]EnrollmentView, error) {
	q := docstore.From(model.CollectionWorkshopEnrollments).Where("userId", docstore.OpEqual, userID)
	if status != "" {
		q = q.Where("status", docstore.OpEqual, string(status))
	}
	if limit <= 0 {
		limit = 20
	}
	enrollments, err := docstore.QueryAs[model.Enrollment](ctx, m.store, q.OrderBy("enrolledAt", docstore.Desc).Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	views := make([]EnrollmentView, 0, len(enrollments))
	for _, e := range enrollments {
		v := EnrollmentView{EnrollmentID: e.ID, Enrollment: e}
		w, err := m.workshop(ctx, m.store, e.WorkshopID)
		switch {
		case err == nil:
			v.Workshop = &w
		case !errors.Is(err, ErrWorkshopNotFound):
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

type ParticipantSummary struct {
	Total      int `json:"total"`
	Enrolled   int `json:"enrolled"`
	Waitlisted int `json:"waitlisted"`
	Attended   int `json:"attended"`
	Completed  int `json:"completed"`
	NoShow     int `json:"no_show"`
	Cancelled  int `json:"cancelled"`
}

func (s *ParticipantSummary) add(status model.EnrollmentStatus) {
	s.Total++
	switch status {
	case model.EnrollmentEnrolled:
		s.Enrolled++
	case model.EnrollmentWaitlisted:
		s.Waitlisted++
	case model.EnrollmentAttended:
		s.Attended++
	case model.EnrollmentCompleted:
		s.Completed++
	case model.EnrollmentNoShow:
		s.NoShow++
	case model.EnrollmentCancelled:
		s.Cancelled++
	}
}

type Participants struct {
	Participants []model.Enrollment
	Summary      ParticipantSummary
}

// Participants lists a workshop's enrollments for its creator.
func (m *Manager) Participants(ctx context.Context, workshopID, requesterID string, status model.EnrollmentStatus) (Participants, error) {
	w, err := m.workshop(ctx, m.store, workshopID)
	if err != nil {
		return Participants{}, err
	}
	if w.CreatorID != requesterID {
		return Participants{}, ErrNotCreator
	}

	q := docstore.From(model.CollectionWorkshopEnrollments).Where("workshopId", docstore.OpEqual, workshopID)
	if status != "" {
		q = q.Where("status", docstore.OpEqual, string(status))
	}
	enrollments, err := docstore.QueryAs[model.Enrollment](ctx, m.store, q.OrderBy("enrolledAt", docstore.Desc))
	if err != nil {
		return Participants{}, fmt.Errorf("failed to list participants: %w", err)
	}

	out := Participants{Participants: enrollments}
	for _, e := range enrollments {
		out.Summary.add(e.Status)
	}
	return out, nil
}

func (m *Manager) enrollment(ctx context.Context, r docstore.Reader, workshopID, userID string) (model.Enrollment, error) {
	e, err := docstore.GetAs[model.Enrollment](ctx, r, model.CollectionWorkshopEnrollments, model.EnrollmentID(workshopID, userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return e, ErrEnrollmentNotFound
	}
	return e, err
}

// scheduleLabel renders the workshop date in its own timezone.
func scheduleLabel(w model.Workshop) string {
	at := w.ScheduledDate
	if loc, err := time.LoadLocation(w.Timezone); err == nil {
		at = at.In(loc)
	}
	label := at.Format("02/01/2006")
	if w.StartTime != "" {
		label += " at " + w.StartTime
	}
	return label
}
