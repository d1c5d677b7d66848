package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/monitoring"

	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotOwner             = errors.New("notification belongs to another user")
)

type Manager struct {
	logger  *slog.Logger
	store   docstore.Store
	metrics *monitoring.Metrics
	now     func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store, metrics *monitoring.Metrics) Manager {
	return Manager{logger: logger, store: store, metrics: metrics, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

type NotifyParam struct {
	UserID       string
	Type         model.NotificationType
	FromUserID   string
	FromUserName string
	TargetID     string
	TargetType   string
	Message      string
	Metadata     map[string]any
}

// Build returns the notification document for params without storing it,
// so it can be written inside a caller's transaction.
func (m *Manager) Build(params NotifyParam) model.Notification {
	from, fromName := params.FromUserID, params.FromUserName
	if from == "" {
		from, fromName = model.SystemUserID, model.SystemUserName
	}
	return model.Notification{
		ID:           uuid.NewString(),
		UserID:       params.UserID,
		Type:         params.Type,
		FromUserID:   from,
		FromUserName: fromName,
		TargetID:     params.TargetID,
		TargetType:   params.TargetType,
		Message:      params.Message,
		Metadata:     params.Metadata,
		CreatedAt:    m.now().UTC(),
	}
}

// Put writes a built notification through w, usually a transaction.
func Put(ctx context.Context, w docstore.Writer, n model.Notification) error {
	if err := w.Create(ctx, model.CollectionNotifications, n.ID, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (m *Manager) Notify(ctx context.Context, params NotifyParam) (model.Notification, error) {
	n := m.Build(params)
	err := Put(ctx, m.store, n)
	m.metrics.RecordNotification(string(params.Type), err)
	if err != nil {
		return n, err
	}
	return n, nil
}

// NotifyBestEffort logs failures instead of returning them. Domain actions
// call it after their own write has committed.
func (m *Manager) NotifyBestEffort(ctx context.Context, params NotifyParam) {
	if _, err := m.Notify(ctx, params); err != nil {
		m.logger.Warn("Failed to send notification", "type", params.Type, "user_id", params.UserID, "error", err)
	}
}

// NotifyMany fans one message out to several users and reports how many were stored.
func (m *Manager) NotifyMany(ctx context.Context, userIDs []string, params NotifyParam) int {
	sent := 0
	for _, userID := range userIDs {
		p := params
		p.UserID = userID
		if _, err := m.Notify(ctx, p); err != nil {
			m.logger.Warn("Failed to send notification", "type", params.Type, "user_id", userID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

type ListParams struct {
	UserID     string
	Limit      int
	StartAfter string
	UnreadOnly bool
}

func (m *Manager) List(ctx context.Context, params ListParams) ([]model.Notification, error) {
	q := docstore.From(model.CollectionNotifications).Where("userId", docstore.OpEqual, params.UserID)
	if params.UnreadOnly {
		q = q.Where("read", docstore.OpEqual, false)
	}
	q = q.OrderBy("createdAt", docstore.Desc)
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if params.StartAfter != "" {
		q = q.StartAfter(params.StartAfter)
	}

	items, err := docstore.QueryAs[model.Notification](ctx, m.store, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

func (m *Manager) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := m.store.Count(ctx, docstore.From(model.CollectionNotifications).
		Where("userId", docstore.OpEqual, userID).
		Where("read", docstore.OpEqual, false))
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one notification as read. Only its recipient may do so.
func (m *Manager) MarkRead(ctx context.Context, notificationID, userID string) (model.Notification, error) {
	var result model.Notification
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		n, err := docstore.GetAs[model.Notification](ctx, tx, model.CollectionNotifications, notificationID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrNotificationNotFound
			}
			return err
		}
		if userID != "" && n.UserID != userID {
			return ErrNotOwner
		}
		if !n.Read {
			now := m.now().UTC()
			n.Read = true
			n.ReadAt = &now
			if err := tx.Set(ctx, model.CollectionNotifications, n.ID, n); err != nil {
				return err
			}
		}
		result = n
		return nil
	})
	return result, err
}

// MarkAllRead marks every unread notification of the user and returns how many changed.
func (m *Manager) MarkAllRead(ctx context.Context, userID string) (int, error) {
	updated := 0
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		updated = 0
		unread, err := docstore.QueryAs[model.Notification](ctx, tx, docstore.From(model.CollectionNotifications).
			Where("userId", docstore.OpEqual, userID).
			Where("read", docstore.OpEqual, false))
		if err != nil {
			return err
		}
		now := m.now().UTC()
		for _, n := range unread {
			n.Read = true
			n.ReadAt = &now
			if err := tx.Set(ctx, model.CollectionNotifications, n.ID, n); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return updated, nil
}
