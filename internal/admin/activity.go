package admin

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
)

type ActivityFilter struct {
	Page   int
	Limit  int
	Type   string
	UserID string
	Read   *bool
}

type NotificationDetail struct {
	model.Notification
	UserDetails     *UserCard `json:"userDetails,omitempty"`
	FromUserDetails *UserCard `json:"fromUserDetails,omitempty"`
}

type ActivityPage struct {
	Activities []NotificationDetail `json:"activities"`
	Pagination Pagination           `json:"pagination"`
}

// Activity pages through notifications, newest first, with the recipient
// and sender attached.
func (m *Manager) Activity(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	page, limit := pageAndLimit(filter.Page, filter.Limit, 50)
	q := docstore.From(model.CollectionNotifications)
	if filter.Type != "" {
		q = q.Where("type", docstore.OpEqual, filter.Type)
	}
	if filter.UserID != "" {
		q = q.Where("userId", docstore.OpEqual, filter.UserID)
	}
	if filter.Read != nil {
		q = q.Where("read", docstore.OpEqual, *filter.Read)
	}

	total, err := m.store.Count(ctx, q)
	if err != nil {
		return ActivityPage{}, fmt.Errorf("failed to count notifications: %w", err)
	}
	items, err := docstore.QueryAs[model.Notification](ctx, m.store, q.OrderBy("createdAt", docstore.Desc).Limit(limit).Offset((page-1)*limit))
	if err != nil {
		return ActivityPage{}, fmt.Errorf("failed to list notifications: %w", err)
	}

	ids := make([]string, 0, 2*len(items))
	for _, n := range items {
		ids = append(ids, n.UserID, n.FromUserID)
	}
	cards, err := m.cards(ctx, ids, false)
	if err != nil {
		return ActivityPage{}, fmt.Errorf("failed to load users: %w", err)
	}

	out := ActivityPage{Activities: make([]NotificationDetail, 0, len(items)), Pagination: paginate(page, limit, total)}
	for _, n := range items {
		out.Activities = append(out.Activities, NotificationDetail{
			Notification:    n,
			UserDetails:     cardPtr(cards, n.UserID),
			FromUserDetails: cardPtr(cards, n.FromUserID),
		})
	}
	return out, nil
}

// Notification returns one notification with full user details.
func (m *Manager) Notification(ctx context.Context, id string) (NotificationDetail, error) {
	n, err := docstore.GetAs[model.Notification](ctx, m.store, model.CollectionNotifications, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return NotificationDetail{}, ErrNotificationNotFound
	}
	if err != nil {
		return NotificationDetail{}, err
	}
	cards, err := m.cards(ctx, []string{n.UserID, n.FromUserID}, true)
	if err != nil {
		return NotificationDetail{}, fmt.Errorf("failed to load users: %w", err)
	}
	return NotificationDetail{
		Notification:    n,
		UserDetails:     cardPtr(cards, n.UserID),
		FromUserDetails: cardPtr(cards, n.FromUserID),
	}, nil
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type UserActivity struct {
	UserID string `json:"userId"`
	Count  int    `json:"notificationCount"`
}

type NotificationStats struct {
	Total               int            `json:"totalNotifications"`
	Read                int            `json:"readNotifications"`
	Unread              int            `json:"unreadNotifications"`
	ByType              map[string]int `json:"notificationsByType"`
	ByDay               map[string]int `json:"notificationsByDay"`
	MostActiveUsers     []UserActivity `json:"mostActiveUsers"`
	SystemNotifications int            `json:"systemNotifications"`
}

type ActivityStats struct {
	Period    string            `json:"period"`
	DateRange DateRange         `json:"dateRange"`
	Stats     NotificationStats `json:"stats"`
}

// ActivityStats aggregates the notifications created during the period.
// Periods are 7d, 30d or 90d; anything else counts as 7d.
func (m *Manager) ActivityStats(ctx context.Context, period string) (ActivityStats, error) {
	end := m.now().UTC()
	start := end.Add(-Period(period, 7*24*time.Hour))

	items, err := docstore.QueryAs[model.Notification](ctx, m.store, docstore.From(model.CollectionNotifications).
		Where("createdAt", docstore.OpGreaterEqual, start))
	if err != nil {
		return ActivityStats{}, fmt.Errorf("failed to list notifications: %w", err)
	}

	stats := NotificationStats{ByType: map[string]int{}, ByDay: map[string]int{}}
	perUser := map[string]int{}
	for _, n := range items {
		stats.Total++
		if n.Read {
			stats.Read++
		} else {
			stats.Unread++
		}
		if n.System() {
			stats.SystemNotifications++
		}
		stats.ByType[string(n.Type)]++
		stats.ByDay[n.CreatedAt.UTC().Format(time.DateOnly)]++
		perUser[n.UserID]++
	}
	stats.MostActiveUsers = topN(perUser, 10, func(id string, c int) UserActivity {
		return UserActivity{UserID: id, Count: c}
	})

	return ActivityStats{
		Period:    period,
		DateRange: DateRange{Start: start, End: end},
		Stats:     stats,
	}, nil
}

// topN returns the n keys with the highest counts, ties broken by key.
func topN[T any](counts map[string]int, n int, build func(string, int) T) []T {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	out := make([]T, 0, min(n, len(keys)))
	for _, k := range keys[:min(n, len(keys))] {
		out = append(out, build(k, counts[k]))
	}
	return out
}
