// Package social maintains the follow graph. Following someone is worth XP
// to the followed user and unfollowing takes it back.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/user"
)

const FollowXP = 10

var (
	ErrFollowSelf       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrNotFollowing     = errors.New("not following this user")
)

type Manager struct {
	logger *slog.Logger
	store  docstore.Store
	now    func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store) Manager {
	return Manager{logger: logger, store: store, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) Follow(ctx context.Context, followerID, followingID string) (model.Follow, error) {
	var edge model.Follow
	if followerID == followingID {
		return edge, ErrFollowSelf
	}

	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := user.Get(ctx, tx, followerID); err != nil {
			return err
		}
		now := m.now().UTC()
		if _, err := user.AddXP(ctx, tx, followingID, FollowXP, now); err != nil {
			return err
		}

		edge = model.Follow{
			ID:          model.FollowID(followerID, followingID),
			FollowerID:  followerID,
			FollowingID: followingID,
			CreatedAt:   now,
		}
		if err := tx.Create(ctx, model.CollectionFollowers, edge.ID, edge); err != nil {
			if errors.Is(err, docstore.ErrAlreadyExists) {
				return ErrAlreadyFollowing
			}
			return fmt.Errorf("failed to create follow edge: %w", err)
		}
		return nil
	})
	return edge, err
}

func (m *Manager) Unfollow(ctx context.Context, followerID, followingID string) error {
	return m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		id := model.FollowID(followerID, followingID)
		exists, err := docstore.Exists(ctx, tx, model.CollectionFollowers, id)
		if err != nil {
			return fmt.Errorf("failed to check follow edge: %w", err)
		}
		if !exists {
			return ErrNotFollowing
		}
		if err := tx.Delete(ctx, model.CollectionFollowers, id); err != nil {
			return fmt.Errorf("failed to delete follow edge: %w", err)
		}

		// The followed account may be gone; the edge is removed either way.
		if _, err := user.AddXP(ctx, tx, followingID, -FollowXP, m.now()); err != nil && !errors.Is(err, user.ErrUserNotFound) {
			return err
		}
		return nil
	})
}

type Connection struct {
	UID        string        `json:"uid"`
	Name       string        `json:"name"`
	Profile    model.Profile `json:"profile"`
	FollowedAt time.Time     `json:"followedAt"`
}

// Followers lists who follows userID.
func (m *Manager) Followers(ctx context.Context, userID string) ([]Connection, error) {
	return m.connections(ctx, "followingId", userID, func(f model.Follow) string { return f.FollowerID })
}

// Following lists who userID follows.
func (m *Manager) Following(ctx context.Context, userID string) ([]Connection, error) {
	return m.connections(ctx, "followerId", userID, func(f model.Follow) string { return f.FollowingID })
}

func (m *Manager) connections(ctx context.Context, field, userID string, other func(model.Follow) string) ([]Connection, error) {
	if _, err := user.Get(ctx, m.store, userID); err != nil {
		return nil, err
	}

	edges, err := docstore.QueryAs[model.Follow](ctx, m.store, docstore.From(model.CollectionFollowers).
		Where(field, docstore.OpEqual, userID).
		OrderBy("createdAt", docstore.Desc))
	if err != nil {
		return nil, fmt.Errorf("failed to list follow edges: %w", err)
	}

	out := make([]Connection, 0, len(edges))
	for _, e := range edges {
		u, err := user.Get(ctx, m.store, other(e))
		if errors.Is(err, user.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Connection{UID: u.ID, Name: u.Name, Profile: u.Profile, FollowedAt: e.CreatedAt})
	}
	return out, nil
}
