package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

// notificationLimit is how many notifications the bell menu shows.
const notificationLimit = 50

type UserService struct {
	users         UserStore
	notifications NotificationStore
	cache         *cache.QueryCache
}

func NewUserService(users UserStore, notifications NotificationStore, qc *cache.QueryCache) *UserService {
	return &UserService{users: users, notifications: notifications, cache: qc}
}

// EnsureProfile returns the user's profile, creating it on first sign-in.
// The result is cached per user, so admin changes apply within the
// UserScoped stale time.
func (s *UserService) EnsureProfile(ctx context.Context, userID, email string) (*model.Profile, error) {
	key := cache.NewKey(cache.EntityProfile).ForUser(userID)
	return cache.Fetch(ctx, s.cache, key, cache.UserScoped, func(ctx context.Context) (*model.Profile, error) {
		return s.users.EnsureProfile(ctx, userID, email)
	})
}

func (s *UserService) Subscriptions(ctx context.Context, userID string) ([]model.Channel, error) {
	key := cache.NewKey(cache.EntitySubscriptions).ForUser(userID)
	return cache.Fetch(ctx, s.cache, key, cache.UserScoped, func(ctx context.Context) ([]model.Channel, error) {
		return s.users.Subscriptions(ctx, userID)
	})
}

// Subscribe is idempotent.
func (s *UserService) Subscribe(ctx context.Context, userID, channelID string) error {
	if err := s.users.Subscribe(ctx, userID, channelID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.NewKey(cache.EntitySubscriptions).ForUser(userID))
	return nil
}

func (s *UserService) Unsubscribe(ctx context.Context, userID, channelID string) error {
	if err := s.users.Unsubscribe(ctx, userID, channelID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.NewKey(cache.EntitySubscriptions).ForUser(userID))
	return nil
}

// HiddenChannels returns the ids of the channels a user has hidden.
func (s *UserService) HiddenChannels(ctx context.Context, userID string) ([]string, error) {
	key := cache.NewKey(cache.EntityHidden).ForUser(userID)
	return cache.Fetch(ctx, s.cache, key, cache.UserScoped, func(ctx context.Context) ([]string, error) {
		return s.users.HiddenChannelIDs(ctx, userID)
	})
}

// Hide is idempotent.
func (s *UserService) Hide(ctx context.Context, userID, channelID string) error {
	if err := s.users.Hide(ctx, userID, channelID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.NewKey(cache.EntityHidden).ForUser(userID))
	return nil
}

func (s *UserService) Unhide(ctx context.Context, userID, channelID string) error {
	if err := s.users.Unhide(ctx, userID, channelID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.NewKey(cache.EntityHidden).ForUser(userID))
	return nil
}

// Notifications returns the newest notifications and the unread count.
func (s *UserService) Notifications(ctx context.Context, userID string) (*model.NotificationList, error) {
	var list model.NotificationList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := cache.Fetch(gctx, s.cache, cache.NotificationsKey(userID), cache.UserScoped,
			func(ctx context.Context) ([]model.Notification, error) {
				return s.notifications.ListForUser(ctx, userID, notificationLimit)
			})
		list.Notifications = items
		return err
	})
	g.Go(func() error {
		unread, err := s.UnreadCount(gctx, userID)
		list.Unread = unread
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &list, nil
}

func (s *UserService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return cache.Fetch(ctx, s.cache, cache.UnreadKey(userID), cache.UserScoped,
		func(ctx context.Context) (int64, error) {
			return s.notifications.CountUnread(ctx, userID)
		})
}

func (s *UserService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.notifications.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.NotificationsKey(userID), cache.UnreadKey(userID))
	return nil
}

// MarkAllRead returns the number of notifications changed.
func (s *UserService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, cache.NotificationsKey(userID), cache.UnreadKey(userID))
	return n, nil
}

// SignOut drops everything cached for the user. Tokens stay valid until they
// expire; the identity provider owns revocation.
func (s *UserService) SignOut(ctx context.Context, userID string) {
	s.cache.ClearUser(ctx, userID)
}
