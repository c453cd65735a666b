package library

import (
	"context"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const (
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 200
)

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int                   `json:"total"`
	UnreadCount   int                   `json:"unreadCount"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// scope limits readers to their own feed plus broadcasts; staff see everything.
func scope(a Actor) store.NotificationScope {
	if a.IsStaff() {
		return store.NotificationScope{}
	}
	return store.NotificationScope{ReaderID: a.ReaderID, Restrict: true}
}

// ListNotifications returns one page of the feed, newest first.
func (s *Service) ListNotifications(ctx context.Context, a Actor, p store.Page) (*NotificationPage, error) {
	if p.Limit <= 0 {
		p.Limit = DefaultNotificationLimit
	}
	if p.Limit > MaxNotificationLimit {
		p.Limit = MaxNotificationLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sc := scope(a)
	items, err := s.store.ListNotifications(ctx, sc, p)
	if err != nil {
		return nil, s.read("list_notifications", err)
	}
	total, err := s.store.CountNotifications(ctx, sc, false)
	if err != nil {
		return nil, s.read("list_notifications", err)
	}
	unread, err := s.store.CountNotifications(ctx, sc, true)
	if err != nil {
		return nil, s.read("list_notifications", err)
	}
	return &NotificationPage{Notifications: items, Total: total, UnreadCount: unread, Limit: p.Limit, Offset: p.Offset}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, a Actor, id string) error {
	ok, err := s.store.MarkNotificationRead(ctx, id, scope(a))
	if err != nil {
		return s.read("mark_notification_read", err)
	}
	if !ok {
		return apperror.NotFound(apperror.CodeNotificationAbsent, "Notification not found")
	}
	return nil
}

// MarkAllNotificationsRead returns how many notifications changed.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, a Actor) (int, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, scope(a))
	return n, s.read("mark_all_notifications_read", err)
}
