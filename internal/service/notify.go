package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// Notifier is the notification sink. Notify runs inside the caller's scope,
// so a notification is only emitted if the change it reports commits.
type Notifier interface {
	Notify(ctx context.Context, repos repository.Repositories, n *model.Notification) error
}

// StoreNotifier writes notifications to the store's outbox, from where the
// delivery service picks them up.
type StoreNotifier struct {
	logger *slog.Logger
}

func NewStoreNotifier(logger *slog.Logger) *StoreNotifier {
	return &StoreNotifier{logger: logger}
}

func (s *StoreNotifier) Notify(ctx context.Context, repos repository.Repositories, n *model.Notification) error {
	if err := repos.Notifications().CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("service/notify: storing %s for %s: %w", n.Type, n.ToUser, err)
	}
	s.logger.Debug("notification queued",
		slog.String("notificationID", n.ID),
		slog.String("to", n.ToUser),
		slog.String("type", string(n.Type)),
	)
	return nil
}

// NotificationService reads a user's queued notifications back.
type NotificationService struct {
	store repository.Store
	authz Authorizer
}

func NewNotificationService(store repository.Store, authz Authorizer) *NotificationService {
	return &NotificationService{store: store, authz: authz}
}

// ListNotifications returns one page of notifications addressed to userID,
// newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, actor model.Actor, userID string, page, perPage int) ([]model.Notification, error) {
	if err := requireSelfOrAdmin(s.authz, actor, userID); err != nil {
		return nil, err
	}
	opts, _, _ := pageOptions(page, perPage)
	notifications, err := s.store.Notifications().ListNotifications(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/notify: listing for %s: %w", userID, err)
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return notifications, nil
}
