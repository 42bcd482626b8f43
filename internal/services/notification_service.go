package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/internal/realtime"
	apperrors "github.com/charlesng35/fanout/pkg/errors"
	"github.com/charlesng35/fanout/pkg/logger"
	"github.com/charlesng35/fanout/pkg/metrics"
)

var errDispatchUnavailable = apperrors.ErrServiceUnavailable.WithMessage("Dispatch queue unavailable")

// DispatchMode selects who triggers delivery after a send commits.
type DispatchMode string

const (
	// DispatchModeDirect submits the dispatch job straight after commit.
	DispatchModeDirect DispatchMode = "direct"
	// DispatchModeEvents leaves dispatch to the ledger change events.
	DispatchModeEvents DispatchMode = "events"
)

// SendInput is the content of a new notification.
type SendInput struct {
	Title       string
	Body        string
	SenderLabel string
}

// LedgerEvent reports that a fan-out entry was written for a recipient.
type LedgerEvent struct {
	UserID         string `json:"userId"`
	NotificationID string `json:"notificationId"`
}

// PayloadDefaults are added to every push payload.
type PayloadDefaults struct {
	Icon string
	URL  string
}

// JobSubmitter accepts dispatch jobs without blocking.
type JobSubmitter interface {
	Submit(job delivery.Job) error
}

// NotificationEventPayload is the data carried by notification.* realtime events.
type NotificationEventPayload struct {
	NotificationID  string               `json:"notificationId,omitempty"`
	NotificationIDs []string             `json:"notificationIds,omitempty"`
	Notification    *models.Notification `json:"notification,omitempty"`
}

// NotificationServiceOption customises a NotificationService.
type NotificationServiceOption func(*NotificationService)

// WithDirectory sets the user directory used for broadcasts.
func WithDirectory(directory UserDirectory) NotificationServiceOption {
	return func(s *NotificationService) {
		if directory != nil {
			s.directory = directory
		}
	}
}

// WithDispatcher sets where dispatch jobs are submitted.
func WithDispatcher(dispatcher JobSubmitter) NotificationServiceOption {
	return func(s *NotificationService) {
		s.dispatcher = dispatcher
	}
}

// WithHub publishes ledger changes to connected clients.
func WithHub(hub *realtime.Hub) NotificationServiceOption {
	return func(s *NotificationService) {
		s.hub = hub
	}
}

// WithPayloadDefaults sets the icon and click URL of push payloads.
func WithPayloadDefaults(defaults PayloadDefaults) NotificationServiceOption {
	return func(s *NotificationService) {
		s.defaults = defaults
	}
}

// WithDispatchMode selects direct or event-driven dispatch.
func WithDispatchMode(mode DispatchMode) NotificationServiceOption {
	return func(s *NotificationService) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// NotificationService is the entry point for creating, reading and dispatching notifications.
type NotificationService struct {
	db         *gorm.DB
	store      *NotificationStore
	ledger     *FanoutLedger
	directory  UserDirectory
	resolver   *RecipientResolver
	dispatcher JobSubmitter
	hub        *realtime.Hub
	defaults   PayloadDefaults
	mode       DispatchMode
	log        *zap.Logger
}

// NewNotificationService constructs a NotificationService. Without WithDirectory the users
// table is used for broadcasts.
func NewNotificationService(db *gorm.DB, opts ...NotificationServiceOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}

	store, err := NewNotificationStore(db)
	if err != nil {
		return nil, err
	}
	ledger, err := NewFanoutLedger(db)
	if err != nil {
		return nil, err
	}

	svc := &NotificationService{
		db:     db,
		store:  store,
		ledger: ledger,
		mode:   DispatchModeDirect,
		log:    logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.directory == nil {
		svc.directory = DirectoryFromDB(db)
	}

	svc.resolver, err = NewRecipientResolver(svc.directory)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// SendBroadcast sends a notification to every user in the directory.
func (s *NotificationService) SendBroadcast(ctx context.Context, input SendInput) (string, error) {
	return s.send(ctx, input, Broadcast())
}

// SendTargeted sends a notification to the listed users. Duplicates collapse to one entry.
func (s *NotificationService) SendTargeted(ctx context.Context, input SendInput, userIDs []string) (string, error) {
	return s.send(ctx, input, TargetedList(userIDs...))
}

func (s *NotificationService) send(ctx context.Context, input SendInput, target Target) (string, error) {
	ctx = ensureContext(ctx)

	notification := models.Notification{
		Title:       strings.TrimSpace(input.Title),
		Body:        strings.TrimSpace(input.Body),
		SenderLabel: strings.TrimSpace(defaultIfEmpty(input.SenderLabel, models.DefaultSenderLabel)),
	}
	if notification.Title == "" || notification.Body == "" {
		return "", ErrValidation
	}
	if !target.IsBroadcast() && len(normaliseIDs(target.userIDs)) == 0 {
		return "", ErrEmptyTarget
	}

	var recipients []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.Create(ctx, tx, &notification); err != nil {
			return err
		}

		resolved, err := s.resolver.withTx(tx).Resolve(ctx, target)
		if err != nil {
			return err
		}

		if _, err := s.ledger.Insert(ctx, tx, notification.ID, resolved); err != nil {
			return err
		}
		recipients = resolved
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyTarget) {
			return "", ErrEmptyTarget
		}
		s.log.Error("persist notification", zap.Error(err))
		return "", ErrPersistence.WithInternal(err)
	}

	kind := "targeted"
	if target.IsBroadcast() {
		kind = "broadcast"
	}
	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	metrics.LedgerEntries.Add(float64(len(recipients)))

	s.publish(recipients, realtime.EventNotificationCreated, &NotificationEventPayload{
		NotificationID: notification.ID,
		Notification:   &notification,
	})

	if s.mode != DispatchModeEvents {
		s.submit(s.jobFor(notification, recipients, delivery.ReasonSend))
	}

	s.log.Info("notification sent",
		zap.String("notification_id", notification.ID),
		zap.String("kind", kind),
		zap.Int("recipients", len(recipients)),
	)
	return notification.ID, nil
}

// DispatchLedgerEvent delivers one notification to one recipient in response to a ledger
// change event. The entry must exist.
func (s *NotificationService) DispatchLedgerEvent(ctx context.Context, event LedgerEvent) error {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(event.UserID)
	notificationID := strings.TrimSpace(event.NotificationID)
	if userID == "" || notificationID == "" {
		return ErrValidation.WithMessage("userId and notificationId are required")
	}

	notification, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	exists, err := s.ledger.Exists(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotificationNotFound.WithMessage("Fan-out entry not found")
	}

	return s.submitChecked(s.jobFor(*notification, []string{userID}, delivery.ReasonEvent))
}

// Redispatch submits the notification again to every recipient in its ledger and returns
// the number of recipients.
func (s *NotificationService) Redispatch(ctx context.Context, notificationID string) (int, error) {
	ctx = ensureContext(ctx)
	notification, err := s.store.Get(ctx, strings.TrimSpace(notificationID))
	if err != nil {
		return 0, err
	}
	recipients, err := s.ledger.RecipientsOf(ctx, notification.ID)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}
	if err := s.submitChecked(s.jobFor(*notification, recipients, delivery.ReasonRedispatch)); err != nil {
		return 0, err
	}
	return len(recipients), nil
}

// Delete removes a notification and its fan-out entries.
func (s *NotificationService) Delete(ctx context.Context, notificationID string) error {
	ctx = ensureContext(ctx)
	notificationID = strings.TrimSpace(notificationID)

	recipients, err := s.ledger.RecipientsOf(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, notificationID); err != nil {
		return err
	}

	s.publish(recipients, realtime.EventNotificationDeleted, &NotificationEventPayload{
		NotificationID: notificationID,
	})
	return nil
}

// MarkRead marks the recipient's entries as read and returns how many changed.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	ids := normaliseIDs(notificationIDs)
	changed, err := s.ledger.MarkRead(ensureContext(ctx), userID, ids)
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.publish([]string{userID}, realtime.EventNotificationRead, &NotificationEventPayload{
			NotificationIDs: ids,
		})
	}
	return changed, nil
}

// List returns the user's feed and its total size.
func (s *NotificationService) List(ctx context.Context, userID string, limit, offset int) ([]FeedItem, int64, error) {
	return s.ledger.ListFor(ensureContext(ctx), userID, limit, offset)
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.ledger.UnreadCount(ensureContext(ctx), userID)
}

func (s *NotificationService) jobFor(notification models.Notification, recipients []string, reason string) delivery.Job {
	return delivery.Job{
		Payload: delivery.Payload{
			NotificationID: notification.ID,
			Title:          notification.Title,
			Body:           notification.Body,
			SenderLabel:    notification.SenderLabel,
			Icon:           s.defaults.Icon,
			URL:            s.defaults.URL,
		},
		Recipients: recipients,
		Reason:     reason,
	}
}

// submit hands the job to the dispatcher. The write already committed, so failures are
// only logged.
func (s *NotificationService) submit(job delivery.Job) {
	if len(job.Recipients) == 0 {
		return
	}
	if err := s.submitChecked(job); err != nil {
		s.log.Warn("dispatch not queued",
			zap.String("notification_id", job.Payload.NotificationID),
			zap.Int("recipients", len(job.Recipients)),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) submitChecked(job delivery.Job) error {
	if s.dispatcher == nil {
		return errDispatchUnavailable.WithInternal(errors.New("notification service: dispatcher not configured"))
	}
	if err := s.dispatcher.Submit(job); err != nil {
		return errDispatchUnavailable.WithInternal(fmt.Errorf("notification service: submit dispatch: %w", err))
	}
	return nil
}

func (s *NotificationService) publish(userIDs []string, event string, payload *NotificationEventPayload) {
	if s.hub == nil || len(userIDs) == 0 {
		return
	}
	s.hub.BroadcastToUsers(realtime.StreamNotifications, userIDs, realtime.Message{
		Event: event,
		Data:  payload,
	})
}
