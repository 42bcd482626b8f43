package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/delivery/webpush"
	"github.com/charlesng35/fanout/internal/models"
	apperrors "github.com/charlesng35/fanout/pkg/errors"
)

// SubscriptionRegistry stores the push endpoints of each recipient.
type SubscriptionRegistry struct {
	db *gorm.DB
}

// NewSubscriptionRegistry constructs a SubscriptionRegistry.
func NewSubscriptionRegistry(db *gorm.DB) (*SubscriptionRegistry, error) {
	if db == nil {
		return nil, errors.New("subscription registry: db is required")
	}
	return &SubscriptionRegistry{db: db}, nil
}

// Upsert registers an endpoint. Registering the same endpoint again returns the existing id
// with created=false.
func (r *SubscriptionRegistry) Upsert(ctx context.Context, recipientID, transport string, descriptor json.RawMessage) (string, bool, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	transport = strings.TrimSpace(transport)
	if recipientID == "" {
		return "", false, apperrors.NewBadRequest("Recipient is required")
	}
	if !models.IsValidTransport(transport) {
		return "", false, ErrInvalidTransport
	}

	canonical, err := canonicalDescriptor(transport, descriptor)
	if err != nil {
		return "", false, ErrInvalidDescriptor.WithInternal(err)
	}
	key := endpointKey(canonical)

	sub := models.Subscription{
		RecipientID:        recipientID,
		Transport:          transport,
		EndpointKey:        key,
		EndpointDescriptor: datatypes.JSON(canonical),
	}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return "", false, fmt.Errorf("subscription registry: create: %w", err)
		}
		existing, lookupErr := r.find(ctx, recipientID, transport, key)
		if lookupErr != nil {
			return "", false, lookupErr
		}
		return existing.ID, false, nil
	}
	return sub.ID, true, nil
}

func (r *SubscriptionRegistry) find(ctx context.Context, recipientID, transport, key string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND transport = ? AND endpoint_key = ?", recipientID, transport, key).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subscription registry: lookup: %w", err)
	}
	return &sub, nil
}

// Remove deletes a subscription owned by recipient.
func (r *SubscriptionRegistry) Remove(ctx context.Context, recipientID, id string) error {
	result := r.db.WithContext(ensureContext(ctx)).
		Where("id = ? AND recipient_id = ?", strings.TrimSpace(id), recipientID).
		Delete(&models.Subscription{})
	if result.Error != nil {
		return fmt.Errorf("subscription registry: remove: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListFor returns the subscriptions of one recipient.
func (r *SubscriptionRegistry) ListFor(ctx context.Context, recipientID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ensureContext(ctx)).
		Where("recipient_id = ?", recipientID).
		Order("created_at ASC, id ASC").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("subscription registry: list: %w", err)
	}
	return subs, nil
}

// ListForRecipients returns the subscriptions of every listed recipient. The dispatcher calls
// it for each job so eviction and new registrations are always seen.
func (r *SubscriptionRegistry) ListForRecipients(ctx context.Context, recipientIDs []string) ([]models.Subscription, error) {
	ids := normaliseIDs(recipientIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ensureContext(ctx)).
		Where("recipient_id IN ?", ids).
		Order("recipient_id ASC, created_at ASC, id ASC").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("subscription registry: list recipients: %w", err)
	}
	return subs, nil
}

// canonicalDescriptor validates raw for transport and returns its canonical JSON.
func canonicalDescriptor(transport string, raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("descriptor is empty")
	}
	switch transport {
	case models.TransportWebPush:
		desc, err := webpush.ParseDescriptor(raw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(desc)
	case models.TransportMobileToken, models.TransportRelay:
		token, err := delivery.DecodeToken(raw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(token)
	default:
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}
}

func endpointKey(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
