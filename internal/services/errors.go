package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/fanout/pkg/errors"
)

// Errors returned by the fan-out services. They render directly through response.Error.
var (
	ErrEmptyTarget = apperrors.New("EMPTY_TARGET", "At least one recipient is required", http.StatusBadRequest)
	ErrValidation  = apperrors.New("VALIDATION_ERROR", "Title and body are required", http.StatusBadRequest)
	ErrPersistence = apperrors.New("PERSISTENCE_ERROR", "Notification could not be stored", http.StatusServiceUnavailable)

	ErrInvalidTransport  = apperrors.New("INVALID_TRANSPORT", "Unsupported transport", http.StatusBadRequest)
	ErrInvalidDescriptor = apperrors.New("INVALID_DESCRIPTOR", "Endpoint descriptor is invalid", http.StatusBadRequest)

	ErrNotificationNotFound = apperrors.ErrNotFound.WithMessage("Notification not found")
	ErrSubscriptionNotFound = apperrors.ErrNotFound.WithMessage("Subscription not found")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
