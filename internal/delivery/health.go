package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/pkg/logger"
	"github.com/charlesng35/fanout/pkg/metrics"
)

const subscriptionsTable = "subscriptions"

// EvictionObserver is told which endpoints were removed after a reconcile.
type EvictionObserver func(ctx context.Context, evicted []FailedTarget)

// HealthManager removes endpoints that failed permanently. Rows are matched by id, so an
// endpoint re-registered after the failure (a new row) is never touched.
type HealthManager struct {
	db          *sql.DB
	placeholder sq.PlaceholderFormat
	observers   []EvictionObserver
	log         *zap.Logger
}

// HealthOption customises a HealthManager.
type HealthOption func(*HealthManager)

// WithEvictionObserver registers a callback invoked after rows are evicted.
func WithEvictionObserver(observer EvictionObserver) HealthOption {
	return func(h *HealthManager) {
		if observer != nil {
			h.observers = append(h.observers, observer)
		}
	}
}

// NewHealthManager builds a HealthManager on a raw connection. dialect selects the
// placeholder style ("postgres" uses $n, everything else ?).
func NewHealthManager(db *sql.DB, dialect string, opts ...HealthOption) (*HealthManager, error) {
	if db == nil {
		return nil, errors.New("health manager: db is required")
	}
	h := &HealthManager{
		db:          db,
		placeholder: placeholderFor(dialect),
		log:         logger.WithModule("endpoint-health"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// NewHealthManagerFromGorm reuses the pool behind a gorm handle.
func NewHealthManagerFromGorm(db *gorm.DB, opts ...HealthOption) (*HealthManager, error) {
	if db == nil {
		return nil, errors.New("health manager: db is required")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "health manager: unwrap gorm pool")
	}
	return NewHealthManager(sqlDB, db.Dialector.Name(), opts...)
}

func placeholderFor(dialect string) sq.PlaceholderFormat {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql", "pgx":
		return sq.Dollar
	default:
		return sq.Question
	}
}

// Reconcile deletes the subscription rows of permanently failed targets. Transient failures
// are left alone. It returns the number of rows removed; rows already gone count as zero.
func (h *HealthManager) Reconcile(ctx context.Context, report Report) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	transports, grouped := report.PermanentByTransport()
	if len(transports) == 0 {
		return 0, nil
	}

	wrapMsg := fmt.Sprintf("unable to evict endpoints for notification %s", report.NotificationID)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	removed := make(map[string]int64, len(transports))
	for _, transport := range transports {
		n, err := h.evict(ctx, tx, transport, grouped[transport])
		if err != nil {
			return 0, errors.Wrap(err, wrapMsg)
		}
		removed[transport] = n
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	for transport, n := range removed {
		if n > 0 {
			metrics.EndpointEvictions.WithLabelValues(transport).Add(float64(n))
		}
	}
	h.log.Info("evicted dead endpoints",
		zap.String("notification_id", report.NotificationID),
		zap.Int64("rows", total),
		zap.Int("candidates", len(report.PermanentFailures)),
	)

	if total > 0 {
		for _, observer := range h.observers {
			observer(ctx, report.PermanentFailures)
		}
	}
	return total, nil
}

func (h *HealthManager) evict(ctx context.Context, tx *sql.Tx, transport string, ids []string) (int64, error) {
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(h.placeholder).
		Delete(subscriptionsTable).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"transport": transport}).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
