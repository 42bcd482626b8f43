package delivery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/charlesng35/fanout/pkg/logger"
)

// ReportObserver receives every finished dispatch together with the number of evicted rows.
type ReportObserver func(ctx context.Context, report Report, evicted int64)

// Pipeline runs a job through dispatch and endpoint reconciliation.
type Pipeline struct {
	dispatcher *Dispatcher
	health     *HealthManager
	observers  []ReportObserver
	log        *zap.Logger
}

// NewPipeline wires a dispatcher to a health manager. health may be nil to skip eviction.
func NewPipeline(dispatcher *Dispatcher, health *HealthManager, observers ...ReportObserver) (*Pipeline, error) {
	if dispatcher == nil {
		return nil, errors.New("pipeline: dispatcher is required")
	}
	return &Pipeline{
		dispatcher: dispatcher,
		health:     health,
		observers:  observers,
		log:        logger.WithModule("dispatch"),
	}, nil
}

// Run dispatches job, reconciles permanent failures and notifies observers.
func (p *Pipeline) Run(ctx context.Context, job Job) (Report, int64, error) {
	report := p.dispatcher.Dispatch(ctx, job)

	var (
		evicted int64
		err     error
	)
	if p.health != nil {
		evicted, err = p.health.Reconcile(ctx, report)
		if err != nil {
			p.log.Error("reconcile endpoints", zap.String("notification_id", report.NotificationID), zap.Error(err))
		}
	}

	for _, observer := range p.observers {
		observer(ctx, report, evicted)
	}
	return report, evicted, err
}

// Handle implements JobHandler.
func (p *Pipeline) Handle(ctx context.Context, job Job) {
	report, evicted, _ := p.Run(ctx, job)
	totals := report.Totals()
	p.log.Info("dispatch finished",
		zap.String("notification_id", report.NotificationID),
		zap.String("reason", report.Reason),
		zap.Int("recipients", report.Recipients),
		zap.Int("targets", report.Targets),
		zap.Int("succeeded", totals.Succeeded),
		zap.Int("permanent", totals.Permanent),
		zap.Int("transient", totals.Transient),
		zap.Int64("evicted", evicted),
		zap.Duration("duration", report.Duration()),
	)
}
