package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/models"
)

type gormSource struct {
	db *gorm.DB
}

func (s *gormSource) ListForRecipients(ctx context.Context, recipientIDs []string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).Where("recipient_id IN ?", recipientIDs).Order("id").Find(&subs).Error
	return subs, err
}

func TestPipelineNotifiesObserversWithoutHealthManager(t *testing.T) {
	source := &fakeSource{subs: map[string][]models.Subscription{
		"alice": {sub("s-1", "alice", models.TransportWebPush)},
	}}
	registry := NewAdapterRegistry()
	registry.Register(&fakeAdapter{transport: models.TransportWebPush})

	dispatcher, err := NewDispatcher(source, registry, DispatcherConfig{})
	require.NoError(t, err)

	var seen []Report
	pipeline, err := NewPipeline(dispatcher, nil, func(_ context.Context, report Report, evicted int64) {
		require.Zero(t, evicted)
		seen = append(seen, report)
	})
	require.NoError(t, err)

	pipeline.Handle(context.Background(), Job{Payload: Payload{NotificationID: "n1"}, Recipients: []string{"alice"}})

	require.Len(t, seen, 1)
	require.Equal(t, "n1", seen[0].NotificationID)
	require.Equal(t, 1, seen[0].Totals().Succeeded)
}

func TestNewPipelineRequiresDispatcher(t *testing.T) {
	_, err := NewPipeline(nil, nil)
	require.Error(t, err)
}
