package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/models"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []delivery.Job
	err  error
}

func (r *recordingSubmitter) Submit(job delivery.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSubmitter) Jobs() []delivery.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Job(nil), r.jobs...)
}

type staticDirectory struct {
	ids []string
	err error
}

func (d staticDirectory) AllUserIDs(context.Context) ([]string, error) {
	return d.ids, d.err
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func countNotifications(t *testing.T, db *gorm.DB) int64 {
	return countRows(t, db, &models.Notification{})
}

func countEntries(t *testing.T, db *gorm.DB) int64 {
	return countRows(t, db, &models.FanoutEntry{})
}
