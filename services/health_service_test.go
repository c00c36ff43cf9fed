package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReportWithDatabaseOnly(t *testing.T) {
	db := dbtest.New(t)
	newSession(t, db, examStart, 4)
	newSession(t, db, examStart.Add(3*time.Hour), 6)
	past := newSession(t, db, examStart.AddDate(0, 0, -30), 5)
	require.NoError(t, db.Model(&past).Update("status", models.SessionCompleted).Error)

	svc := NewHealthService(db, nil, "", "")
	svc.now = func() time.Time { return examStart.AddDate(0, 0, -2) }
	report := svc.GetHealthReport(context.Background())

	assert.Equal(t, overallStatusOK, report.Status)
	assert.Equal(t, defaultServiceName, report.Service)
	require.Len(t, report.Dependencies, 2)
	assert.Equal(t, "sqlite", report.Dependencies[0].Name)
	assert.Equal(t, dependencyStatusUp, report.Dependencies[0].Status)
	assert.Equal(t, dependencyStatusDisabled, report.Dependencies[1].Status)
	assert.Equal(t, http.StatusOK, svc.HTTPStatusForOverall(report.Status))

	require.NotNil(t, report.Portal)
	assert.Equal(t, int64(2), report.Portal.UpcomingSessions)
	assert.Equal(t, int64(10), report.Portal.OpenSlots)
	assert.Zero(t, report.Portal.PendingRenewals)
}

func TestHealthReportWithoutDatabase(t *testing.T) {
	svc := NewHealthService(nil, nil, "portal", "2.0.0")
	report := svc.GetHealthReport(context.Background())

	assert.Equal(t, overallStatusCritical, report.Status)
	assert.Nil(t, report.Portal)
	assert.Equal(t, http.StatusServiceUnavailable, svc.HTTPStatusForOverall(report.Status))
}

func TestCombineStatus(t *testing.T) {
	tests := []struct {
		current, candidate, want string
	}{
		{overallStatusOK, overallStatusDegraded, overallStatusDegraded},
		{overallStatusDegraded, overallStatusOK, overallStatusDegraded},
		{overallStatusDegraded, overallStatusCritical, overallStatusCritical},
		{"bogus", overallStatusOK, overallStatusOK},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, combineStatus(tc.current, tc.candidate))
	}
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{26*time.Hour + 3*time.Minute, "1d 2h 3m"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, humanizeDuration(tc.in))
		})
	}
}
