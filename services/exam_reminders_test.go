package services

import (
	"context"
	"testing"
	"time"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExamRemindersTomorrowOnly(t *testing.T) {
	db := dbtest.New(t)
	ledger := newLedger(db, examStart.AddDate(0, 0, -5))

	tomorrow := newSession(t, db, examStart, 5)
	tomorrowLate := newSession(t, db, examStart.Add(5*time.Hour), 5)
	later := newSession(t, db, examStart.AddDate(0, 0, 3), 5)

	ctx := context.Background()
	for _, b := range []struct{ session, user uint }{
		{tomorrow.ID, 1}, {tomorrowLate.ID, 1}, {tomorrow.ID, 2}, {later.ID, 3},
	} {
		_, err := ledger.BookSlot(ctx, b.session, b.user)
		require.NoError(t, err)
	}
	dropped, err := ledger.BookSlot(ctx, tomorrow.ID, 4)
	require.NoError(t, err)
	cancelled, err := ledger.CancelBooking(ctx, dropped.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)

	notices := &recordingNotices{}
	r := NewExamReminders(db, notices, time.UTC)
	r.now = func() time.Time { return examStart.AddDate(0, 0, -1).Add(-2 * time.Hour) }

	n, err := r.SendDailyReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, [][]uint{{1}, {2}}, notices.users)
	for _, title := range notices.sent {
		assert.Equal(t, "Exam reminder", title)
	}
}

func TestExamRemindersWithoutNotifier(t *testing.T) {
	db := dbtest.New(t)
	n, err := NewExamReminders(db, nil, time.UTC).SendDailyReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
