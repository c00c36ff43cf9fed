package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var examStart = time.Date(2030, 1, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[uint]int
}

func (n *recordingNotifier) SlotsChanged(sessionID uint, available int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[uint]int{}
	}
	n.calls[sessionID] = available
}

func newSession(t *testing.T, db *gorm.DB, startsAt time.Time, slots int) models.ExamSession {
	t.Helper()
	s := models.ExamSession{
		ExamType:       models.ExamTypeTheory,
		ExamDate:       time.Date(startsAt.Year(), startsAt.Month(), startsAt.Day(), 0, 0, 0, 0, time.UTC),
		ExamTime:       startsAt.Format("15:04"),
		Center:         "JPJ Wangsa Maju",
		TotalSlots:     slots,
		AvailableSlots: slots,
		Status:         models.SessionScheduled,
	}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func newLedger(db *gorm.DB, now time.Time) *SlotLedger {
	l := NewSlotLedger(db, 24*time.Hour)
	l.SetClock(func() time.Time { return now })
	return l
}

// assertBalanced checks available = total - live bookings for the session.
func assertBalanced(t *testing.T, db *gorm.DB, sessionID uint) models.ExamSession {
	t.Helper()
	var s models.ExamSession
	require.NoError(t, db.First(&s, sessionID).Error)
	var live int64
	require.NoError(t, db.Model(&models.Booking{}).
		Where("exam_session_id = ? AND status IN ?", sessionID, []string{models.BookingConfirmed, models.BookingCompleted}).
		Count(&live).Error)
	assert.Equal(t, s.TotalSlots-int(live), s.AvailableSlots, "slot ledger out of balance")
	assert.GreaterOrEqual(t, s.AvailableSlots, 0)
	assert.LessOrEqual(t, s.AvailableSlots, s.TotalSlots)
	return s
}

func TestBookSlotDecrementsAvailableSlots(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 3)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))
	notifier := &recordingNotifier{}
	ledger.SetNotifier(notifier)

	booking, err := ledger.BookSlot(context.Background(), session.ID, 7)
	require.NoError(t, err)

	assert.NotZero(t, booking.ID)
	assert.Equal(t, models.BookingConfirmed, booking.Status)
	assert.Equal(t, 2, booking.ExamSession.AvailableSlots)
	assert.Equal(t, 2, notifier.calls[session.ID])
	s := assertBalanced(t, db, session.ID)
	assert.Equal(t, 2, s.AvailableSlots)
}

func TestBookSlotRejectsDuplicate(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 3)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))

	_, err := ledger.BookSlot(context.Background(), session.ID, 7)
	require.NoError(t, err)

	_, err = ledger.BookSlot(context.Background(), session.ID, 7)
	assert.ErrorIs(t, err, ErrDuplicateBooking)

	s := assertBalanced(t, db, session.ID)
	assert.Equal(t, 2, s.AvailableSlots)
}

func TestBookSlotAllowsRebookingAfterCancel(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 1)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))
	ctx := context.Background()

	first, err := ledger.BookSlot(ctx, session.ID, 7)
	require.NoError(t, err)
	_, err = ledger.CancelBooking(ctx, first.ID, 7)
	require.NoError(t, err)

	second, err := ledger.BookSlot(ctx, session.ID, 7)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	s := assertBalanced(t, db, session.ID)
	assert.Equal(t, 0, s.AvailableSlots)
}

func TestBookSlotFullSession(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 1)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))

	_, err := ledger.BookSlot(context.Background(), session.ID, 1)
	require.NoError(t, err)

	_, err = ledger.BookSlot(context.Background(), session.ID, 2)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	var count int64
	require.NoError(t, db.Model(&models.Booking{}).Where("user_id = ?", 2).Count(&count).Error)
	assert.Zero(t, count, "failed booking must not leave a row behind")
	assertBalanced(t, db, session.ID)
}

func TestBookSlotNotBookable(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		ledger := newLedger(db, examStart.Add(-72*time.Hour))
		_, err := ledger.BookSlot(ctx, 9999, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cancelled session", func(t *testing.T) {
		session := newSession(t, db, examStart, 5)
		require.NoError(t, db.Model(&session).Update("status", models.SessionCancelled).Error)
		ledger := newLedger(db, examStart.Add(-72*time.Hour))
		_, err := ledger.BookSlot(ctx, session.ID, 1)
		assert.ErrorIs(t, err, ErrSessionNotBookable)
	})

	t.Run("session already started", func(t *testing.T) {
		session := newSession(t, db, examStart, 5)
		ledger := newLedger(db, examStart)
		_, err := ledger.BookSlot(ctx, session.ID, 1)
		assert.ErrorIs(t, err, ErrSessionNotBookable)
		s := assertBalanced(t, db, session.ID)
		assert.Equal(t, 5, s.AvailableSlots)
	})
}

func TestCancelBookingCutoffBoundary(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"well before cutoff", examStart.Add(-48 * time.Hour), nil},
		{"one second before cutoff", examStart.Add(-24*time.Hour - time.Second), nil},
		{"exactly at cutoff", examStart.Add(-24 * time.Hour), ErrTooLateToCancel},
		{"inside cutoff", examStart.Add(-2 * time.Hour), ErrTooLateToCancel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := dbtest.New(t)
			session := newSession(t, db, examStart, 2)
			ctx := context.Background()

			booking, err := newLedger(db, examStart.Add(-7*24*time.Hour)).BookSlot(ctx, session.ID, 7)
			require.NoError(t, err)

			cancelled, err := newLedger(db, tc.now).CancelBooking(ctx, booking.ID, 7)
			s := assertBalanced(t, db, session.ID)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 1, s.AvailableSlots)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.BookingCancelled, cancelled.Status)
			assert.Nil(t, cancelled.ActiveKey)
			assert.Equal(t, 2, s.AvailableSlots)
		})
	}
}

func TestCancelBookingOwnership(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 2)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))
	ctx := context.Background()

	booking, err := ledger.BookSlot(ctx, session.ID, 7)
	require.NoError(t, err)

	_, err = ledger.CancelBooking(ctx, booking.ID, 8)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ledger.CancelBooking(ctx, booking.ID, 7)
	require.NoError(t, err)

	_, err = ledger.CancelBooking(ctx, booking.ID, 7)
	assert.ErrorIs(t, err, ErrBookingNotActive)

	s := assertBalanced(t, db, session.ID)
	assert.Equal(t, 2, s.AvailableSlots, "a second cancel must not return the slot twice")
}

func TestBookSlotConcurrentLastSlot(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 1)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))

	const users = 5
	errs := make([]error, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.BookSlot(context.Background(), session.ID, uint(100+i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	assert.Equal(t, 1, succeeded)

	s := assertBalanced(t, db, session.ID)
	assert.Equal(t, 0, s.AvailableSlots)
}

func TestCancelSessionRestoresSlots(t *testing.T) {
	db := dbtest.New(t)
	session := newSession(t, db, examStart, 4)
	ledger := newLedger(db, examStart.Add(-72*time.Hour))
	ctx := context.Background()

	for _, uid := range []uint{1, 2, 3} {
		_, err := ledger.BookSlot(ctx, session.ID, uid)
		require.NoError(t, err)
	}

	affected, err := ledger.CancelSession(ctx, session.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{1, 2, 3}, affected)

	s := assertBalanced(t, db, session.ID)
	assert.Equal(t, models.SessionCancelled, s.Status)
	assert.Equal(t, 4, s.AvailableSlots)

	_, err = ledger.CancelSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteDueSessions(t *testing.T) {
	db := dbtest.New(t)
	past := newSession(t, db, examStart, 2)
	future := newSession(t, db, examStart.Add(48*time.Hour), 2)
	ctx := context.Background()

	booker := newLedger(db, examStart.Add(-72*time.Hour))
	_, err := booker.BookSlot(ctx, past.ID, 1)
	require.NoError(t, err)
	_, err = booker.BookSlot(ctx, future.ID, 1)
	require.NoError(t, err)

	n, err := newLedger(db, examStart.Add(time.Hour)).CompleteDueSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s := assertBalanced(t, db, past.ID)
	assert.Equal(t, models.SessionCompleted, s.Status)
	assert.Equal(t, 1, s.AvailableSlots)

	var b models.Booking
	require.NoError(t, db.Where("exam_session_id = ?", past.ID).First(&b).Error)
	assert.Equal(t, models.BookingCompleted, b.Status)

	f := assertBalanced(t, db, future.ID)
	assert.Equal(t, models.SessionScheduled, f.Status)
}

func TestLedgerReadsExamDateInSchedulingZone(t *testing.T) {
	db := dbtest.New(t)
	kl := time.FixedZone("MYT", 8*3600)
	// scheduled for 2030-01-10 09:00 in Kuala Lumpur, stored as a UTC instant
	session := models.ExamSession{
		ExamType:       models.ExamTypeTheory,
		ExamDate:       time.Date(2030, 1, 10, 0, 0, 0, 0, kl).In(time.UTC),
		ExamTime:       "09:00",
		TotalSlots:     2,
		AvailableSlots: 2,
		Status:         models.SessionScheduled,
	}
	require.NoError(t, db.Create(&session).Error)
	ctx := context.Background()

	// 15 hours before the exam
	ledger := newLedger(db, time.Date(2030, 1, 9, 10, 0, 0, 0, time.UTC))
	ledger.SetLocation(kl)

	booking, err := ledger.BookSlot(ctx, session.ID, 7)
	require.NoError(t, err, "exam has not started yet in its own zone")

	_, err = ledger.CancelBooking(ctx, booking.ID, 7)
	assert.ErrorIs(t, err, ErrTooLateToCancel)

	n, err := ledger.CompleteDueSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assertBalanced(t, db, session.ID)
}
