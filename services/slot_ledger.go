package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jpjportal_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrBookingNotActive is returned when cancelling a booking that is already
// cancelled or completed.
var ErrBookingNotActive = errors.New("this booking is no longer active")

// SlotNotifier is told about every committed change to a session's free slots.
type SlotNotifier interface {
	SlotsChanged(sessionID uint, available int)
}

// SlotLedger is the only writer of ExamSession.AvailableSlots. Every change to
// the counter commits in the same transaction as the booking rows it accounts
// for, so available_slots = total_slots - live bookings holds after each commit.
type SlotLedger struct {
	db       *gorm.DB
	now      func() time.Time
	cutoff   time.Duration
	notifier SlotNotifier
	loc      *time.Location
}

// NewSlotLedger creates a ledger. cutoff is the minimum notice for a cancellation.
func NewSlotLedger(db *gorm.DB, cutoff time.Duration) *SlotLedger {
	if cutoff <= 0 {
		cutoff = 24 * time.Hour
	}
	return &SlotLedger{db: db, now: time.Now, cutoff: cutoff}
}

// SetClock replaces the ledger's time source.
func (l *SlotLedger) SetClock(now func() time.Time) {
	l.now = now
}

// SetLocation sets the zone exam dates are scheduled in.
func (l *SlotLedger) SetLocation(loc *time.Location) {
	l.loc = loc
}

// SetNotifier registers a listener for slot changes.
func (l *SlotLedger) SetNotifier(n SlotNotifier) {
	l.notifier = n
}

// BookSlot reserves one slot of the session for the user.
func (l *SlotLedger) BookSlot(ctx context.Context, sessionID, userID uint) (*models.Booking, error) {
	var booking models.Booking
	var remaining int

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ExamSession
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return persistErr("load exam session", err)
		}
		if err := l.checkBookable(session); err != nil {
			return err
		}

		var live int64
		if err := tx.Model(&models.Booking{}).
			Where("user_id = ? AND exam_session_id = ? AND status <> ?", userID, sessionID, models.BookingCancelled).
			Count(&live).Error; err != nil {
			return persistErr("count live bookings", err)
		}
		if live > 0 {
			return ErrDuplicateBooking
		}

		// the slot check and the decrement are one statement, so two requests
		// racing for the last slot cannot both succeed
		res := tx.Model(&models.ExamSession{}).
			Where("id = ? AND status = ? AND available_slots > 0", sessionID, models.SessionScheduled).
			Update("available_slots", gorm.Expr("available_slots - 1"))
		if res.Error != nil {
			return persistErr("decrement available slots", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSlotUnavailable
		}

		booking = models.Booking{
			UserID:        userID,
			ExamSessionID: sessionID,
			Status:        models.BookingConfirmed,
			ActiveKey:     models.BookingActiveKey(userID, sessionID),
		}
		if err := tx.Create(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateBooking
			}
			return persistErr("create booking", err)
		}

		if err := tx.Model(&models.ExamSession{}).Select("available_slots").
			Where("id = ?", sessionID).Scan(&remaining).Error; err != nil {
			return persistErr("read available slots", err)
		}
		session.AvailableSlots = remaining
		booking.ExamSession = session
		return nil
	})

	bookingOutcomes.WithLabelValues("book", outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": sessionID,
		"user_id":    userID,
		"available":  remaining,
	}).Info("Exam slot booked")
	l.notify(sessionID, remaining)
	return &booking, nil
}

// CancelBooking releases the user's booking and returns its slot.
func (l *SlotLedger) CancelBooking(ctx context.Context, bookingID, userID uint) (*models.Booking, error) {
	var booking models.Booking
	var remaining int

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("ExamSession").
			Where("id = ? AND user_id = ?", bookingID, userID).
			First(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return persistErr("load booking", err)
		}
		if booking.Status != models.BookingConfirmed {
			return ErrBookingNotActive
		}

		startsAt, err := booking.ExamSession.StartsIn(l.loc)
		if err != nil {
			return persistErr("read exam start", err)
		}
		if !startsAt.After(l.now().Add(l.cutoff)) {
			return ErrTooLateToCancel
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ?", booking.ID, models.BookingConfirmed).
			Updates(map[string]interface{}{"status": models.BookingCancelled, "active_key": nil})
		if res.Error != nil {
			return persistErr("cancel booking", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrBookingNotActive
		}

		if err := l.release(tx, booking.ExamSessionID, 1); err != nil {
			return err
		}
		if err := tx.Model(&models.ExamSession{}).Select("available_slots").
			Where("id = ?", booking.ExamSessionID).Scan(&remaining).Error; err != nil {
			return persistErr("read available slots", err)
		}
		booking.Status = models.BookingCancelled
		booking.ActiveKey = nil
		booking.ExamSession.AvailableSlots = remaining
		return nil
	})

	bookingOutcomes.WithLabelValues("cancel", outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": booking.ExamSessionID,
		"user_id":    userID,
		"available":  remaining,
	}).Info("Exam booking cancelled")
	l.notify(booking.ExamSessionID, remaining)
	return &booking, nil
}

// CancelSession cancels a scheduled session together with its live bookings,
// returning their slots. It reports the user ids whose bookings were cancelled.
func (l *SlotLedger) CancelSession(ctx context.Context, sessionID uint) ([]uint, error) {
	var affected []uint
	var remaining int

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ExamSession
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return persistErr("load exam session", err)
		}
		if session.Status != models.SessionScheduled {
			return ErrInvalidTransition
		}

		var bookings []models.Booking
		if err := tx.Where("exam_session_id = ? AND status = ?", sessionID, models.BookingConfirmed).
			Find(&bookings).Error; err != nil {
			return persistErr("load session bookings", err)
		}
		for _, b := range bookings {
			affected = append(affected, b.UserID)
		}

		if len(bookings) > 0 {
			res := tx.Model(&models.Booking{}).
				Where("exam_session_id = ? AND status = ?", sessionID, models.BookingConfirmed).
				Updates(map[string]interface{}{"status": models.BookingCancelled, "active_key": nil})
			if res.Error != nil {
				return persistErr("cancel session bookings", res.Error)
			}
			if err := l.release(tx, sessionID, int(res.RowsAffected)); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.ExamSession{}).Where("id = ?", sessionID).
			Update("status", models.SessionCancelled).Error; err != nil {
			return persistErr("cancel exam session", err)
		}
		return tx.Model(&models.ExamSession{}).Select("available_slots").
			Where("id = ?", sessionID).Scan(&remaining).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"bookings":   len(affected),
	}).Info("Exam session cancelled")
	l.notify(sessionID, remaining)
	return affected, nil
}

// CompleteDueSessions marks scheduled sessions that have started as completed
// and moves their confirmed bookings to completed. Slot counts do not change:
// completed bookings still hold their slot.
func (l *SlotLedger) CompleteDueSessions(ctx context.Context) (int, error) {
	now := l.now()
	var candidates []models.ExamSession
	if err := l.db.WithContext(ctx).
		Where("status = ? AND exam_date <= ?", models.SessionScheduled, now).
		Find(&candidates).Error; err != nil {
		return 0, persistErr("load due sessions", err)
	}

	completed := 0
	for _, s := range candidates {
		startsAt, err := s.StartsIn(l.loc)
		if err != nil {
			logrus.WithError(err).WithField("session_id", s.ID).Warn("Skipping session with unreadable start time")
			continue
		}
		if startsAt.After(now) {
			continue
		}
		err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.ExamSession{}).
				Where("id = ? AND status = ?", s.ID, models.SessionScheduled).
				Update("status", models.SessionCompleted)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			return tx.Model(&models.Booking{}).
				Where("exam_session_id = ? AND status = ?", s.ID, models.BookingConfirmed).
				Updates(map[string]interface{}{"status": models.BookingCompleted}).Error
		})
		if err != nil {
			return completed, persistErr(fmt.Sprintf("complete session %d", s.ID), err)
		}
		completed++
	}
	return completed, nil
}

// release returns n slots to a session, refusing to exceed its capacity.
func (l *SlotLedger) release(tx *gorm.DB, sessionID uint, n int) error {
	res := tx.Model(&models.ExamSession{}).
		Where("id = ? AND available_slots + ? <= total_slots", sessionID, n).
		Update("available_slots", gorm.Expr("available_slots + ?", n))
	if res.Error != nil {
		return persistErr("increment available slots", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistErr("increment available slots", fmt.Errorf("session %d would exceed its capacity", sessionID))
	}
	return nil
}

func (l *SlotLedger) checkBookable(session models.ExamSession) error {
	if session.Status != models.SessionScheduled {
		return ErrSessionNotBookable
	}
	startsAt, err := session.StartsIn(l.loc)
	if err != nil {
		return persistErr("read exam start", err)
	}
	if !startsAt.After(l.now()) {
		return ErrSessionNotBookable
	}
	return nil
}

func (l *SlotLedger) notify(sessionID uint, available int) {
	if l.notifier != nil {
		l.notifier.SlotsChanged(sessionID, available)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, ErrSlotUnavailable):
		return "full"
	case errors.Is(err, ErrSessionNotBookable):
		return "not_bookable"
	case errors.Is(err, ErrTooLateToCancel):
		return "too_late"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBookingNotActive):
		return "not_found"
	default:
		return "error"
	}
}
