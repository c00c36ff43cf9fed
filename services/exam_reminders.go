package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"jpjportal_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExamReminders tells candidates about the exams they sit tomorrow.
type ExamReminders struct {
	db       *gorm.DB
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewExamReminders(db *gorm.DB, notifier Notifier, loc *time.Location) *ExamReminders {
	if loc == nil {
		loc = time.Local
	}
	return &ExamReminders{db: db, notifier: notifier, loc: loc, now: time.Now}
}

// SendDailyReminders sends one summary per user covering every confirmed
// booking in a scheduled session on the next calendar day. It returns the
// number of users notified.
func (r *ExamReminders) SendDailyReminders(ctx context.Context) (int, error) {
	if r.notifier == nil {
		return 0, nil
	}
	now := r.now().In(r.loc)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc).AddDate(0, 0, 1)

	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Joins("JOIN exam_sessions ON exam_sessions.id = bookings.exam_session_id").
		Preload("ExamSession").
		Where("bookings.status = ?", models.BookingConfirmed).
		Where("exam_sessions.status = ? AND exam_sessions.exam_date >= ? AND exam_sessions.exam_date < ?",
			models.SessionScheduled, tomorrow, tomorrow.AddDate(0, 0, 1)).
		Find(&bookings).Error
	if err != nil {
		return 0, persistErr("load tomorrow's bookings", err)
	}

	perUser := make(map[uint][]models.ExamSession)
	for _, b := range bookings {
		perUser[b.UserID] = append(perUser[b.UserID], b.ExamSession)
	}

	for userID, sessions := range perUser {
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].ExamTime < sessions[j].ExamTime })
		lines := make([]string, 0, len(sessions))
		for _, s := range sessions {
			lines = append(lines, fmt.Sprintf("- %s exam at %s, %s", s.ExamType, s.ExamTime, s.Center))
		}
		r.notifier.Notify(ctx, []uint{userID}, "Exam reminder",
			"Tomorrow's exams:\n"+strings.Join(lines, "\n"), "info")
	}
	if len(perUser) > 0 {
		logrus.WithField("users", len(perUser)).Info("Sent exam reminders")
	}
	return len(perUser), nil
}
