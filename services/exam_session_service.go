package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jpjportal_go/models"
	"jpjportal_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier delivers portal notifications. Delivery failures are the
// notifier's problem, never the caller's.
type Notifier interface {
	Notify(ctx context.Context, userIDs []uint, title, message, typ string)
}

type SessionInput struct {
	ExamType   string `json:"exam_type" form:"exam_type" validate:"required,oneof=theory practical"`
	ExamDate   string `json:"exam_date" form:"exam_date" validate:"required"` // YYYY-MM-DD
	ExamTime   string `json:"exam_time" form:"exam_time" validate:"required,len=5"`
	Center     string `json:"center" form:"center" validate:"required,max=200"`
	TotalSlots int    `json:"total_slots" form:"total_slots" validate:"required,min=1,max=500"`
}

var sessionTable = utils.DataTable{
	Sortable: map[string]string{
		"id":              "id",
		"exam_date":       "exam_date",
		"exam_type":       "exam_type",
		"center":          "center",
		"available_slots": "available_slots",
		"status":          "status",
	},
	Filterable: map[string]string{
		"exam_type": "exam_type",
		"status":    "status",
	},
	Searchable:  []string{"center"},
	DefaultSort: "exam_date",
	MaxPageSize: 100,
}

// ExamSessionService manages the exam calendar. Slot counts are left to the ledger.
type ExamSessionService struct {
	db       *gorm.DB
	ledger   *SlotLedger
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewExamSessionService(db *gorm.DB, ledger *SlotLedger, notifier Notifier, loc *time.Location) *ExamSessionService {
	if loc == nil {
		loc = time.Local
	}
	return &ExamSessionService{db: db, ledger: ledger, notifier: notifier, loc: loc, now: time.Now}
}

// Create schedules a new session with every slot free.
func (s *ExamSessionService) Create(ctx context.Context, in SessionInput) (*models.ExamSession, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(in.ExamDate), s.loc)
	if err != nil {
		return nil, NewValidationError("exam_date", "must be a date (YYYY-MM-DD)")
	}
	session := models.ExamSession{
		ExamType:       in.ExamType,
		ExamDate:       date,
		ExamTime:       strings.TrimSpace(in.ExamTime),
		Center:         strings.TrimSpace(in.Center),
		TotalSlots:     in.TotalSlots,
		AvailableSlots: in.TotalSlots,
		Status:         models.SessionScheduled,
	}
	startsAt, err := session.StartsIn(s.loc)
	if err != nil {
		return nil, NewValidationError("exam_time", "must be a time (HH:MM)")
	}
	if !startsAt.After(s.now()) {
		return nil, NewValidationError("exam_date", "must be in the future")
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, persistErr("create exam session", err)
	}
	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"exam_type":  session.ExamType,
		"starts_at":  startsAt,
	}).Info("Exam session scheduled")
	return &session, nil
}

// Get loads one session.
func (s *ExamSessionService) Get(ctx context.Context, id uint) (*models.ExamSession, error) {
	var session models.ExamSession
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistErr("load exam session", err)
	}
	return &session, nil
}

// Open lists sessions a student can still book, soonest first. examType may be empty.
func (s *ExamSessionService) Open(ctx context.Context, examType string) ([]models.ExamSession, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	q := s.db.WithContext(ctx).
		Where("status = ? AND available_slots > 0 AND exam_date >= ?", models.SessionScheduled, today.AddDate(0, 0, -1))
	if examType != "" {
		q = q.Where("exam_type = ?", examType)
	}
	var rows []models.ExamSession
	if err := q.Order("exam_date, exam_time").Find(&rows).Error; err != nil {
		return nil, persistErr("list open sessions", err)
	}
	open := rows[:0]
	for _, row := range rows {
		if at, err := row.StartsIn(s.loc); err == nil && at.After(now) {
			open = append(open, row)
		}
	}
	return open, nil
}

// List is the admin data table.
func (s *ExamSessionService) List(ctx context.Context, q utils.DataTableQuery) (*utils.DataTablePage, error) {
	var rows []models.ExamSession
	page, err := sessionTable.Fetch(s.db.WithContext(ctx).Model(&models.ExamSession{}), q, &rows)
	if err != nil {
		if errors.Is(err, utils.ErrUnknownColumn) {
			return nil, NewValidationError("sort", err.Error())
		}
		return nil, persistErr("list exam sessions", err)
	}
	dtos := make([]utils.ExamSessionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, utils.ToExamSessionDTO(row))
	}
	page.Data = dtos
	return page, nil
}

// Roster returns the session's bookings with their students, oldest first.
func (s *ExamSessionService) Roster(ctx context.Context, sessionID uint) (*models.ExamSession, []models.Booking, []models.User, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	var bookings []models.Booking
	if err := s.db.WithContext(ctx).Where("exam_session_id = ?", sessionID).
		Order("id").Find(&bookings).Error; err != nil {
		return nil, nil, nil, persistErr("load roster", err)
	}
	ids := make([]uint, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.UserID)
	}
	var users []models.User
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Preload("Student").Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, nil, nil, persistErr("load roster users", err)
		}
	}
	return session, bookings, users, nil
}

// UserBookings lists a student's bookings, newest first.
func (s *ExamSessionService) UserBookings(ctx context.Context, userID uint) ([]models.Booking, error) {
	var rows []models.Booking
	if err := s.db.WithContext(ctx).Preload("ExamSession").
		Where("user_id = ?", userID).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, persistErr("list bookings", err)
	}
	return rows, nil
}

// Cancel calls off a session through the ledger and tells the affected students.
func (s *ExamSessionService) Cancel(ctx context.Context, sessionID uint) ([]uint, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	users, err := s.ledger.CancelSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil && len(users) > 0 {
		s.notifier.Notify(ctx, users, "Exam session cancelled",
			fmt.Sprintf("Your %s exam on %s at %s has been cancelled. Please book another session.",
				session.ExamType, session.ExamDate.Format("02 Jan 2006"), session.ExamTime),
			"warning")
	}
	return users, nil
}
