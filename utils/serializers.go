package utils

import (
	"time"

	"jpjportal_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

type ExamSessionDTO struct {
	ID             uint       `json:"id"`
	ExamType       string     `json:"exam_type"`
	ExamDate       string     `json:"exam_date"`
	ExamTime       string     `json:"exam_time"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	Center         string     `json:"center"`
	TotalSlots     int        `json:"total_slots"`
	AvailableSlots int        `json:"available_slots"`
	Status         string     `json:"status"`
}

type BookingDTO struct {
	ID        uint           `json:"id"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	User      *UserShort     `json:"user,omitempty"`
	Session   ExamSessionDTO `json:"session"`
}

type NotificationDTO struct {
	ID        uint       `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// ToUserShort maps a user, using the student's full name when loaded.
func ToUserShort(u models.User) UserShort {
	us := UserShort{ID: u.ID, Username: u.Username}
	if u.Student != nil {
		us.FullName = u.Student.FullName
	}
	return us
}

// ToExamSessionDTO maps an exam session. StartsAt is omitted when the stored
// time cannot be read.
func ToExamSessionDTO(s models.ExamSession) ExamSessionDTO {
	dto := ExamSessionDTO{
		ID:             s.ID,
		ExamType:       s.ExamType,
		ExamDate:       s.ExamDate.Format("2006-01-02"),
		ExamTime:       s.ExamTime,
		Center:         s.Center,
		TotalSlots:     s.TotalSlots,
		AvailableSlots: s.AvailableSlots,
		Status:         s.Status,
	}
	if at, err := s.StartsAt(); err == nil {
		dto.StartsAt = &at
	}
	return dto
}

// ToBookingDTO maps a booking with its preloaded session.
func ToBookingDTO(b models.Booking, user *models.User) BookingDTO {
	dto := BookingDTO{
		ID:        b.ID,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
		Session:   ToExamSessionDTO(b.ExamSession),
	}
	if user != nil {
		us := ToUserShort(*user)
		dto.User = &us
	}
	return dto
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
	}
}
