package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExamTypeTheory    = "theory"
	ExamTypePractical = "practical"

	SessionScheduled = "scheduled"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"

	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// ExamSession is a scheduled theory/practical test slot with fixed capacity.
// AvailableSlots is only ever written by the slot ledger.
type ExamSession struct {
	BaseModel
	ExamType       string    `json:"exam_type" gorm:"size:20;not null;index"` // theory, practical
	ExamDate       time.Time `json:"exam_date" gorm:"not null;index"`
	ExamTime       string    `json:"exam_time" gorm:"size:5;not null"` // HH:MM
	Center         string    `json:"center" gorm:"size:200"`
	TotalSlots     int       `json:"total_slots" gorm:"not null"`
	AvailableSlots int       `json:"available_slots" gorm:"not null"`
	Status         string    `json:"status" gorm:"size:20;not null;default:'scheduled';index"` // scheduled, completed, cancelled
}

// StartsAt combines the exam date and time in the date's own location.
func (s ExamSession) StartsAt() (time.Time, error) {
	return s.StartsIn(nil)
}

// StartsIn reads the exam date as a calendar day in loc and puts the exam
// time on it. Drivers may hand ExamDate back in another zone than the one it
// was scheduled in; nil keeps the date's own location.
func (s ExamSession) StartsIn(loc *time.Location) (time.Time, error) {
	h, m, err := parseClock(s.ExamTime)
	if err != nil {
		return time.Time{}, err
	}
	d := s.ExamDate
	if loc != nil {
		d = d.In(loc)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, d.Location()), nil
}

func parseClock(v string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid exam time %q", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid exam hour %q", v)
	}
	// tolerate HH:MM:SS from MySQL TIME columns
	if len(mm) > 2 {
		mm = mm[:2]
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid exam minute %q", v)
	}
	return h, m, nil
}

// Booking is a student's reservation against one exam session.
// ActiveKey is set while the booking is live so the database also rejects a
// second live booking for the same (user, session) pair.
type Booking struct {
	BaseModel
	UserID        uint    `json:"user_id" gorm:"not null;index"`
	ExamSessionID uint    `json:"exam_session_id" gorm:"not null;index"`
	Status        string  `json:"status" gorm:"size:20;not null;default:'confirmed'"` // confirmed, cancelled, completed
	ActiveKey     *string `json:"-" gorm:"size:64;uniqueIndex"`

	ExamSession ExamSession `json:"exam_session,omitempty" gorm:"foreignKey:ExamSessionID"`
}

// BookingActiveKey is the unique marker for a live booking.
func BookingActiveKey(userID, sessionID uint) *string {
	k := fmt.Sprintf("%d:%d", userID, sessionID)
	return &k
}

// ExamResult records the outcome of a completed booking
type ExamResult struct {
	BaseModel
	BookingID     uint       `json:"booking_id" gorm:"not null;uniqueIndex"`
	UserID        uint       `json:"user_id" gorm:"not null;index"`
	ExamType      string     `json:"exam_type" gorm:"size:20;not null"`
	Score         int        `json:"score"`
	Passed        bool       `json:"passed"`
	Remarks       string     `json:"remarks" gorm:"type:text"`
	CertificateNo string     `json:"certificate_no" gorm:"size:50;index"`
	IssuedAt      *time.Time `json:"issued_at"`

	Booking Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

const (
	QuestionMultipleChoice = "mcq"
	QuestionTrueFalse      = "true_false"
)

// Question is one item of the theory question bank
type Question struct {
	BaseModel
	Text          string `json:"text" gorm:"type:text;not null"`
	QuestionType  string `json:"question_type" gorm:"size:20;not null;default:'mcq'"` // mcq, true_false
	OptionA       string `json:"option_a" gorm:"size:500"`
	OptionB       string `json:"option_b" gorm:"size:500"`
	OptionC       string `json:"option_c" gorm:"size:500"`
	OptionD       string `json:"option_d" gorm:"size:500"`
	CorrectAnswer string `json:"-" gorm:"size:1;not null"`
	Explanation   string `json:"explanation" gorm:"type:text"`
	Category      string `json:"category" gorm:"size:50;index"`
	Active        bool   `json:"active" gorm:"default:true;index"`
}

// Options returns the non-empty answer choices keyed by letter
func (q Question) Options() map[string]string {
	out := map[string]string{}
	for letter, text := range map[string]string{"A": q.OptionA, "B": q.OptionB, "C": q.OptionC, "D": q.OptionD} {
		if text != "" {
			out[letter] = text
		}
	}
	return out
}

// MockTestAttempt is one completed mock theory test
type MockTestAttempt struct {
	BaseModel
	UserID          uint            `json:"user_id" gorm:"not null;index"`
	TotalQuestions  int             `json:"total_questions" gorm:"not null"`
	CorrectAnswers  int             `json:"correct_answers" gorm:"not null"`
	ScorePercentage decimal.Decimal `json:"score_percentage" gorm:"type:decimal(5,2);not null"`
	TimeTaken       int             `json:"time_taken"` // seconds

	Answers []MockTestAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

// MockTestAnswer is the per-question record of an attempt
type MockTestAnswer struct {
	BaseModel
	AttemptID      uint   `json:"attempt_id" gorm:"not null;index"`
	QuestionID     uint   `json:"question_id" gorm:"not null"`
	SelectedAnswer string `json:"selected_answer" gorm:"size:1"`
	CorrectAnswer  string `json:"correct_answer" gorm:"size:1"`
	IsCorrect      bool   `json:"is_correct"`

	Question Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}
