package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jpjportal_go/models"
	"jpjportal_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrResultRecorded is returned when a booking already has a result.
var ErrResultRecorded = errors.New("a result has already been recorded for this booking")

type ResultInput struct {
	BookingID uint   `json:"booking_id" form:"booking_id" validate:"required"`
	Score     int    `json:"score" form:"score" validate:"min=0,max=100"`
	Passed    bool   `json:"passed" form:"passed"`
	Remarks   string `json:"remarks" form:"remarks" validate:"max=2000"`
}

// ResultService records exam outcomes and issues certificates for passes.
type ResultService struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

func NewResultService(db *gorm.DB, notifier Notifier) *ResultService {
	return &ResultService{db: db, notifier: notifier, now: time.Now}
}

// Record stores the outcome of a completed booking. A pass is issued a
// certificate number.
func (s *ResultService) Record(ctx context.Context, in ResultInput) (*models.ExamResult, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	var result models.ExamResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.Preload("ExamSession").First(&booking, in.BookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return persistErr("load booking", err)
		}
		if booking.Status != models.BookingCompleted {
			return ErrInvalidTransition
		}
		var existing int64
		if err := tx.Model(&models.ExamResult{}).Where("booking_id = ?", booking.ID).Count(&existing).Error; err != nil {
			return persistErr("check exam result", err)
		}
		if existing > 0 {
			return ErrResultRecorded
		}

		result = models.ExamResult{
			BookingID: booking.ID,
			UserID:    booking.UserID,
			ExamType:  booking.ExamSession.ExamType,
			Score:     in.Score,
			Passed:    in.Passed,
			Remarks:   in.Remarks,
		}
		if in.Passed {
			issued := s.now()
			cert, err := utils.CertificateNumber(result.ExamType, issued)
			if err != nil {
				return fmt.Errorf("certificate number: %w", err)
			}
			result.CertificateNo = cert
			result.IssuedAt = &issued
		}
		if err := tx.Create(&result).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrResultRecorded
			}
			return persistErr("create exam result", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": result.BookingID,
		"user_id":    result.UserID,
		"passed":     result.Passed,
	}).Info("Exam result recorded")

	if s.notifier != nil {
		title, msg, typ := "Exam result available", fmt.Sprintf("You did not pass the %s exam (score %d).", result.ExamType, result.Score), "warning"
		if result.Passed {
			msg = fmt.Sprintf("You passed the %s exam. Certificate %s.", result.ExamType, result.CertificateNo)
			typ = "success"
		}
		s.notifier.Notify(ctx, []uint{result.UserID}, title, msg, typ)
	}
	return &result, nil
}

// ForUser lists a student's results, newest first.
func (s *ResultService) ForUser(ctx context.Context, userID uint) ([]models.ExamResult, error) {
	var rows []models.ExamResult
	if err := s.db.WithContext(ctx).Preload("Booking.ExamSession").
		Where("user_id = ?", userID).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, persistErr("list results", err)
	}
	return rows, nil
}

// Certificate returns a passed result owned by the user.
func (s *ResultService) Certificate(ctx context.Context, resultID, userID uint) (*models.ExamResult, error) {
	var row models.ExamResult
	err := s.db.WithContext(ctx).Preload("Booking.ExamSession").
		Where("id = ? AND user_id = ? AND passed = ?", resultID, userID, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistErr("load certificate", err)
	}
	return &row, nil
}
