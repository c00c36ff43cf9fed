package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"jpjportal_go/models"
	"jpjportal_go/services/scoring"
	"jpjportal_go/services/workflow"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MockTestKind is the workflow kind of a served mock test.
const MockTestKind = "mock_test"

const mockTestStage = "started"

// MockTestService draws questions, marks submissions and stores attempts.
type MockTestService struct {
	db        *gorm.DB
	engine    *workflow.Engine
	questions int
	now       func() time.Time
}

// NewMockTestService creates a service drawing size questions per test.
func NewMockTestService(db *gorm.DB, engine *workflow.Engine, size int) *MockTestService {
	if size <= 0 {
		size = 20
	}
	engine.Register(MockTestKind, workflow.Flow{
		Stages:   []string{mockTestStage},
		Required: map[string][]string{mockTestStage: {"question_ids", "started_at"}},
	})
	return &MockTestService{db: db, engine: engine, questions: size, now: time.Now}
}

// Begin draws a test and records which questions were served. The returned
// token is posted back with the answers.
func (s *MockTestService) Begin(ctx context.Context, userID uint) ([]models.Question, *workflow.State, error) {
	qs, err := s.Draw(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(qs) == 0 {
		return nil, nil, ErrNotFound
	}
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, strconv.FormatUint(uint64(q.ID), 10))
	}
	st, err := s.engine.Start(ctx, MockTestKind, userID, map[string]string{
		"question_ids": strings.Join(ids, ","),
		"started_at":   s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, nil, persistErr("start mock test", err)
	}
	return qs, st, nil
}

// SubmitForm scores the answer_<id> fields posted for the test behind token.
// The token stays valid until it expires, so posting twice stores two attempts.
func (s *MockTestService) SubmitForm(ctx context.Context, userID uint, token string, form map[string]string) (*models.MockTestAttempt, error) {
	st, err := s.engine.Load(ctx, token, MockTestKind, userID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistErr("load mock test", err)
	}

	var ids []uint
	for _, raw := range strings.Split(st.Get("question_ids"), ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, uint(id))
		}
	}
	started, _ := time.Parse(time.RFC3339, st.Get("started_at"))

	return s.Submit(ctx, Submission{
		UserID:      userID,
		QuestionIDs: ids,
		Answers:     scoring.ParseAnswers(form),
		StartedAt:   started,
	})
}

// Draw picks up to the configured number of random active questions.
func (s *MockTestService) Draw(ctx context.Context) ([]models.Question, error) {
	var qs []models.Question
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order(randomOrder(s.db)).
		Limit(s.questions).
		Find(&qs).Error; err != nil {
		return nil, persistErr("draw questions", err)
	}
	return qs, nil
}

func randomOrder(db *gorm.DB) string {
	if db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

// Submission is one completed test as posted by the student.
type Submission struct {
	UserID      uint
	QuestionIDs []uint
	Answers     map[uint]string
	StartedAt   time.Time
}

// Submit scores a submission and stores the attempt with one answer row per
// question in a single transaction. Each call records a new attempt.
func (s *MockTestService) Submit(ctx context.Context, sub Submission) (*models.MockTestAttempt, error) {
	if len(sub.QuestionIDs) == 0 {
		return nil, NewValidationError("questions", "no questions were served for this test")
	}

	var qs []models.Question
	if err := s.db.WithContext(ctx).Where("id IN ?", sub.QuestionIDs).Find(&qs).Error; err != nil {
		return nil, persistErr("load questions", err)
	}
	byID := make(map[uint]models.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	// mark in the order the questions were served; ids that vanished are skipped
	keys := make([]scoring.QuestionKey, 0, len(sub.QuestionIDs))
	for _, id := range sub.QuestionIDs {
		if q, ok := byID[id]; ok {
			keys = append(keys, scoring.QuestionKey{ID: q.ID, CorrectAnswer: q.CorrectAnswer})
		}
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}

	result := scoring.Score(keys, sub.Answers)

	elapsed := 0
	if !sub.StartedAt.IsZero() {
		if d := s.now().Sub(sub.StartedAt); d > 0 {
			elapsed = int(d / time.Second)
		}
	}

	attempt := models.MockTestAttempt{
		UserID:          sub.UserID,
		TotalQuestions:  result.TotalQuestions,
		CorrectAnswers:  result.CorrectCount,
		ScorePercentage: result.Percentage,
		TimeTaken:       elapsed,
	}
	for _, r := range result.PerQuestion {
		attempt.Answers = append(attempt.Answers, models.MockTestAnswer{
			QuestionID:     r.QuestionID,
			SelectedAnswer: r.Selected,
			CorrectAnswer:  r.Correct,
			IsCorrect:      r.IsCorrect,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// creating the attempt also inserts its Answers association
		return tx.Create(&attempt).Error
	})
	if err != nil {
		return nil, persistErr("save mock test attempt", err)
	}

	mockTestAttempts.Inc()
	mockTestScore.Observe(result.Percentage.InexactFloat64())
	logrus.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"user_id":    sub.UserID,
		"correct":    result.CorrectCount,
		"total":      result.TotalQuestions,
	}).Info("Mock test submitted")
	return &attempt, nil
}

// Attempt loads one of the user's attempts with its answers and questions.
func (s *MockTestService) Attempt(ctx context.Context, attemptID, userID uint) (*models.MockTestAttempt, error) {
	var attempt models.MockTestAttempt
	err := s.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Answers.Question", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("id = ? AND user_id = ?", attemptID, userID).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistErr("load mock test attempt", err)
	}
	return &attempt, nil
}

// History lists the user's attempts, newest first.
func (s *MockTestService) History(ctx context.Context, userID uint) ([]models.MockTestAttempt, error) {
	var attempts []models.MockTestAttempt
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&attempts).Error; err != nil {
		return nil, persistErr("list mock test attempts", err)
	}
	return attempts, nil
}
