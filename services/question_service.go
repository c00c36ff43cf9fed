package services

import (
	"context"
	"errors"
	"strings"

	"jpjportal_go/models"
	"jpjportal_go/utils"

	"gorm.io/gorm"
)

// QuestionInput is the admin form for a question bank entry.
type QuestionInput struct {
	Text          string `json:"text" form:"text" validate:"required"`
	QuestionType  string `json:"question_type" form:"question_type" validate:"required,oneof=mcq true_false"`
	OptionA       string `json:"option_a" form:"option_a" validate:"required"`
	OptionB       string `json:"option_b" form:"option_b" validate:"required"`
	OptionC       string `json:"option_c" form:"option_c"`
	OptionD       string `json:"option_d" form:"option_d"`
	CorrectAnswer string `json:"correct_answer" form:"correct_answer" validate:"required,oneof=A B C D a b c d"`
	Explanation   string `json:"explanation" form:"explanation"`
	Category      string `json:"category" form:"category" validate:"max=50"`
}

// check validates the struct tags plus that the correct answer names a filled option.
func (in *QuestionInput) check() error {
	if err := Validate(in); err != nil {
		return err
	}
	in.CorrectAnswer = strings.ToUpper(strings.TrimSpace(in.CorrectAnswer))
	if in.QuestionType == models.QuestionTrueFalse && (in.OptionC != "" || in.OptionD != "") {
		return NewValidationError("question_type", "true/false questions only use options A and B")
	}
	q := in.apply(models.Question{})
	if _, ok := q.Options()[in.CorrectAnswer]; !ok {
		return NewValidationError("correct_answer", "must refer to a filled option")
	}
	return nil
}

func (in QuestionInput) apply(q models.Question) models.Question {
	q.Text = strings.TrimSpace(in.Text)
	q.QuestionType = in.QuestionType
	q.OptionA = in.OptionA
	q.OptionB = in.OptionB
	q.OptionC = in.OptionC
	q.OptionD = in.OptionD
	q.CorrectAnswer = in.CorrectAnswer
	q.Explanation = in.Explanation
	q.Category = in.Category
	return q
}

var questionTable = utils.DataTable{
	Sortable: map[string]string{
		"id":       "id",
		"category": "category",
		"type":     "question_type",
		"active":   "active",
	},
	Filterable: map[string]string{
		"category": "category",
		"type":     "question_type",
	},
	Searchable:  []string{"text", "category"},
	DefaultSort: "id",
	DefaultDesc: true,
}

// QuestionService manages the theory question bank.
type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

func (s *QuestionService) Create(ctx context.Context, in QuestionInput) (*models.Question, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	q := in.apply(models.Question{Active: true})
	if err := s.db.WithContext(ctx).Create(&q).Error; err != nil {
		return nil, persistErr("create question", err)
	}
	return &q, nil
}

func (s *QuestionService) Update(ctx context.Context, id uint, in QuestionInput) (*models.Question, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := in.apply(*q)
	if err := s.db.WithContext(ctx).Save(&updated).Error; err != nil {
		return nil, persistErr("update question", err)
	}
	return &updated, nil
}

// SetActive toggles whether a question can be drawn. Questions are never
// deleted because past attempts reference them.
func (s *QuestionService) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Question{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return persistErr("update question status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *QuestionService) Get(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistErr("load question", err)
	}
	return &q, nil
}

// List is the admin question bank table, inactive questions included.
func (s *QuestionService) List(ctx context.Context, q utils.DataTableQuery) (*utils.DataTablePage, error) {
	var rows []models.Question
	page, err := questionTable.Fetch(s.db.WithContext(ctx).Model(&models.Question{}), q, &rows)
	if err != nil {
		if errors.Is(err, utils.ErrUnknownColumn) {
			return nil, NewValidationError("sort", err.Error())
		}
		return nil, persistErr("list questions", err)
	}
	page.Data = rows
	return page, nil
}
