package services

import (
	"context"
	"errors"
	"strings"

	"jpjportal_go/models"
	"jpjportal_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FileStore keeps uploaded files and hands back a public URL.
type FileStore interface {
	UploadFile(ctx context.Context, folder, filename string, body []byte) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
}

type MaterialInput struct {
	Title       string `json:"title" form:"title" validate:"required,max=255"`
	Category    string `json:"category" form:"category" validate:"required,oneof=theory practical road_signs"`
	Description string `json:"description" form:"description" validate:"max=5000"`
}

// MaterialService manages downloadable study materials.
type MaterialService struct {
	db         *gorm.DB
	store      FileStore
	extensions []string
	maxSize    int64
}

// NewMaterialService builds the service. extensions is the upload allow-list.
func NewMaterialService(db *gorm.DB, store FileStore, extensions []string, maxSize int64) *MaterialService {
	return &MaterialService{db: db, store: store, extensions: extensions, maxSize: maxSize}
}

// Upload stores the file then records it. The file is removed again if the
// record cannot be written.
func (s *MaterialService) Upload(ctx context.Context, in MaterialInput, filename string, body []byte) (*models.LearningMaterial, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	if !utils.IsValidFileExtension(filename, s.extensions) {
		return nil, NewValidationError("file", "type not allowed (allowed: "+strings.Join(s.extensions, ", ")+")")
	}
	if len(body) == 0 {
		return nil, NewValidationError("file", "is empty")
	}
	if s.maxSize > 0 && int64(len(body)) > s.maxSize {
		return nil, NewValidationError("file", "is too large")
	}
	if s.store == nil {
		return nil, errors.New("file storage not configured")
	}

	url, err := s.store.UploadFile(ctx, "materials/"+in.Category, filename, body)
	if err != nil {
		return nil, err
	}
	m := models.LearningMaterial{
		Title:       strings.TrimSpace(in.Title),
		Category:    in.Category,
		Description: in.Description,
		FileURL:     url,
		FileName:    filename,
		Active:      true,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if delErr := s.store.DeleteFile(ctx, url); delErr != nil {
			logrus.WithError(delErr).WithField("url", url).Warn("Failed to remove orphaned upload")
		}
		return nil, persistErr("create learning material", err)
	}
	return &m, nil
}

// List returns active materials, optionally for one category.
func (s *MaterialService) List(ctx context.Context, category string) ([]models.LearningMaterial, error) {
	q := s.db.WithContext(ctx).Where("active = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var rows []models.LearningMaterial
	if err := q.Order("category, title").Find(&rows).Error; err != nil {
		return nil, persistErr("list learning materials", err)
	}
	return rows, nil
}

// Delete removes the record and its file.
func (s *MaterialService) Delete(ctx context.Context, id uint) error {
	var m models.LearningMaterial
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return persistErr("load learning material", err)
	}
	if err := s.db.WithContext(ctx).Delete(&m).Error; err != nil {
		return persistErr("delete learning material", err)
	}
	if s.store != nil && m.FileURL != "" {
		if err := s.store.DeleteFile(ctx, m.FileURL); err != nil {
			logrus.WithError(err).WithField("url", m.FileURL).Warn("Failed to delete material file")
		}
	}
	return nil
}
