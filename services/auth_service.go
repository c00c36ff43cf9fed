package services

import (
	"context"
	"errors"
	"strings"

	"jpjportal_go/models"
	"jpjportal_go/utils"

	"gorm.io/gorm"
)

// ErrInvalidCredentials covers unknown users, wrong passwords and inactive accounts alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

type LoginInput struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type RegisterInput struct {
	Username string `json:"username" form:"username" validate:"required,min=3,max=50,alphanum"`
	Password string `json:"password" form:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" form:"email" validate:"required,email"`
	Phone    string `json:"phone" form:"phone" validate:"max=20"`
	FullName string `json:"full_name" form:"full_name" validate:"required,max=200"`
	ICNumber string `json:"ic_number" form:"ic_number" validate:"required,len=12,numeric"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" form:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" form:"new_password" validate:"required,min=8,max=72"`
}

// AuthService registers students and checks credentials.
type AuthService struct {
	db *gorm.DB
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

// Register creates a student account with its profile.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = utils.SanitizeString(in.Username)
	in.FullName = utils.SanitizeString(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.ICNumber = strings.ReplaceAll(strings.TrimSpace(in.ICNumber), "-", "")
	if err := Validate(in); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username: in.Username,
		Password: hashed,
		Email:    in.Email,
		Phone:    in.Phone,
		Role:     models.RoleStudent,
		Status:   "active",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken := &ValidationError{Fields: map[string]string{}}
		for field, q := range map[string][2]interface{}{
			"username": {"username = ?", in.Username},
			"email":    {"email = ?", in.Email},
		} {
			var n int64
			if err := tx.Model(&models.User{}).Where(q[0], q[1]).Count(&n).Error; err != nil {
				return persistErr("check "+field, err)
			}
			if n > 0 {
				taken.Fields[field] = "is already registered"
			}
		}
		var n int64
		if err := tx.Model(&models.Student{}).Where("ic_number = ?", in.ICNumber).Count(&n).Error; err != nil {
			return persistErr("check ic number", err)
		}
		if n > 0 {
			taken.Fields["ic_number"] = "is already registered"
		}
		if len(taken.Fields) > 0 {
			return taken
		}

		if err := tx.Create(&user).Error; err != nil {
			return persistErr("create user", err)
		}
		student := models.Student{UserID: user.ID, FullName: in.FullName, ICNumber: in.ICNumber}
		if err := tx.Create(&student).Error; err != nil {
			return persistErr("create student", err)
		}
		user.Student = &student
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate returns the active user matching the credentials.
func (s *AuthService) Authenticate(ctx context.Context, in LoginInput) (*models.User, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var user models.User
	err := s.db.WithContext(ctx).Preload("Student").
		Where("username = ? AND status = ?", strings.TrimSpace(in.Username), "active").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, persistErr("load user", err)
	}
	if err := utils.CheckPassword(in.Password, user.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// ChangePassword replaces the user's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	if err := Validate(in); err != nil {
		return err
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return persistErr("load user", err)
	}
	if err := utils.CheckPassword(in.CurrentPassword, user.Password); err != nil {
		return NewValidationError("current_password", "is incorrect")
	}
	hashed, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password", hashed).Error; err != nil {
		return persistErr("update password", err)
	}
	return nil
}
