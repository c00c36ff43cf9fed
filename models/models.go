package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// User model
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:20;not null;default:'student'"`   // admin, student
	Status   string `json:"status" gorm:"size:20;not null;default:'active'"` // active, inactive, suspended

	Student *Student `json:"student,omitempty" gorm:"foreignKey:UserID"`
}

// Student profile created at registration
type Student struct {
	BaseModel
	UserID       uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	FullName     string     `json:"full_name" gorm:"size:200;not null"`
	ICNumber     string     `json:"ic_number" gorm:"size:20;uniqueIndex"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	Gender       string     `json:"gender" gorm:"size:10"`
	Address      string     `json:"address" gorm:"size:500"`
	LicenseClass string     `json:"license_class" gorm:"size:10"` // B2, D, DA ...
}

// ActivityLog records user actions for auditing
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID  uint       `json:"user_id" gorm:"not null;index"`
	Title   string     `json:"title" gorm:"size:255;not null"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Type    string     `json:"type" gorm:"size:20;not null"` // info, warning, error, success
	Read    bool       `json:"read" gorm:"default:false"`
	ReadAt  *time.Time `json:"read_at"`
}

// LogArchive tracks activity logs shipped to S3
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}

// LearningMaterial is a downloadable study resource stored in S3
type LearningMaterial struct {
	BaseModel
	Title       string `json:"title" gorm:"size:255;not null"`
	Category    string `json:"category" gorm:"size:50;index"` // theory, practical, road_signs
	Description string `json:"description" gorm:"type:text"`
	FileURL     string `json:"file_url" gorm:"size:500"`
	FileName    string `json:"file_name" gorm:"size:255"`
	Active      bool   `json:"active" gorm:"default:true"`
}

// WorkflowState persists a multi-step flow when Redis is unavailable
type WorkflowState struct {
	BaseModel
	Token     string    `json:"token" gorm:"size:64;not null;uniqueIndex"`
	Kind      string    `json:"kind" gorm:"size:50;not null"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	Stage     string    `json:"stage" gorm:"size:50;not null"`
	Fields    JSON      `json:"fields" gorm:"type:json"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// All lists every model for migrations
func All() []interface{} {
	return []interface{}{
		&User{},
		&Student{},
		&ExamSession{},
		&Booking{},
		&ExamResult{},
		&Question{},
		&MockTestAttempt{},
		&MockTestAnswer{},
		&Vehicle{},
		&DrivingLicense{},
		&RoadTaxRenewal{},
		&LicenseRenewal{},
		&LearningMaterial{},
		&WorkflowState{},
		&ActivityLog{},
		&Notification{},
		&LogArchive{},
	}
}
