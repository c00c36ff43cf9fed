package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"

	RenewalPending = "pending"
	RenewalActive  = "active"
	RenewalExpired = "expired"
)

// Vehicle registered by a student; VehicleNumber is the road-tax natural key
type Vehicle struct {
	BaseModel
	UserID        uint   `json:"user_id" gorm:"not null;index"`
	VehicleNumber string `json:"vehicle_number" gorm:"size:20;not null;uniqueIndex"`
	Make          string `json:"make" gorm:"size:100"`
	Model         string `json:"model" gorm:"size:100"`
	EngineCC      int    `json:"engine_cc" gorm:"not null"`
}

// DrivingLicense registered by a student; LicenseNumber is the license natural key
type DrivingLicense struct {
	BaseModel
	UserID        uint      `json:"user_id" gorm:"not null;index"`
	LicenseNumber string    `json:"license_number" gorm:"size:30;not null;uniqueIndex"`
	LicenseClass  string    `json:"license_class" gorm:"size:10"`
	ExpiryDate    time.Time `json:"expiry_date"`
}

// RenewalRecord is the shape shared by road-tax and license renewals.
// Records are append-only; only payment fields and status change after creation.
type RenewalRecord struct {
	UserID        uint            `json:"user_id" gorm:"not null;index"`
	RenewalPeriod string          `json:"renewal_period" gorm:"size:20;not null"`
	StartDate     time.Time       `json:"start_date" gorm:"not null"`
	ExpiryDate    time.Time       `json:"expiry_date" gorm:"not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	PaymentStatus string          `json:"payment_status" gorm:"size:20;not null;default:'pending'"` // pending, paid, failed
	Status        string          `json:"status" gorm:"size:20;not null;default:'pending'"`         // pending, active, expired
	TransactionID string          `json:"transaction_id" gorm:"size:64"`
	PaidAt        *time.Time      `json:"paid_at"`
}

// RoadTaxRenewal keyed by vehicle number
type RoadTaxRenewal struct {
	BaseModel
	VehicleNumber string `json:"vehicle_number" gorm:"size:20;not null;index"`
	EngineCC      int    `json:"engine_cc"`
	RenewalRecord `gorm:"embedded"`
}

// LicenseRenewal keyed by license number
type LicenseRenewal struct {
	BaseModel
	LicenseNumber string `json:"license_number" gorm:"size:30;not null;index"`
	RenewalRecord `gorm:"embedded"`
}
