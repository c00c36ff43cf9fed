package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jpjportal_go/models"
	"jpjportal_go/services/fees"
	"jpjportal_go/services/renewals"
	"jpjportal_go/services/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Renewal kinds, also used as workflow kinds.
const (
	RenewalRoadTax = "road_tax"
	RenewalLicense = "license"
)

const (
	stageRequested = "requested"
	stagePaid      = "paid"
)

var renewalFlow = workflow.Flow{
	Stages: []string{stageRequested, stagePaid},
	Required: map[string][]string{
		stageRequested: {"record_id", "natural_key", "amount"},
		stagePaid:      {"transaction_id"},
	},
}

type VehicleInput struct {
	VehicleNumber string `json:"vehicle_number" form:"vehicle_number" validate:"required,max=20"`
	Make          string `json:"make" form:"make" validate:"max=100"`
	Model         string `json:"model" form:"model" validate:"max=100"`
	EngineCC      int    `json:"engine_cc" form:"engine_cc" validate:"required,gt=0,max=10000"`
}

type LicenseInput struct {
	LicenseNumber string `json:"license_number" form:"license_number" validate:"required,max=30"`
	LicenseClass  string `json:"license_class" form:"license_class" validate:"max=10"`
	ExpiryDate    string `json:"expiry_date" form:"expiry_date"` // YYYY-MM-DD, optional
}

type RoadTaxRequest struct {
	VehicleNumber string `json:"vehicle_number" form:"vehicle_number" validate:"required"`
	Months        int    `json:"months" form:"months" validate:"required,oneof=6 12"`
}

type LicenseRenewalRequest struct {
	LicenseNumber string `json:"license_number" form:"license_number" validate:"required"`
	Period        string `json:"period" form:"period" validate:"required,oneof=1_year 3_years 5_years"`
}

// RenewalStatus is the per-user status page: paid histories by natural key
// plus renewals still awaiting payment.
type RenewalStatus struct {
	RoadTax  []renewals.History
	Licenses []renewals.History
	Pending  []renewals.Record
}

// RenewalService runs the simulated road-tax and license renewal flows.
type RenewalService struct {
	db     *gorm.DB
	engine *workflow.Engine
	now    func() time.Time
	loc    *time.Location
}

func NewRenewalService(db *gorm.DB, engine *workflow.Engine, loc *time.Location) *RenewalService {
	if loc == nil {
		loc = time.Local
	}
	engine.Register(RenewalRoadTax, renewalFlow)
	engine.Register(RenewalLicense, renewalFlow)
	return &RenewalService{db: db, engine: engine, now: time.Now, loc: loc}
}

// NormalizeKey canonicalises a vehicle or license number.
func NormalizeKey(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), ""))
}

func (s *RenewalService) RegisterVehicle(ctx context.Context, userID uint, in VehicleInput) (*models.Vehicle, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	v := models.Vehicle{
		UserID:        userID,
		VehicleNumber: NormalizeKey(in.VehicleNumber),
		Make:          strings.TrimSpace(in.Make),
		Model:         strings.TrimSpace(in.Model),
		EngineCC:      in.EngineCC,
	}
	if err := s.createUnique(ctx, &v, "vehicle_number = ?", v.VehicleNumber); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *RenewalService) RegisterLicense(ctx context.Context, userID uint, in LicenseInput) (*models.DrivingLicense, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	l := models.DrivingLicense{
		UserID:        userID,
		LicenseNumber: NormalizeKey(in.LicenseNumber),
		LicenseClass:  strings.ToUpper(strings.TrimSpace(in.LicenseClass)),
	}
	if in.ExpiryDate != "" {
		d, err := time.ParseInLocation("2006-01-02", in.ExpiryDate, s.loc)
		if err != nil {
			return nil, NewValidationError("expiry_date", "must be a date (YYYY-MM-DD)")
		}
		l.ExpiryDate = d
	}
	if err := s.createUnique(ctx, &l, "license_number = ?", l.LicenseNumber); err != nil {
		return nil, err
	}
	return &l, nil
}

// createUnique inserts row unless another row already holds its natural key.
// The unique index catches the race the pre-check cannot.
func (s *RenewalService) createUnique(ctx context.Context, row interface{}, where string, key string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(row).Unscoped().Where(where, key).Count(&count).Error; err != nil {
		return persistErr("check natural key", err)
	}
	if count > 0 {
		return ErrAlreadyRegistered
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyRegistered
		}
		return persistErr("register natural key", err)
	}
	return nil
}

func (s *RenewalService) Vehicles(ctx context.Context, userID uint) ([]models.Vehicle, error) {
	var out []models.Vehicle
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("vehicle_number").Find(&out).Error; err != nil {
		return nil, persistErr("list vehicles", err)
	}
	return out, nil
}

func (s *RenewalService) Licenses(ctx context.Context, userID uint) ([]models.DrivingLicense, error) {
	var out []models.DrivingLicense
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("license_number").Find(&out).Error; err != nil {
		return nil, persistErr("list licenses", err)
	}
	return out, nil
}

// RequestRoadTax prices a road-tax renewal for one of the user's vehicles and
// opens a payment workflow for it.
func (s *RenewalService) RequestRoadTax(ctx context.Context, userID uint, req RoadTaxRequest) (*models.RoadTaxRenewal, *workflow.State, error) {
	if err := Validate(req); err != nil {
		return nil, nil, err
	}
	key := NormalizeKey(req.VehicleNumber)

	var vehicle models.Vehicle
	if err := s.db.WithContext(ctx).Where("vehicle_number = ? AND user_id = ?", key, userID).First(&vehicle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NewValidationError("vehicle_number", "is not one of your registered vehicles")
		}
		return nil, nil, persistErr("load vehicle", err)
	}

	amount, err := fees.RoadTaxAmount(vehicle.EngineCC, req.Months)
	if err != nil {
		return nil, nil, NewValidationError("months", err.Error())
	}
	code, err := renewals.RoadTaxPeriodCode(req.Months)
	if err != nil {
		return nil, nil, NewValidationError("months", err.Error())
	}
	record, err := s.newRecord(ctx, RenewalRoadTax, key, userID, code, amount)
	if err != nil {
		return nil, nil, err
	}

	row := models.RoadTaxRenewal{VehicleNumber: key, EngineCC: vehicle.EngineCC, RenewalRecord: record}
	st, err := s.openPayment(ctx, RenewalRoadTax, &row, &row.ID, userID, key, amount)
	if err != nil {
		return nil, nil, err
	}
	return &row, st, nil
}

// RequestLicense prices a license renewal and opens a payment workflow for it.
func (s *RenewalService) RequestLicense(ctx context.Context, userID uint, req LicenseRenewalRequest) (*models.LicenseRenewal, *workflow.State, error) {
	if err := Validate(req); err != nil {
		return nil, nil, err
	}
	key := NormalizeKey(req.LicenseNumber)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DrivingLicense{}).
		Where("license_number = ? AND user_id = ?", key, userID).Count(&count).Error; err != nil {
		return nil, nil, persistErr("load license", err)
	}
	if count == 0 {
		return nil, nil, NewValidationError("license_number", "is not one of your registered licenses")
	}

	amount, err := fees.LicenseRenewalAmount(req.Period)
	if err != nil {
		return nil, nil, NewValidationError("period", err.Error())
	}
	record, err := s.newRecord(ctx, RenewalLicense, key, userID, req.Period, amount)
	if err != nil {
		return nil, nil, err
	}

	row := models.LicenseRenewal{LicenseNumber: key, RenewalRecord: record}
	st, err := s.openPayment(ctx, RenewalLicense, &row, &row.ID, userID, key, amount)
	if err != nil {
		return nil, nil, err
	}
	return &row, st, nil
}

// renewalTable names the tables behind a renewal kind.
type renewalTable struct {
	keyColumn string
	renewal   func() interface{}
	owner     func() interface{}
}

var renewalTables = map[string]renewalTable{
	RenewalRoadTax: {
		keyColumn: "vehicle_number",
		renewal:   func() interface{} { return &models.RoadTaxRenewal{} },
		owner:     func() interface{} { return &models.Vehicle{} },
	},
	RenewalLicense: {
		keyColumn: "license_number",
		renewal:   func() interface{} { return &models.LicenseRenewal{} },
		owner:     func() interface{} { return &models.DrivingLicense{} },
	},
}

// latestActiveExpiry returns the furthest expiry among the active renewals of
// a natural key, or nil when there is none.
func latestActiveExpiry(db *gorm.DB, kind, key string) (*time.Time, error) {
	table := renewalTables[kind]
	var latest []time.Time
	if err := db.Model(table.renewal()).
		Where(table.keyColumn+" = ? AND status = ?", key, models.RenewalActive).
		Order("expiry_date DESC").Limit(1).
		Pluck("expiry_date", &latest).Error; err != nil {
		return nil, persistErr("load latest expiry", err)
	}
	if len(latest) == 0 {
		return nil, nil
	}
	return &latest[0], nil
}

// newRecord builds a pending record. Its term is a quote; ConfirmPayment
// fixes the real term when the renewal is paid.
func (s *RenewalService) newRecord(ctx context.Context, kind, key string, userID uint, code string, amount decimal.Decimal) (models.RenewalRecord, error) {
	period, err := renewals.ParsePeriod(code)
	if err != nil {
		return models.RenewalRecord{}, NewValidationError("period", err.Error())
	}
	latest, err := latestActiveExpiry(s.db.WithContext(ctx), kind, key)
	if err != nil {
		return models.RenewalRecord{}, err
	}

	start, expiry := renewals.NextTerm(s.now().In(s.loc), latest, period)
	return models.RenewalRecord{
		UserID:        userID,
		RenewalPeriod: code,
		StartDate:     start,
		ExpiryDate:    expiry,
		Amount:        amount,
		PaymentStatus: models.PaymentPending,
		Status:        models.RenewalPending,
	}, nil
}

// openPayment stores the pending row and starts its payment workflow. The row
// is removed again when the workflow cannot be started.
func (s *RenewalService) openPayment(ctx context.Context, kind string, row interface{}, id *uint, userID uint, key string, amount decimal.Decimal) (*workflow.State, error) {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, persistErr("create "+kind+" renewal", err)
	}
	st, err := s.engine.Start(ctx, kind, userID, map[string]string{
		"record_id":   strconv.FormatUint(uint64(*id), 10),
		"natural_key": key,
		"amount":      amount.StringFixed(2),
	})
	if err != nil {
		if derr := s.db.WithContext(ctx).Unscoped().Delete(row).Error; derr != nil {
			logrus.WithError(derr).WithField("record_id", *id).Error("Failed to discard renewal without payment workflow")
		}
		return nil, persistErr("start payment workflow", err)
	}
	return st, nil
}

// PaymentState returns the open payment workflow behind token.
func (s *RenewalService) PaymentState(ctx context.Context, kind, token string, userID uint) (*workflow.State, error) {
	st, err := s.engine.Load(ctx, token, kind, userID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistErr("load payment workflow", err)
	}
	return st, nil
}

// pendingRenewal is the part of a renewal row ConfirmPayment needs.
type pendingRenewal struct {
	NaturalKey    string
	RenewalPeriod string
	PaymentStatus string
}

// ConfirmPayment simulates a successful payment: the pending record becomes
// paid and active with a generated transaction id. The term is computed again
// at this point, so renewals paid one after another chain instead of
// overlapping.
func (s *RenewalService) ConfirmPayment(ctx context.Context, kind, token string, userID uint) (*workflow.State, error) {
	st, err := s.PaymentState(ctx, kind, token, userID)
	if err != nil {
		return nil, err
	}
	if st.Stage != stageRequested {
		return nil, ErrInvalidTransition
	}
	recordID, err := strconv.ParseUint(st.Get("record_id"), 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	txnID := "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	paidAt := s.now()
	table := renewalTables[kind]

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []pendingRenewal
		if err := tx.Model(table.renewal()).
			Select(table.keyColumn+" AS natural_key, renewal_period, payment_status").
			Where("id = ? AND user_id = ?", recordID, userID).
			Limit(1).Scan(&rows).Error; err != nil {
			return persistErr("load renewal", err)
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		if rows[0].PaymentStatus != models.PaymentPending {
			return ErrInvalidTransition
		}
		pending := rows[0]

		// confirmations for one vehicle or license queue up behind this lock
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(table.keyColumn+" = ?", pending.NaturalKey).
			First(table.owner()).Error; err != nil {
			return persistErr("lock "+table.keyColumn, err)
		}

		period, err := renewals.ParsePeriod(pending.RenewalPeriod)
		if err != nil {
			return persistErr("read renewal period", err)
		}
		latest, err := latestActiveExpiry(tx, kind, pending.NaturalKey)
		if err != nil {
			return err
		}
		start, expiry := renewals.NextTerm(paidAt.In(s.loc), latest, period)

		res := tx.Model(table.renewal()).
			Where("id = ? AND payment_status = ?", recordID, models.PaymentPending).
			Updates(map[string]interface{}{
				"payment_status": models.PaymentPaid,
				"status":         models.RenewalActive,
				"transaction_id": txnID,
				"paid_at":        paidAt,
				"start_date":     start,
				"expiry_date":    expiry,
			})
		if res.Error != nil {
			return persistErr("mark renewal paid", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		if kind == RenewalLicense {
			if err := tx.Model(&models.DrivingLicense{}).
				Where("license_number = ? AND expiry_date < ?", pending.NaturalKey, expiry).
				Update("expiry_date", expiry).Error; err != nil {
				return persistErr("extend license expiry", err)
			}
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		// the record behind this workflow is gone, so it can never be paid
		if ferr := s.engine.Finish(ctx, st.Token); ferr != nil {
			logrus.WithError(ferr).WithField("record_id", recordID).Warn("Failed to drop orphaned payment workflow")
		}
	}
	if err != nil {
		return nil, err
	}

	renewalPayments.WithLabelValues(kind).Inc()
	logrus.WithFields(logrus.Fields{
		"kind":           kind,
		"record_id":      recordID,
		"user_id":        userID,
		"transaction_id": txnID,
	}).Info("Renewal payment confirmed")

	paid, err := s.engine.Advance(ctx, st, stageRequested, map[string]string{"transaction_id": txnID})
	if err != nil {
		// the payment is committed; the receipt page falls back to the record
		logrus.WithError(err).WithField("record_id", recordID).Warn("Failed to advance payment workflow")
		return st, nil
	}
	return paid, nil
}

// Status builds the renewal status page for a user.
func (s *RenewalService) Status(ctx context.Context, userID uint) (*RenewalStatus, error) {
	var roadTax []models.RoadTaxRenewal
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at, id").Find(&roadTax).Error; err != nil {
		return nil, persistErr("list road tax renewals", err)
	}
	var licenses []models.LicenseRenewal
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at, id").Find(&licenses).Error; err != nil {
		return nil, persistErr("list license renewals", err)
	}

	status := &RenewalStatus{}
	var paidRoad, paidLicense []renewals.Record
	for _, r := range roadTax {
		rec := toRecord(r.ID, r.VehicleNumber, r.CreatedAt, r.RenewalRecord)
		if r.PaymentStatus == models.PaymentPaid {
			paidRoad = append(paidRoad, rec)
		} else {
			status.Pending = append(status.Pending, rec)
		}
	}
	for _, r := range licenses {
		rec := toRecord(r.ID, r.LicenseNumber, r.CreatedAt, r.RenewalRecord)
		if r.PaymentStatus == models.PaymentPaid {
			paidLicense = append(paidLicense, rec)
		} else {
			status.Pending = append(status.Pending, rec)
		}
	}
	status.RoadTax = renewals.Aggregate(paidRoad)
	status.Licenses = renewals.Aggregate(paidLicense)
	return status, nil
}

func toRecord(id uint, key string, createdAt time.Time, r models.RenewalRecord) renewals.Record {
	return renewals.Record{
		ID:            id,
		NaturalKey:    key,
		Period:        r.RenewalPeriod,
		StartDate:     r.StartDate,
		ExpiryDate:    r.ExpiryDate,
		Amount:        r.Amount,
		PaymentStatus: r.PaymentStatus,
		Status:        r.Status,
		TransactionID: r.TransactionID,
		CreatedAt:     createdAt,
	}
}

// ExpireLapsed marks active renewals whose expiry has passed as expired.
func (s *RenewalService) ExpireLapsed(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, model := range []interface{}{&models.RoadTaxRenewal{}, &models.LicenseRenewal{}} {
		res := s.db.WithContext(ctx).Model(model).
			Where("status = ? AND expiry_date <= ?", models.RenewalActive, now).
			Update("status", models.RenewalExpired)
		if res.Error != nil {
			return total, persistErr(fmt.Sprintf("expire %T", model), res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}
