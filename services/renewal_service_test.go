package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"
	"jpjportal_go/services/workflow"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var renewalToday = time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)

func newRenewalService(t *testing.T) (*RenewalService, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	engine := workflow.NewEngine(workflow.NewDBStore(db), 30*time.Minute)
	svc := NewRenewalService(db, engine, time.UTC)
	svc.now = func() time.Time { return renewalToday }
	return svc, db
}

func assertSameDay(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestRoadTaxRenewalFlow(t *testing.T) {
	svc, db := newRenewalService(t)
	ctx := context.Background()

	vehicle, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "wxy 1234", Make: "Perodua", EngineCC: 1500})
	require.NoError(t, err)
	assert.Equal(t, "WXY1234", vehicle.VehicleNumber)

	first, st, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "WXY1234", Months: 12})
	require.NoError(t, err)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(90)), "got %s", first.Amount)
	assert.Equal(t, models.PaymentPending, first.PaymentStatus)
	assertSameDay(t, time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC), first.StartDate)
	assertSameDay(t, time.Date(2031, 3, 15, 0, 0, 0, 0, time.UTC), first.ExpiryDate)
	assert.Equal(t, "90.00", st.Get("amount"))

	paid, err := svc.ConfirmPayment(ctx, RenewalRoadTax, st.Token, 9)
	require.NoError(t, err)
	assert.Equal(t, "paid", paid.Stage)
	assert.True(t, strings.HasPrefix(paid.Get("transaction_id"), "TXN-"))

	var stored models.RoadTaxRenewal
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, models.RenewalActive, stored.Status)
	assert.Equal(t, paid.Get("transaction_id"), stored.TransactionID)

	// renewing early extends from the active expiry
	second, st2, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "WXY1234", Months: 6})
	require.NoError(t, err)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(45)))
	assertSameDay(t, time.Date(2031, 3, 15, 0, 0, 0, 0, time.UTC), second.StartDate)
	assertSameDay(t, time.Date(2031, 9, 15, 0, 0, 0, 0, time.UTC), second.ExpiryDate)
	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st2.Token, 9)
	require.NoError(t, err)

	status, err := svc.Status(ctx, 9)
	require.NoError(t, err)
	require.Len(t, status.RoadTax, 1)
	h := status.RoadTax[0]
	assert.Equal(t, "WXY1234", h.NaturalKey)
	assertSameDay(t, time.Date(2031, 9, 15, 0, 0, 0, 0, time.UTC), h.CumulativeExpiry)
	assert.True(t, h.TotalAmount.Equal(decimal.NewFromInt(135)), "got %s", h.TotalAmount)
	assert.Empty(t, status.Pending)
}

func TestConfirmPaymentTwiceIsRejected(t *testing.T) {
	svc, _ := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1", EngineCC: 1000})
	require.NoError(t, err)
	_, st, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1", Months: 6})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st.Token, 9)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st.Token, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st.Token, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ConfirmPayment(ctx, RenewalLicense, st.Token, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingRenewalsChainWhenPaid(t *testing.T) {
	svc, db := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1234", EngineCC: 1500})
	require.NoError(t, err)

	// both requested before either is paid, so both quote the same term
	first, st1, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1234", Months: 12})
	require.NoError(t, err)
	second, st2, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1234", Months: 12})
	require.NoError(t, err)
	assertSameDay(t, first.StartDate, second.StartDate)

	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st1.Token, 9)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st2.Token, 9)
	require.NoError(t, err)

	var paid []models.RoadTaxRenewal
	require.NoError(t, db.Where("vehicle_number = ?", "ABC1234").Order("id").Find(&paid).Error)
	require.Len(t, paid, 2)
	assertSameDay(t, time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC), paid[0].StartDate)
	assertSameDay(t, time.Date(2031, 3, 15, 0, 0, 0, 0, time.UTC), paid[0].ExpiryDate)
	assertSameDay(t, time.Date(2031, 3, 15, 0, 0, 0, 0, time.UTC), paid[1].StartDate)
	assertSameDay(t, time.Date(2032, 3, 15, 0, 0, 0, 0, time.UTC), paid[1].ExpiryDate)

	status, err := svc.Status(ctx, 9)
	require.NoError(t, err)
	require.Len(t, status.RoadTax, 1)
	assertSameDay(t, paid[1].ExpiryDate, status.RoadTax[0].CumulativeExpiry)
}

type failingFlowStore struct {
	workflow.Store
}

func (failingFlowStore) Save(context.Context, workflow.State) error {
	return errors.New("flow store unavailable")
}

func TestRequestLeavesNoRowWhenPaymentCannotStart(t *testing.T) {
	db := dbtest.New(t)
	svc := NewRenewalService(db, workflow.NewEngine(failingFlowStore{}, 30*time.Minute), time.UTC)
	svc.now = func() time.Time { return renewalToday }
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1234", EngineCC: 1500})
	require.NoError(t, err)

	_, _, err = svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1234", Months: 12})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Unscoped().Model(&models.RoadTaxRenewal{}).Count(&count).Error)
	assert.Zero(t, count)

	status, err := svc.Status(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
}

func TestConfirmPaymentDropsWorkflowOfMissingRecord(t *testing.T) {
	svc, db := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1234", EngineCC: 1500})
	require.NoError(t, err)
	row, st, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1234", Months: 6})
	require.NoError(t, err)
	require.NoError(t, db.Unscoped().Delete(&models.RoadTaxRenewal{}, row.ID).Error)

	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st.Token, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.PaymentState(ctx, RenewalRoadTax, st.Token, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterVehicleDuplicate(t *testing.T) {
	svc, _ := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1234", EngineCC: 1300})
	require.NoError(t, err)

	_, err = svc.RegisterVehicle(ctx, 10, VehicleInput{VehicleNumber: "abc 1234", EngineCC: 1300})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = svc.RegisterVehicle(ctx, 10, VehicleInput{VehicleNumber: "", EngineCC: 0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "vehicle_number")
	assert.Contains(t, verr.Fields, "engine_cc")
}

func TestRequestRoadTaxRejectsForeignVehicleAndBadPeriod(t *testing.T) {
	svc, _ := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1234", EngineCC: 1300})
	require.NoError(t, err)

	var verr *ValidationError
	_, _, err = svc.RequestRoadTax(ctx, 10, RoadTaxRequest{VehicleNumber: "ABC1234", Months: 12})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "vehicle_number")

	_, _, err = svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1234", Months: 9})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "months")
}

func TestLicenseRenewalExtendsLicense(t *testing.T) {
	svc, db := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterLicense(ctx, 9, LicenseInput{LicenseNumber: "D1234567", LicenseClass: "d", ExpiryDate: "2030-01-01"})
	require.NoError(t, err)
	_, err = svc.RegisterLicense(ctx, 10, LicenseInput{LicenseNumber: "d1234567"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	renewal, st, err := svc.RequestLicense(ctx, 9, LicenseRenewalRequest{LicenseNumber: "D1234567", Period: "3_years"})
	require.NoError(t, err)
	assert.True(t, renewal.Amount.Equal(decimal.RequireFromString("80.00")))
	// the stored license already lapsed, so the term starts today
	assertSameDay(t, time.Date(2033, 3, 15, 0, 0, 0, 0, time.UTC), renewal.ExpiryDate)

	status, err := svc.Status(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, status.Pending, 1)
	assert.Empty(t, status.Licenses)

	_, err = svc.ConfirmPayment(ctx, RenewalLicense, st.Token, 9)
	require.NoError(t, err)

	var license models.DrivingLicense
	require.NoError(t, db.Where("license_number = ?", "D1234567").First(&license).Error)
	assertSameDay(t, time.Date(2033, 3, 15, 0, 0, 0, 0, time.UTC), license.ExpiryDate)
	assert.Equal(t, "D", license.LicenseClass)

	_, _, err = svc.RequestLicense(ctx, 9, LicenseRenewalRequest{LicenseNumber: "D1234567", Period: "2_years"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "period")
}

func TestExpireLapsed(t *testing.T) {
	svc, db := newRenewalService(t)
	ctx := context.Background()

	_, err := svc.RegisterVehicle(ctx, 9, VehicleInput{VehicleNumber: "ABC1", EngineCC: 1000})
	require.NoError(t, err)
	_, st, err := svc.RequestRoadTax(ctx, 9, RoadTaxRequest{VehicleNumber: "ABC1", Months: 6})
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, RenewalRoadTax, st.Token, 9)
	require.NoError(t, err)

	n, err := svc.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.now = func() time.Time { return renewalToday.AddDate(0, 7, 0) }
	n, err = svc.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var r models.RoadTaxRenewal
	require.NoError(t, db.Where("vehicle_number = ?", "ABC1").First(&r).Error)
	assert.Equal(t, models.RenewalExpired, r.Status)
}
