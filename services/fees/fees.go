// Package fees prices road-tax and driving-license renewals.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidPeriod is returned for a renewal period the tables do not price.
var ErrInvalidPeriod = errors.New("invalid renewal period")

// ErrInvalidEngineCapacity is returned for a non-positive engine capacity.
var ErrInvalidEngineCapacity = errors.New("invalid engine capacity")

type bracket struct {
	maxCC  int
	annual int64
}

// annual road-tax rate by engine capacity, checked in ascending order
var roadTaxBrackets = []bracket{
	{1000, 20},
	{1200, 55},
	{1400, 70},
	{1600, 90},
	{1800, 200},
	{2000, 380},
	{2500, 550},
	{3000, 990},
}

const roadTaxAboveTopBracket = 1500

var licenseRates = map[string]decimal.Decimal{
	"1_year":  decimal.RequireFromString("30.00"),
	"3_years": decimal.RequireFromString("80.00"),
	"5_years": decimal.RequireFromString("110.00"),
}

// AnnualRoadTax returns the twelve-month rate for the engine capacity.
func AnnualRoadTax(engineCC int) decimal.Decimal {
	for _, b := range roadTaxBrackets {
		if engineCC <= b.maxCC {
			return decimal.NewFromInt(b.annual)
		}
	}
	return decimal.NewFromInt(roadTaxAboveTopBracket)
}

// RoadTaxAmount prices a 6 or 12 month road-tax renewal.
func RoadTaxAmount(engineCC int, months int) (decimal.Decimal, error) {
	if engineCC <= 0 {
		return decimal.Zero, ErrInvalidEngineCapacity
	}
	annual := AnnualRoadTax(engineCC)
	switch months {
	case 12:
		return annual, nil
	case 6:
		return annual.Div(decimal.NewFromInt(2)), nil
	default:
		return decimal.Zero, ErrInvalidPeriod
	}
}

// LicenseRenewalAmount prices a license renewal period code (1_year, 3_years, 5_years).
func LicenseRenewalAmount(period string) (decimal.Decimal, error) {
	amount, ok := licenseRates[period]
	if !ok {
		return decimal.Zero, ErrInvalidPeriod
	}
	return amount, nil
}
