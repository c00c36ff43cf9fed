// Package renewals holds the renewal-period arithmetic shared by road-tax and
// driving-license renewals.
package renewals

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Known period codes.
const (
	SixMonths    = "6_months"
	TwelveMonths = "12_months"
	OneYear      = "1_year"
	ThreeYears   = "3_years"
	FiveYears    = "5_years"
)

var ErrUnknownPeriod = errors.New("unknown renewal period")

// Period is a parsed renewal duration.
type Period struct {
	Code   string
	Months int
}

// ParsePeriod reads codes of the form "<n>_month(s)" or "<n>_year(s)".
func ParsePeriod(code string) (Period, error) {
	num, unit, ok := strings.Cut(strings.TrimSpace(strings.ToLower(code)), "_")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, code)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Period{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, code)
	}
	switch unit {
	case "month", "months":
		return Period{Code: code, Months: n}, nil
	case "year", "years":
		return Period{Code: code, Months: n * 12}, nil
	default:
		return Period{Code: code, Months: 0}, fmt.Errorf("%w: %q", ErrUnknownPeriod, code)
	}
}

// AddTo extends t by the period length in calendar months.
func (p Period) AddTo(t time.Time) time.Time {
	return t.AddDate(0, p.Months, 0)
}

// RoadTaxPeriodCode maps the months offered for road tax (6 or 12) to a period code.
func RoadTaxPeriodCode(months int) (string, error) {
	switch months {
	case 6:
		return SixMonths, nil
	case 12:
		return TwelveMonths, nil
	}
	return "", fmt.Errorf("%w: %d months", ErrUnknownPeriod, months)
}

// NextTerm computes the validity window of a new renewal. A renewal made while
// the key's latest expiry is still in the future starts from that expiry;
// otherwise it starts today. latestExpiry may be nil for a first renewal.
func NextTerm(today time.Time, latestExpiry *time.Time, p Period) (start, expiry time.Time) {
	start = truncateDay(today)
	if latestExpiry != nil && latestExpiry.After(start) {
		start = *latestExpiry
	}
	return start, p.AddTo(start)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
