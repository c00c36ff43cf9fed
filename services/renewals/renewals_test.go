package renewals

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		code   string
		months int
	}{
		{SixMonths, 6},
		{TwelveMonths, 12},
		{OneYear, 12},
		{ThreeYears, 36},
		{FiveYears, 60},
		{"1_month", 1},
	}
	for _, tc := range tests {
		p, err := ParsePeriod(tc.code)
		require.NoError(t, err, tc.code)
		assert.Equal(t, tc.months, p.Months, tc.code)
	}

	for _, bad := range []string{"", "years", "0_years", "x_months", "3_weeks"} {
		_, err := ParsePeriod(bad)
		assert.ErrorIs(t, err, ErrUnknownPeriod, bad)
	}
}

func TestRoadTaxPeriodCode(t *testing.T) {
	code, err := RoadTaxPeriodCode(6)
	require.NoError(t, err)
	assert.Equal(t, SixMonths, code)

	code, err = RoadTaxPeriodCode(12)
	require.NoError(t, err)
	assert.Equal(t, TwelveMonths, code)

	_, err = RoadTaxPeriodCode(9)
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestAggregateChainsPeriodsFromFirstExpiry(t *testing.T) {
	e0 := date(2025, 3, 1)
	created := date(2024, 3, 1)
	records := []Record{
		{ID: 3, NaturalKey: "ABC1234", Period: SixMonths, ExpiryDate: date(2026, 9, 1), Amount: decimal.RequireFromString("45"), CreatedAt: created.Add(48 * time.Hour)},
		{ID: 1, NaturalKey: "ABC1234", Period: TwelveMonths, ExpiryDate: e0, Amount: decimal.RequireFromString("90"), CreatedAt: created},
		{ID: 2, NaturalKey: "ABC1234", Period: TwelveMonths, ExpiryDate: date(2025, 1, 1), Amount: decimal.RequireFromString("90.50"), CreatedAt: created.Add(24 * time.Hour)},
	}

	hs := Aggregate(records)

	require.Len(t, hs, 1)
	h := hs[0]
	assert.Equal(t, "ABC1234", h.NaturalKey)
	assert.Equal(t, e0.AddDate(0, 12, 0).AddDate(0, 12, 0).AddDate(0, 6, 0), h.CumulativeExpiry)
	assert.Equal(t, date(2027, 3, 1), h.CumulativeExpiry)
	assert.True(t, h.TotalAmount.Equal(decimal.RequireFromString("225.50")), "got %s", h.TotalAmount)
	assert.Equal(t, []uint{1, 2, 3}, []uint{h.Records[0].ID, h.Records[1].ID, h.Records[2].ID})
	assert.Equal(t, uint(3), h.Latest.ID)
}

func TestAggregateGroupsByNaturalKey(t *testing.T) {
	records := []Record{
		{ID: 1, NaturalKey: "WXY9", Period: OneYear, ExpiryDate: date(2026, 1, 1), Amount: decimal.NewFromInt(30), CreatedAt: date(2025, 1, 1)},
		{ID: 2, NaturalKey: "ABC1", Period: ThreeYears, ExpiryDate: date(2027, 5, 5), Amount: decimal.NewFromInt(80), CreatedAt: date(2024, 5, 5)},
		{ID: 3, NaturalKey: "WXY9", Period: FiveYears, ExpiryDate: date(2030, 6, 1), Amount: decimal.NewFromInt(110), CreatedAt: date(2025, 6, 1)},
	}

	hs := Aggregate(records)

	require.Len(t, hs, 2)
	assert.Equal(t, "ABC1", hs[0].NaturalKey)
	assert.Equal(t, date(2027, 5, 5), hs[0].CumulativeExpiry)
	assert.Equal(t, "WXY9", hs[1].NaturalKey)
	assert.Equal(t, date(2031, 1, 1), hs[1].CumulativeExpiry)
	assert.True(t, hs[1].TotalAmount.Equal(decimal.NewFromInt(140)))
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
}

func TestNextTerm(t *testing.T) {
	p, err := ParsePeriod(TwelveMonths)
	require.NoError(t, err)
	today := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	start, expiry := NextTerm(today, nil, p)
	assert.Equal(t, date(2025, 6, 15), start)
	assert.Equal(t, date(2026, 6, 15), expiry)

	future := date(2025, 9, 1)
	start, expiry = NextTerm(today, &future, p)
	assert.Equal(t, future, start)
	assert.Equal(t, date(2026, 9, 1), expiry)

	lapsed := date(2025, 1, 1)
	start, expiry = NextTerm(today, &lapsed, p)
	assert.Equal(t, date(2025, 6, 15), start)
	assert.Equal(t, date(2026, 6, 15), expiry)
}
