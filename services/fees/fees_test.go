package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoadTaxAmount(t *testing.T) {
	tests := []struct {
		name   string
		cc     int
		months int
		want   string
	}{
		{name: "1000cc yearly", cc: 1000, months: 12, want: "20.00"},
		{name: "1000cc half year", cc: 1000, months: 6, want: "10.00"},
		{name: "1001cc falls in next bracket", cc: 1001, months: 12, want: "55"},
		{name: "1600cc", cc: 1600, months: 12, want: "90"},
		{name: "1601cc yearly", cc: 1601, months: 12, want: "200.00"},
		{name: "2000cc half year", cc: 2000, months: 6, want: "190"},
		{name: "2500cc", cc: 2500, months: 12, want: "550"},
		{name: "3000cc half year", cc: 3000, months: 6, want: "495"},
		{name: "above top bracket", cc: 3001, months: 12, want: "1500"},
		{name: "odd half keeps decimals", cc: 1200, months: 6, want: "27.50"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := RoadTaxAmount(tc.cc, tc.months)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "expected %s, got %s", tc.want, got)
		})
	}
}

func TestRoadTaxAmountRejectsBadInput(t *testing.T) {
	_, err := RoadTaxAmount(1500, 3)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = RoadTaxAmount(0, 12)
	assert.ErrorIs(t, err, ErrInvalidEngineCapacity)
}

func TestLicenseRenewalAmount(t *testing.T) {
	for period, want := range map[string]string{"1_year": "30.00", "3_years": "80.00", "5_years": "110.00"} {
		got, err := LicenseRenewalAmount(period)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s: expected %s, got %s", period, want, got)
	}

	_, err := LicenseRenewalAmount("2_years")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}
