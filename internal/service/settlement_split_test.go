package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateCommission(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{
		{name: "ten_percent", amount: "5000", rate: "10", want: "500"},
		{name: "fractional", amount: "1234.56", rate: "7.5", want: "92.59"},
		{name: "zero_rate", amount: "5000", rate: "0", want: "0"},
		{name: "zero_amount", amount: "0", rate: "20", want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateCommission(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.rate))
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestCalculateSettlementSplitScenario(t *testing.T) {
	split := CalculateSettlementSplit(decimal.NewFromInt(5000), decimal.NewFromInt(500), decimal.RequireFromString("0.05"))
	assert.Equal(t, "500.00", split.Commission.String())
	assert.Equal(t, "250.00", split.PlatformFee.String())
	assert.Equal(t, "4250.00", split.BusinessRevenue.String())
}

func TestCalculateSettlementSplitFloorsRevenue(t *testing.T) {
	split := CalculateSettlementSplit(decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.RequireFromString("0.05"))
	assert.Equal(t, "0.00", split.BusinessRevenue.String())
	assert.Equal(t, "100.00", split.Commission.String())

	capped := CalculateSettlementSplit(decimal.NewFromInt(100), decimal.NewFromInt(150), decimal.Zero)
	assert.Equal(t, "100.00", capped.Commission.String())
}
