package service

import (
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SettlementSplit 一笔销售的资金拆分
type SettlementSplit struct {
	Amount          models.Money `json:"amount"`
	Commission      models.Money `json:"commission"`
	PlatformFee     models.Money `json:"platform_fee"`
	BusinessRevenue models.Money `json:"business_revenue"`
}

// CalculateCommission 按百分比佣金率计算佣金（保留 2 位小数）
func CalculateCommission(amount decimal.Decimal, ratePercent decimal.Decimal) decimal.Decimal {
	if amount.LessThanOrEqual(decimal.Zero) || ratePercent.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return amount.Mul(ratePercent).Div(hundred).Round(2)
}

// CalculateSettlementSplit 计算佣金、平台费与商家收入，结算与展示共用此函数
func CalculateSettlementSplit(amount, commission, platformFeeRate decimal.Decimal) SettlementSplit {
	amount = amount.Round(2)
	if commission.IsNegative() {
		commission = decimal.Zero
	}
	if commission.GreaterThan(amount) {
		commission = amount
	}
	if platformFeeRate.IsNegative() {
		platformFeeRate = decimal.Zero
	}
	fee := amount.Mul(platformFeeRate).Round(2)
	revenue := amount.Sub(commission).Sub(fee).Round(2)
	if revenue.IsNegative() {
		revenue = decimal.Zero
	}
	return SettlementSplit{
		Amount:          models.NewMoneyFromDecimal(amount),
		Commission:      models.NewMoneyFromDecimal(commission),
		PlatformFee:     models.NewMoneyFromDecimal(fee),
		BusinessRevenue: models.NewMoneyFromDecimal(revenue),
	}
}
