package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrReferralNotFound   = errors.New("referral code not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrSaleNotFound       = errors.New("sale not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrReconcileNotFound  = errors.New("reconciliation task not found")
	ErrUserNotFound       = errors.New("user not found")

	ErrMissingAttribution      = errors.New("missing referral attribution")
	ErrReferralBindingInvalid  = errors.New("referral binding invalid or expired")
	ErrReferralBindingConsumed = errors.New("referral binding already consumed")
	ErrUnverifiedBusiness      = errors.New("business is not verified")
	ErrAffiliateRequired       = errors.New("affiliate role required")
	ErrBusinessRequired        = errors.New("business role required")
	ErrProductForbidden        = errors.New("product belongs to another business")

	ErrPaymentCancelled        = errors.New("payment cancelled by customer")
	ErrPaymentFailed           = errors.New("payment failed")
	ErrCheckoutUnavailable     = errors.New("checkout unavailable")
	ErrVerificationFailed      = errors.New("payment verification failed")
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")

	ErrAlreadySettled = errors.New("sale already settled")
	ErrSaleNotPending = errors.New("sale is not pending")

	ErrInsufficientBalance          = errors.New("insufficient balance")
	ErrWithdrawalBelowMinimum       = errors.New("withdrawal amount below minimum")
	ErrWithdrawalInvalidBankDetails = errors.New("withdrawal bank details invalid")
	ErrWithdrawalStatusInvalid      = errors.New("withdrawal status does not allow this action")
	ErrWithdrawalRoleInvalid        = errors.New("only affiliates and businesses can withdraw")
	ErrWalletInvalidAmount          = errors.New("wallet amount must be positive")
	ErrSaleInvalid                  = errors.New("sale request invalid")
	ErrCommissionRateInvalid        = errors.New("commission rate must be between 0 and 100")
	ErrProductInvalid               = errors.New("product request invalid")
	ErrReconcileTaskNotRetryable    = errors.New("reconciliation task is not retryable")
	ErrCustomerEmailRequired        = errors.New("customer email required for hosted checkout")

	// ErrSaleAmountMismatch 买家提交的金额与商品标价不一致
	ErrSaleAmountMismatch = fmt.Errorf("%w: amount does not match product price", ErrSaleInvalid)

	// ErrPaymentMismatch 已验签的到账金额或币种与订单不符，需要人工处理
	ErrPaymentMismatch = fmt.Errorf("%w: paid amount or currency does not match sale", ErrVerificationFailed)

	// ErrPurgeWouldOverdraw 冲销已被提现的入账会使钱包余额为负，整批清理回滚
	ErrPurgeWouldOverdraw = fmt.Errorf("%w: purge would overdraw wallet", ErrInsufficientBalance)
)

var (
	attributionErrors  = []error{ErrMissingAttribution, ErrReferralBindingInvalid, ErrReferralBindingConsumed}
	notFoundErrors     = []error{ErrNotFound, ErrReferralNotFound, ErrProductNotFound, ErrSaleNotFound, ErrWithdrawalNotFound, ErrReconcileNotFound, ErrUserNotFound}
	verificationErrors = []error{ErrVerificationFailed, ErrWebhookSignatureInvalid}
	validationErrors   = []error{
		ErrWithdrawalBelowMinimum,
		ErrWithdrawalInvalidBankDetails,
		ErrWalletInvalidAmount,
		ErrSaleInvalid,
		ErrWithdrawalStatusInvalid,
		ErrCommissionRateInvalid,
		ErrProductInvalid,
		ErrCustomerEmailRequired,
	}
)

// IsAttributionError 归因类错误
func IsAttributionError(err error) bool {
	return isAny(err, attributionErrors)
}

// IsNotFoundError 资源不存在类错误
func IsNotFoundError(err error) bool {
	return isAny(err, notFoundErrors)
}

// IsVerificationError 支付校验类错误
func IsVerificationError(err error) bool {
	return isAny(err, verificationErrors)
}

// IsValidationError 参数校验类错误
func IsValidationError(err error) bool {
	return isAny(err, validationErrors)
}

func isAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
