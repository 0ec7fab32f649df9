package public

import (
	"errors"

	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var attributionErrorRules = []mappedHandlerError{
	{target: service.ErrMissingAttribution, code: response.CodeBadRequest, msg: "referral attribution is required"},
	{target: service.ErrReferralBindingInvalid, code: response.CodeBadRequest, msg: "referral binding is invalid or expired"},
	{target: service.ErrReferralBindingConsumed, code: response.CodeConflict, msg: "referral binding already used"},
	{target: service.ErrReferralNotFound, code: response.CodeNotFound, msg: "referral code not found"},
	{target: service.ErrProductNotFound, code: response.CodeNotFound, msg: "product not found"},
	{target: service.ErrUnverifiedBusiness, code: response.CodeForbidden, msg: "business is not verified"},
}

var saleCreateErrorRules = []mappedHandlerError{
	{target: service.ErrSaleAmountMismatch, code: response.CodeBadRequest, msg: "amount must equal the product price"},
	{target: service.ErrCustomerEmailRequired, code: response.CodeBadRequest, msg: "customer_email is required for checkout"},
	{target: service.ErrSaleInvalid, code: response.CodeBadRequest, msg: "sale request invalid"},
	{target: service.ErrCheckoutUnavailable, code: response.CodeServiceUnavailable, msg: "checkout is temporarily unavailable"},
}

var settlementErrorRules = []mappedHandlerError{
	{target: service.ErrSaleInvalid, code: response.CodeBadRequest, msg: "transaction_id and tx_ref are required"},
	{target: service.ErrSaleNotFound, code: response.CodeNotFound, msg: "sale not found"},
	{target: service.ErrSaleNotPending, code: response.CodeConflict, msg: "sale is no longer pending"},
	{target: service.ErrPaymentCancelled, code: response.CodeBadRequest, msg: "payment cancelled"},
	{target: service.ErrPaymentFailed, code: response.CodeBadRequest, msg: "payment failed"},
	{target: service.ErrVerificationFailed, code: response.CodeUnprocessable, msg: "payment verification failed"},
}

var linkErrorRules = []mappedHandlerError{
	{target: service.ErrAffiliateRequired, code: response.CodeForbidden, msg: "affiliate role required"},
	{target: service.ErrUserNotFound, code: response.CodeUnauthorized, msg: "user not found"},
	{target: service.ErrProductNotFound, code: response.CodeNotFound, msg: "product not found"},
	{target: service.ErrUnverifiedBusiness, code: response.CodeForbidden, msg: "business is not verified"},
}

var productErrorRules = []mappedHandlerError{
	{target: service.ErrBusinessRequired, code: response.CodeForbidden, msg: "business role required"},
	{target: service.ErrProductForbidden, code: response.CodeForbidden, msg: "product belongs to another business"},
	{target: service.ErrProductNotFound, code: response.CodeNotFound, msg: "product not found"},
	{target: service.ErrProductInvalid, code: response.CodeBadRequest, msg: "product request invalid"},
	{target: service.ErrCommissionRateInvalid, code: response.CodeBadRequest, msg: "commission rate must be between 0 and 100"},
	{target: service.ErrUserNotFound, code: response.CodeUnauthorized, msg: "user not found"},
}

var withdrawalErrorRules = []mappedHandlerError{
	{target: service.ErrWithdrawalRoleInvalid, code: response.CodeForbidden, msg: "only affiliates and businesses can withdraw"},
	{target: service.ErrWithdrawalBelowMinimum, code: response.CodeBadRequest, msg: "withdrawal amount below minimum"},
	{target: service.ErrWithdrawalInvalidBankDetails, code: response.CodeBadRequest, msg: "bank details invalid"},
	{target: service.ErrWalletInvalidAmount, code: response.CodeBadRequest, msg: "amount must be positive"},
	{target: service.ErrInsufficientBalance, code: response.CodeBadRequest, msg: "insufficient balance"},
	{target: service.ErrUserNotFound, code: response.CodeUnauthorized, msg: "user not found"},
}

func respondResolveError(c *gin.Context, err error) {
	respondWithMappedError(c, err, attributionErrorRules, response.CodeInternal, "resolve referral failed")
}

func respondSaleCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(attributionErrorRules, saleCreateErrorRules), response.CodeInternal, "create sale failed")
}

func respondSettlementError(c *gin.Context, err error) {
	respondWithMappedError(c, err, settlementErrorRules, response.CodeInternal, "payment verification failed")
}

func respondLinkError(c *gin.Context, err error) {
	respondWithMappedError(c, err, linkErrorRules, response.CodeInternal, "referral link request failed")
}

func respondProductError(c *gin.Context, err error) {
	respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "product request failed")
}

func respondWithdrawalError(c *gin.Context, err error) {
	respondWithMappedError(c, err, withdrawalErrorRules, response.CodeInternal, "withdrawal request failed")
}
