package admin

import (
	"errors"

	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

var adminErrorRules = []mappedHandlerError{
	{target: service.ErrWithdrawalNotFound, code: response.CodeNotFound, msg: "withdrawal not found"},
	{target: service.ErrWithdrawalStatusInvalid, code: response.CodeConflict, msg: "withdrawal status does not allow this action"},
	{target: service.ErrPurgeWouldOverdraw, code: response.CodeConflict, msg: "purge would overdraw a wallet that has already paid out"},
	{target: service.ErrInsufficientBalance, code: response.CodeBadRequest, msg: "insufficient balance"},
	{target: service.ErrReconcileNotFound, code: response.CodeNotFound, msg: "reconciliation task not found"},
	{target: service.ErrReconcileTaskNotRetryable, code: response.CodeConflict, msg: "reconciliation task is not retryable"},
	{target: service.ErrSaleNotFound, code: response.CodeNotFound, msg: "sale not found"},
	{target: service.ErrSaleNotPending, code: response.CodeConflict, msg: "sale is not pending"},
}

func respondAdminError(c *gin.Context, err error, fallbackMsg string) {
	for _, rule := range adminErrorRules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, response.CodeInternal, fallbackMsg, err)
}
