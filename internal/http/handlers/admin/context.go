package admin

import (
	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetUserID(c)
}

func parsePathUint(c *gin.Context, name string) (uint, bool) {
	return handlershared.ParseUintParam(c, name)
}
