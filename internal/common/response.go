package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// FailErr maps a domain error onto the response envelope. Unknown errors
// become a generic 500 without internal detail.
func FailErr(c *gin.Context, err error) {
	if e, ok := AsDomainError(err); ok {
		Fail(c, e.Status, e.Code, e.Message)
		return
	}
	Fail(c, http.StatusInternalServerError, 50000, "internal error")
}
