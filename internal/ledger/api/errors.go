package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
)

// StatusOf 业务错误到 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidParty),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBalanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAccountFrozen),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError 存储错误不把细节暴露给调用方
func RespondError(c *gin.Context, err error) {
	status := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal ledger error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
