package domain

import "errors"

// 业务错误：直接返回给调用方，不重试
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidParty           = errors.New("party id is required")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrBalanceNotFound        = errors.New("sfrt balance not found")
	ErrInsufficientBalance    = errors.New("insufficient sfrt balance")
	ErrAccountFrozen          = errors.New("sfrt balance is frozen")
	ErrSelfTransfer           = errors.New("cannot transfer to the same account")
)

// 存储错误
var (
	// ErrConcurrentUpdate 乐观锁冲突 / 序列化失败，可以重试
	ErrConcurrentUpdate = errors.New("optimistic lock conflict: balance modified by others")
	ErrPersistence      = errors.New("ledger persistence failure")
)

// IsBusinessError 业务校验失败（不需要包装成 ErrPersistence）
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidParty, ErrInvalidTransactionType, ErrBalanceNotFound,
		ErrInsufficientBalance, ErrAccountFrozen, ErrSelfTransfer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
