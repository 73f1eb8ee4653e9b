package xchain

// TxResult is a transaction's ternary engine result code: success, retriable
// failure, or permanent failure.
type TxResult int32

const TesSuccess TxResult = 0

// IsSuccess reports whether the transaction was applied successfully.
func (t TxResult) IsSuccess() bool {
	return t == TesSuccess
}

// IsRetriable reports whether the failure class allows a later retry
// (ter-range codes).
func (t TxResult) IsRetriable() bool {
	return t >= -99 && t <= -1
}
