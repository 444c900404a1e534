package txengine

import (
	"math/big"

	"coincore/internal/coincore"
)

func bigInt(v int64) *big.Int { return big.NewInt(v) }

// validateBalance 通用金额校验: 零金额保持 Uninitialised (不算错)，
// 正金额依次校验余额、最小/最大限额。限额比较含边界 (等于 max 合法)
func validateBalance(ptx coincore.PendingTx) coincore.PendingTx {
	if ptx.Amount.IsZero() && ptx.ValidationState == coincore.Uninitialised {
		return ptx
	}
	if !ptx.Amount.IsPositive() {
		return ptx.WithValidationState(coincore.InvalidAmount)
	}
	if ptx.Amount.GreaterThan(ptx.AvailableBalance) {
		return ptx.WithValidationState(coincore.InsufficientFunds)
	}
	if ptx.MinLimit != nil && ptx.Amount.LessThan(*ptx.MinLimit) {
		return ptx.WithValidationState(coincore.UnderMinLimit)
	}
	if ptx.MaxLimit != nil && ptx.Amount.GreaterThan(*ptx.MaxLimit) {
		return ptx.WithValidationState(coincore.OverMaxLimit)
	}
	return ptx.WithValidationState(coincore.CanExecute)
}

// optionsValid 所有必选确认项都已勾选
func optionsValid(ptx coincore.PendingTx) bool {
	for _, c := range ptx.Confirmations {
		if opt, ok := c.(coincore.ConfirmationOption); ok {
			if opt.Required && !opt.Accepted {
				return false
			}
		}
	}
	return true
}
