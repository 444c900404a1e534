package coincore

import "coincore/pkg/money"

// TxResult 执行结果 (闭合 union)
// NeedsApprovalResult 是"成功但待授权"的结果变体，而不是错误 ——
// 银行授权跳转属于正常流程的一部分
type TxResult interface {
	ResultAmount() money.Money
}

// HashedTxResult 带链上哈希或支付 ID 的执行结果
type HashedTxResult struct {
	TxID   string
	Amount money.Money
}

func (r HashedTxResult) ResultAmount() money.Money { return r.Amount }

// UnHashedTxResult 无标识符的执行结果 (托管内部转账)
type UnHashedTxResult struct {
	Amount money.Money
}

func (r UnHashedTxResult) ResultAmount() money.Money { return r.Amount }

// NeedsApprovalResult 需要用户跳转到银行完成授权
type NeedsApprovalResult struct {
	PaymentID        string
	AuthorisationURL string
	Amount           money.Money
}

func (r NeedsApprovalResult) ResultAmount() money.Money { return r.Amount }
