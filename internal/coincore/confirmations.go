package coincore

import "coincore/pkg/money"

// TxConfirmation 确认项种类标签
type TxConfirmation int

const (
	ConfirmFrom TxConfirmation = iota
	ConfirmTo
	ConfirmAmount
	ConfirmTotal
	ConfirmNetworkFee
	ConfirmMemo
	ConfirmPaymentMethod
	ConfirmEstimatedCompletion
	ConfirmBitPayCountdown
	ConfirmWithdrawLockPeriod
	ConfirmAgreementInterestTandC
	ConfirmAgreementInterestTransfer
	ConfirmLargeTxWarning
)

// TxConfirmationValue 是确认列表里的一个条目 (闭合的 tagged union)
// 每个变体只携带渲染/复验自身所需的数据，归属于包含它的 PendingTx，不对外共享
type TxConfirmationValue interface {
	Confirmation() TxConfirmation
}

// ConfirmationFrom 来源账户
type ConfirmationFrom struct {
	Label string
}

func (ConfirmationFrom) Confirmation() TxConfirmation { return ConfirmFrom }

// ConfirmationTo 目标
type ConfirmationTo struct {
	Label  string
	Action AssetAction
}

func (ConfirmationTo) Confirmation() TxConfirmation { return ConfirmTo }

// ConfirmationAmount 转账金额
type ConfirmationAmount struct {
	Amount money.Money
	// Important 金额是否在 UI 上高亮 (法币入金时为 true)
	Important bool
}

func (ConfirmationAmount) Confirmation() TxConfirmation { return ConfirmAmount }

// ConfirmationTotal 金额 + 手续费合计
type ConfirmationTotal struct {
	Total money.Money
}

func (ConfirmationTotal) Confirmation() TxConfirmation { return ConfirmTotal }

// ConfirmationNetworkFee 链上手续费 (币种可能与转账资产不同)
type ConfirmationNetworkFee struct {
	Fee   money.Money
	Asset money.Currency
}

func (ConfirmationNetworkFee) Confirmation() TxConfirmation { return ConfirmNetworkFee }

// ConfirmationMemo 备注，Editable=false 时用户不可再修改 (利息存入流程锁定)
type ConfirmationMemo struct {
	Text     string
	Editable bool
}

func (ConfirmationMemo) Confirmation() TxConfirmation { return ConfirmMemo }

// ConfirmationPaymentMethod 银行支付方式
type ConfirmationPaymentMethod struct {
	Label         string
	AccountNumber string
	AccountType   string
	Action        AssetAction
}

func (ConfirmationPaymentMethod) Confirmation() TxConfirmation { return ConfirmPaymentMethod }

// ConfirmationEstimatedCompletion 预计到账时间 (固定文案，无数据)
type ConfirmationEstimatedCompletion struct{}

func (ConfirmationEstimatedCompletion) Confirmation() TxConfirmation {
	return ConfirmEstimatedCompletion
}

// ConfirmationBitPayCountdown 发票剩余秒数，每秒刷新
type ConfirmationBitPayCountdown struct {
	RemainingSecs int64
}

func (ConfirmationBitPayCountdown) Confirmation() TxConfirmation { return ConfirmBitPayCountdown }

// ConfirmationWithdrawLockPeriod 入金后的提现锁定期 (天)
type ConfirmationWithdrawLockPeriod struct {
	Days int64
}

func (ConfirmationWithdrawLockPeriod) Confirmation() TxConfirmation {
	return ConfirmWithdrawLockPeriod
}

// ConfirmationOption 布尔型确认项 (协议勾选、大额交易确认)
type ConfirmationOption struct {
	Kind     TxConfirmation
	Accepted bool
	// Required 为 true 时必须勾选才能通过 DoValidateAll
	Required bool
}

func (o ConfirmationOption) Confirmation() TxConfirmation { return o.Kind }
