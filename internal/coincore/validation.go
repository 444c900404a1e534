package coincore

// ValidationState 表示 PendingTx 当前的业务校验结果
// 业务校验失败不是 error，而是一个状态值，由上层渲染对应的提示并允许用户修正
type ValidationState int

const (
	// Uninitialised 初始状态，金额尚未输入，不算错误
	Uninitialised ValidationState = iota
	// CanExecute 全部校验通过，可以执行
	CanExecute
	InvalidAmount
	InvalidAddress
	InsufficientFunds
	// InsufficientGas ERC-20 转账时 ETH 余额不足以支付 gas
	InsufficientGas
	UnderMinLimit
	OverMaxLimit
	OverSilverTierLimit
	OverGoldTierLimit
	// InvoiceExpired BitPay 发票已过期，与余额是否充足无关
	InvoiceExpired
	// OptionInvalid 必选确认项 (例如利息条款) 尚未勾选
	OptionInvalid
	// PendingOrdersLimitReached 账户级挂单数已达上限 (Sell 流程)
	PendingOrdersLimitReached
	UnknownError
)

var validationStateNames = map[ValidationState]string{
	Uninitialised:             "UNINITIALISED",
	CanExecute:                "CAN_EXECUTE",
	InvalidAmount:             "INVALID_AMOUNT",
	InvalidAddress:            "INVALID_ADDRESS",
	InsufficientFunds:         "INSUFFICIENT_FUNDS",
	InsufficientGas:           "INSUFFICIENT_GAS",
	UnderMinLimit:             "UNDER_MIN_LIMIT",
	OverMaxLimit:              "OVER_MAX_LIMIT",
	OverSilverTierLimit:       "OVER_SILVER_TIER_LIMIT",
	OverGoldTierLimit:         "OVER_GOLD_TIER_LIMIT",
	InvoiceExpired:            "INVOICE_EXPIRED",
	OptionInvalid:             "OPTION_INVALID",
	PendingOrdersLimitReached: "PENDING_ORDERS_LIMIT_REACHED",
	UnknownError:              "UNKNOWN_ERROR",
}

func (s ValidationState) String() string {
	if name, ok := validationStateNames[s]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// AssetAction 用户发起的资金操作类型
type AssetAction string

const (
	ActionSend             AssetAction = "send"
	ActionSell             AssetAction = "sell"
	ActionSwap             AssetAction = "swap"
	ActionFiatDeposit      AssetAction = "fiat_deposit"
	ActionInterestDeposit  AssetAction = "interest_deposit"
	ActionInterestWithdraw AssetAction = "interest_withdraw"
	ActionReceive          AssetAction = "receive"
)
