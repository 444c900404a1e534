package coincore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"coincore/pkg/money"
)

// 外部协作方接口。实现归属于各资产模块或托管后端客户端，
// 引擎层只依赖这里的定义

// FeeOptions 链上费率档位 (最小单位每字节 / 每 gas)
type FeeOptions struct {
	RegularFee  int64
	PriorityFee int64
	// GasLimit 仅 EVM 链使用
	GasLimit int64
}

// FeeProvider 链上费率来源
type FeeProvider interface {
	FeeOptions(ctx context.Context, asset money.Currency) (FeeOptions, error)
}

// TransferLimits 产品转账限额
type TransferLimits struct {
	Min money.Money
	Max money.Money
}

// Tier KYC 认证等级
type Tier int

const (
	TierSilver Tier = 1
	TierGold   Tier = 2
)

// UserIdentity 用户认证信息
type UserIdentity interface {
	VerificationTier(ctx context.Context) (Tier, error)
}

// LimitsProvider 限额来源，部分产品的限额取决于认证等级
type LimitsProvider interface {
	// ProductTransferLimits sell/swap 等产品的分级限额 (以 fiat 计价)
	ProductTransferLimits(ctx context.Context, fiat money.Currency, product string, tier Tier) (TransferLimits, error)
	// BankTransferLimits 银行转账入金限额
	BankTransferLimits(ctx context.Context, fiat money.Currency, onlyEligible bool) (TransferLimits, error)
}

// MinDepositProvider 利息产品的最小存入金额 (法币计价)
type MinDepositProvider interface {
	MinInterestDeposit(ctx context.Context, fiat money.Currency) (money.Money, error)
}

// WithdrawLocksProvider 入金后的提现锁定期
type WithdrawLocksProvider interface {
	// WithdrawLockSeconds 返回锁定秒数，0 表示无锁定
	WithdrawLockSeconds(ctx context.Context, paymentMethod string, fiat money.Currency) (int64, error)
}

// BankPartner 银行合作方
type BankPartner string

const (
	BankPartnerYapily BankPartner = "YAPILY"
	BankPartnerYodlee BankPartner = "YODLEE"
)

// BankTransferAction 回跳场景
type BankTransferAction string

const (
	BankTransferLink BankTransferAction = "link"
	BankTransferPay  BankTransferAction = "pay"
)

// BankPartnerCallbackProvider 生成银行授权回跳 deep-link
type BankPartnerCallbackProvider interface {
	Callback(partner BankPartner, action BankTransferAction) (string, error)
}

// BankTransferDetails 托管后端的银行转账状态
type BankTransferDetails struct {
	ID               string
	Amount           money.Money
	AuthorisationURL string
}

// BankTransferService 托管法币入金通道
type BankTransferService interface {
	// StartBankTransfer 发起入金，callback 为空表示无需授权回跳
	StartBankTransfer(ctx context.Context, beneficiaryID string, amount money.Money, callback string) (string, error)
	// BankTransferCharge 查询入金的授权状态
	BankTransferCharge(ctx context.Context, paymentID string) (BankTransferDetails, error)
}

// ErrPendingOrdersLimitReached 账户级挂单数达到上限，由报价源返回
// Sell 引擎把它编码为 PENDING_ORDERS_LIMIT_REACHED 状态而不是失败
var ErrPendingOrdersLimitReached = errors.New("pending orders limit reached")

// CurrencyPair 报价的币对
type CurrencyPair struct {
	From money.Currency
	To   money.Currency
}

// TransferDirection 资金流向 (链上 -> 托管 等)
type TransferDirection string

const (
	DirectionFromUserKey TransferDirection = "FROM_USERKEY"
	DirectionInternal    TransferDirection = "INTERNAL"
)

// PricedQuote 一条定价报价
type PricedQuote struct {
	Rate                 decimal.Decimal
	SampleDepositAddress string
	ExpiresAt            time.Time
}

// QuoteProvider 按币对 + 方向返回最新报价
// amount 是用户当前输入的金额，定价方按量调价；零值表示尚未输入
type QuoteProvider interface {
	PricedQuote(ctx context.Context, pair CurrencyPair, direction TransferDirection, amount money.Money) (PricedQuote, error)
}

// ExchangeRates 最近一次的汇率 (1 主单位 crypto 对应的 fiat 主单位数)
type ExchangeRates interface {
	LastRate(crypto, fiat money.Currency) (decimal.Decimal, error)
}

// InvoiceBackend 商户发票后端: 先验签名前的交易，再提交已签名交易
// 广播由后端代替钱包完成
type InvoiceBackend interface {
	VerifyPayment(ctx context.Context, invoiceID, chain, txHex string, weight int) error
	SubmitPayment(ctx context.Context, invoiceID, chain, txHex string, weight int) (string, error)
}

// InterestBalanceStore 利息余额缓存，成功存入后必须 Flush
type InterestBalanceStore interface {
	FlushCaches(ctx context.Context, asset money.Currency) error
}
