package coincore

import (
	"context"

	"coincore/pkg/money"
)

// AccountBalance 账户余额快照
type AccountBalance struct {
	Total     money.Money
	Available money.Money
}

// TransactionTarget 资金的去向，可以是地址、发票或另一个账户
type TransactionTarget interface {
	TargetLabel() string
	// OnTxCompleted 执行成功后的回调，接收方借此做自己的善后
	// (例如轮换收款地址)。失败不影响整体流程
	OnTxCompleted(ctx context.Context, result TxResult) error
}

// BlockchainAccount 是所有账户类型的公共能力
// 引擎通过 assertInputsValid 里的类型断言声明自己支持的具体账户种类，
// 其余代码只依赖这个接口
type BlockchainAccount interface {
	TransactionTarget
	Label() string
	// Currency 账户资产 (法币账户返回法币)
	Currency() money.Currency
	Balance(ctx context.Context) (AccountBalance, error)
	Actions() []AssetAction
	IsArchived() bool
	// ReceiveAddress 账户当前的收款地址 (法币账户返回受益人标识)
	ReceiveAddress(ctx context.Context) (string, error)
}

// BalanceProvider 外部余额源 (按账户种类注入)
type BalanceProvider interface {
	Balance(ctx context.Context, currency money.Currency) (AccountBalance, error)
}

// ---- 具体账户种类 (闭合集合) ----

// CryptoNonCustodialAccount 非托管链上账户
type CryptoNonCustodialAccount struct {
	AccountLabel string
	Asset        money.Currency
	Address      string
	Archived     bool
	Balances     BalanceProvider
	// GasBalances ERC-20 账户额外需要的 L1 (ETH) 余额源，其余为 nil
	GasBalances BalanceProvider
}

func (a *CryptoNonCustodialAccount) Label() string            { return a.AccountLabel }
func (a *CryptoNonCustodialAccount) TargetLabel() string      { return a.AccountLabel }
func (a *CryptoNonCustodialAccount) Currency() money.Currency { return a.Asset }
func (a *CryptoNonCustodialAccount) IsArchived() bool         { return a.Archived }

func (a *CryptoNonCustodialAccount) Balance(ctx context.Context) (AccountBalance, error) {
	return a.Balances.Balance(ctx, a.Asset)
}

// GasBalance L1 手续费资产余额 (仅 ERC-20 账户)
func (a *CryptoNonCustodialAccount) GasBalance(ctx context.Context) (AccountBalance, error) {
	if a.GasBalances == nil {
		return a.Balance(ctx)
	}
	return a.GasBalances.Balance(ctx, a.Asset.FeeCurrency())
}

func (a *CryptoNonCustodialAccount) Actions() []AssetAction {
	return []AssetAction{ActionSend, ActionSell, ActionSwap, ActionInterestDeposit, ActionReceive}
}

func (a *CryptoNonCustodialAccount) ReceiveAddress(ctx context.Context) (string, error) {
	return a.Address, nil
}

func (a *CryptoNonCustodialAccount) OnTxCompleted(ctx context.Context, result TxResult) error {
	return nil
}

// CustodialTradingAccount 托管交易账户
type CustodialTradingAccount struct {
	AccountLabel string
	Asset        money.Currency
	Balances     BalanceProvider
	// DepositAddress 托管侧的链上入金地址，作为转账目标时使用
	DepositAddress string
}

func (a *CustodialTradingAccount) Label() string            { return a.AccountLabel }
func (a *CustodialTradingAccount) TargetLabel() string      { return a.AccountLabel }
func (a *CustodialTradingAccount) Currency() money.Currency { return a.Asset }
func (a *CustodialTradingAccount) IsArchived() bool         { return false }

func (a *CustodialTradingAccount) Balance(ctx context.Context) (AccountBalance, error) {
	return a.Balances.Balance(ctx, a.Asset)
}

func (a *CustodialTradingAccount) Actions() []AssetAction {
	return []AssetAction{ActionSend, ActionSell, ActionSwap, ActionInterestDeposit, ActionReceive}
}

func (a *CustodialTradingAccount) ReceiveAddress(ctx context.Context) (string, error) {
	return a.DepositAddress, nil
}

func (a *CustodialTradingAccount) OnTxCompleted(ctx context.Context, result TxResult) error {
	return nil
}

// InterestAccount 生息账户，作为利息存入的目标
type InterestAccount struct {
	AccountLabel string
	Asset        money.Currency
	Address      string
	Balances     BalanceProvider
	// OnCompleted 执行成功后的回调钩子 (可选)
	OnCompleted func(ctx context.Context, result TxResult) error
}

func (a *InterestAccount) Label() string            { return a.AccountLabel }
func (a *InterestAccount) TargetLabel() string      { return a.AccountLabel }
func (a *InterestAccount) Currency() money.Currency { return a.Asset }
func (a *InterestAccount) IsArchived() bool         { return false }

func (a *InterestAccount) Balance(ctx context.Context) (AccountBalance, error) {
	return a.Balances.Balance(ctx, a.Asset)
}

func (a *InterestAccount) Actions() []AssetAction {
	return []AssetAction{ActionInterestWithdraw}
}

func (a *InterestAccount) ReceiveAddress(ctx context.Context) (string, error) {
	return a.Address, nil
}

func (a *InterestAccount) OnTxCompleted(ctx context.Context, result TxResult) error {
	if a.OnCompleted != nil {
		return a.OnCompleted(ctx, result)
	}
	return nil
}

// FiatCustodialAccount 法币钱包 (入金目标 / 卖出目标)
type FiatCustodialAccount struct {
	AccountLabel string
	Fiat         money.Currency
	Balances     BalanceProvider
}

func (a *FiatCustodialAccount) Label() string            { return a.AccountLabel }
func (a *FiatCustodialAccount) TargetLabel() string      { return a.AccountLabel }
func (a *FiatCustodialAccount) Currency() money.Currency { return a.Fiat }
func (a *FiatCustodialAccount) IsArchived() bool         { return false }

func (a *FiatCustodialAccount) Balance(ctx context.Context) (AccountBalance, error) {
	return a.Balances.Balance(ctx, a.Fiat)
}

func (a *FiatCustodialAccount) Actions() []AssetAction {
	return []AssetAction{ActionFiatDeposit}
}

func (a *FiatCustodialAccount) ReceiveAddress(ctx context.Context) (string, error) {
	return "", nil
}

func (a *FiatCustodialAccount) OnTxCompleted(ctx context.Context, result TxResult) error {
	return nil
}

// LinkedBankAccount 已关联的银行账户，法币入金的资金来源
type LinkedBankAccount struct {
	AccountLabel  string
	Fiat          money.Currency
	AccountNumber string
	AccountType   string
	Partner       BankPartner
	// BeneficiaryID 托管后端的受益人标识，发起转账时使用
	BeneficiaryID string
}

func (a *LinkedBankAccount) Label() string            { return a.AccountLabel }
func (a *LinkedBankAccount) TargetLabel() string      { return a.AccountLabel }
func (a *LinkedBankAccount) Currency() money.Currency { return a.Fiat }
func (a *LinkedBankAccount) IsArchived() bool         { return false }

func (a *LinkedBankAccount) Balance(ctx context.Context) (AccountBalance, error) {
	// 银行账户余额对钱包不可见
	return AccountBalance{
		Total:     money.Zero(a.Fiat),
		Available: money.Zero(a.Fiat),
	}, nil
}

func (a *LinkedBankAccount) Actions() []AssetAction {
	return []AssetAction{ActionFiatDeposit}
}

func (a *LinkedBankAccount) ReceiveAddress(ctx context.Context) (string, error) {
	return a.BeneficiaryID, nil
}

func (a *LinkedBankAccount) OnTxCompleted(ctx context.Context, result TxResult) error {
	return nil
}

// IsOpenBankingCurrency EUR/GBP 走 open banking，执行时需要银行回跳授权
func (a *LinkedBankAccount) IsOpenBankingCurrency() bool {
	return a.Fiat.Code == "EUR" || a.Fiat.Code == "GBP"
}

// ---- 目标种类 ----

// CryptoAddress 外部链上地址目标
type CryptoAddress struct {
	Asset   money.Currency
	Address string
	Name    string
}

func (t *CryptoAddress) TargetLabel() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Address
}

func (t *CryptoAddress) OnTxCompleted(ctx context.Context, result TxResult) error {
	return nil
}

// BitPayInvoiceTarget 商户发票目标: 金额与收款地址由发票固定，带过期时间
type BitPayInvoiceTarget struct {
	Asset        money.Currency
	Address      string
	InvoiceID    string
	Merchant     string
	InvoiceAmt   money.Money
	ExpireTimeMs int64
}

func (t *BitPayInvoiceTarget) TargetLabel() string { return "BitPay[" + t.Merchant + "]" }

func (t *BitPayInvoiceTarget) OnTxCompleted(ctx context.Context, result TxResult) error {
	return nil
}
