package txengine

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
)

// Deps 汇集所有引擎可能用到的协作方，由装配层注入一次
type Deps struct {
	Fees       coincore.FeeProvider
	UTXOSigner UTXOSigner
	EVMSigner  EVMSigner

	Quotes   coincore.QuoteProvider
	Limits   coincore.LimitsProvider
	Identity coincore.UserIdentity
	Rates    coincore.ExchangeRates

	InvoiceBackend coincore.InvoiceBackend

	MinDeposits      coincore.MinDepositProvider
	InterestBalances coincore.InterestBalanceStore

	BankTransfers coincore.BankTransferService
	Locks         coincore.WithdrawLocksProvider
	Callbacks     coincore.BankPartnerCallbackProvider

	// UserFiat 用户显示法币，零值按 USD 处理
	UserFiat money.Currency
	// QuoteRefresh 卖出报价刷新周期
	QuoteRefresh time.Duration
	// LargeTxPercent 大额交易警告阈值
	LargeTxPercent int
}

// Factory 按 (来源账户, 目标, 动作) 组装交易引擎
// 组合流程的装饰层次在这里集中描述，引擎自身互不感知
type Factory struct {
	deps Deps
}

func NewFactory(deps Deps) *Factory {
	return &Factory{deps: deps}
}

// chainParams UTXO 链的网络参数。BCH 复用 BTC 的主网参数，
// 所以 BCH 目标只接受 legacy (base58) 地址，cashaddr 格式在输入断言时被拒绝
func chainParams(asset money.Currency) *chaincfg.Params {
	return &chaincfg.MainNetParams
}

// onChainEngine 来源资产对应的裸链上引擎
func (f *Factory) onChainEngine(asset money.Currency) coincore.TxEngine {
	if asset.IsErc20() {
		return &Erc20Engine{
			TxEngineBase:    coincore.NewTxEngineBase(f.deps.UserFiat),
			Token:           asset,
			ContractAddress: asset.ContractAddress,
			Fees:            f.deps.Fees,
			Signer:          f.deps.EVMSigner,
		}
	}
	return &UTXOEngine{
		TxEngineBase:   coincore.NewTxEngineBase(f.deps.UserFiat),
		Chain:          asset,
		ChainParams:    chainParams(asset),
		Fees:           f.deps.Fees,
		Signer:         f.deps.UTXOSigner,
		LargeTxPercent: f.deps.LargeTxPercent,
	}
}

// Engine 为给定的资金来源/目标/动作挑选并组装引擎
// 不支持的组合返回 ErrFlowNotFound；组装出的引擎尚未 Start
func (f *Factory) Engine(source coincore.BlockchainAccount, target coincore.TransactionTarget, action coincore.AssetAction) (coincore.TxEngine, error) {
	switch src := source.(type) {
	case *coincore.CryptoNonCustodialAccount:
		return f.nonCustodialEngine(src, target, action)
	case *coincore.LinkedBankAccount:
		if _, ok := target.(*coincore.FiatCustodialAccount); ok && action == coincore.ActionFiatDeposit {
			return &FiatDepositEngine{
				TxEngineBase: coincore.NewTxEngineBase(f.deps.UserFiat),
				Transfers:    f.deps.BankTransfers,
				Limits:       f.deps.Limits,
				Locks:        f.deps.Locks,
				Callbacks:    f.deps.Callbacks,
				Identity:     f.deps.Identity,
			}, nil
		}
		return nil, errno.ErrFlowNotFound
	default:
		return nil, errno.ErrFlowNotFound
	}
}

func (f *Factory) nonCustodialEngine(src *coincore.CryptoNonCustodialAccount, target coincore.TransactionTarget, action coincore.AssetAction) (coincore.TxEngine, error) {
	inner := f.onChainEngine(src.Asset)

	switch t := target.(type) {
	case *coincore.BitPayInvoiceTarget:
		return &BitPayEngine{
			TxEngineBase: coincore.NewTxEngineBase(f.deps.UserFiat),
			Inner:        inner,
			Backend:      f.deps.InvoiceBackend,
		}, nil

	case *coincore.InterestAccount:
		if action != coincore.ActionInterestDeposit {
			return nil, errno.ErrFlowNotFound
		}
		return &InterestDepositEngine{
			TxEngineBase: coincore.NewTxEngineBase(f.deps.UserFiat),
			Inner:        inner,
			MinDeposits:  f.deps.MinDeposits,
			Rates:        f.deps.Rates,
			Balances:     f.deps.InterestBalances,
		}, nil

	case *coincore.FiatCustodialAccount:
		if action != coincore.ActionSell {
			return nil, errno.ErrFlowNotFound
		}
		return &SellEngine{
			TxEngineBase: coincore.NewTxEngineBase(f.deps.UserFiat),
			Inner:        inner,
			Quotes:       f.deps.Quotes,
			Limits:       f.deps.Limits,
			Identity:     f.deps.Identity,
			Rates:        f.deps.Rates,
			QuoteRefresh: f.deps.QuoteRefresh,
		}, nil

	case *coincore.CryptoAddress:
		if action != coincore.ActionSend {
			return nil, errno.ErrFlowNotFound
		}
		if t.Asset.Code != src.Asset.Code {
			return nil, errno.ErrTargetNotFound
		}
		return inner, nil

	// 转入托管交易账户仍然是一笔链上转账，目标是托管侧的入金地址
	case *coincore.CustodialTradingAccount:
		if action != coincore.ActionSend {
			return nil, errno.ErrFlowNotFound
		}
		if t.Asset.Code != src.Asset.Code {
			return nil, errno.ErrTargetNotFound
		}
		return inner, nil

	default:
		return nil, errno.ErrFlowNotFound
	}
}
