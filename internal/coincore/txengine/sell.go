package txengine

import (
	"context"
	"errors"
	"time"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
)

// productSell 请求分级限额时的产品标识
const productSell = "SELL"

// defaultQuoteRefresh 报价后台刷新周期 (可被配置覆盖)
const defaultQuoteRefresh = 30 * time.Second

// SellEngine 非托管账户卖出引擎: 链上转账到撮合方的入金地址，
// 余额/手续费/找零复用内层链上引擎，报价与限额由本层维护
type SellEngine struct {
	coincore.TxEngineBase

	Inner    coincore.TxEngine
	Quotes   coincore.QuoteProvider
	Limits   coincore.LimitsProvider
	Identity coincore.UserIdentity
	Rates    coincore.ExchangeRates
	// QuoteRefresh 为 0 时使用默认周期
	QuoteRefresh time.Duration

	stream *QuoteStream
}

func (e *SellEngine) Start(source coincore.BlockchainAccount, target coincore.TransactionTarget, refresh coincore.RefreshTrigger) {
	e.TxEngineBase.Start(source, target, refresh)
	// 内层引擎的链上目标要等报价的入金地址，初始化时再绑定
}

func (e *SellEngine) AssertInputsValid() {
	_, ok := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	coincore.EngineCheck(ok, "sell requires a non-custodial crypto source, got %T", e.SourceAccount())

	target, ok := e.Target().(*coincore.FiatCustodialAccount)
	coincore.EngineCheck(ok, "sell requires a fiat wallet target, got %T", e.Target())
	coincore.EngineCheck(target.Fiat.IsFiat, "sell target currency %s is not fiat", target.Fiat.Code)
}

// targetFiat 卖出所得的法币，同时也是本流程的显示法币
func (e *SellEngine) targetFiat() money.Currency {
	return e.Target().(*coincore.FiatCustodialAccount).Fiat
}

func (e *SellEngine) DoInitialiseTx(ctx context.Context) (coincore.PendingTx, error) {
	asset := e.SourceAsset()
	fiat := e.targetFiat()

	interval := e.QuoteRefresh
	if interval <= 0 {
		interval = defaultQuoteRefresh
	}

	stream, err := NewQuoteStream(ctx, e.Quotes, coincore.CurrencyPair{From: asset, To: fiat},
		coincore.DirectionFromUserKey, interval)
	if err != nil {
		// 挂单数到顶: 返回一个不可执行的空 PendingTx，让 UI 能解释原因
		if errors.Is(err, coincore.ErrPendingOrdersLimitReached) {
			zero := money.Zero(asset)
			return coincore.PendingTx{
				Amount:              zero,
				TotalBalance:        zero,
				AvailableBalance:    zero,
				FeeForFullAvailable: zero,
				FeeAmount:           zero,
				SelectedFiat:        fiat,
				FeeSelection:        coincore.NewFeeSelection(),
				ValidationState:     coincore.PendingOrdersLimitReached,
				EngineState:         map[string]any{},
			}, nil
		}
		return coincore.PendingTx{}, err
	}
	e.stream = stream

	// 入金地址来自报价，内层链上引擎到这里才能绑定目标
	e.retargetInner(stream.Latest())

	ptx, err := e.Inner.DoInitialiseTx(ctx)
	if err != nil {
		return coincore.PendingTx{}, err
	}

	min, max, err := e.cryptoLimits(ctx, asset, fiat)
	if err != nil {
		return coincore.PendingTx{}, err
	}

	ptx = ptx.WithLimits(min, max)
	ptx.SelectedFiat = fiat
	// 卖出没有可选费档，手续费由链上引擎按 Regular 扣除
	ptx.FeeSelection = coincore.NewFeeSelection()
	return ptx, nil
}

// retargetInner 把内层引擎指向报价携带的入金地址
func (e *SellEngine) retargetInner(quote coincore.PricedQuote) {
	e.Inner.Start(e.SourceAccount(), &coincore.CryptoAddress{
		Asset:   e.SourceAsset(),
		Address: quote.SampleDepositAddress,
		Name:    e.Target().TargetLabel(),
	}, nil)
}

// cryptoLimits 分级限额以法币计价，按最近汇率换算成交易资产
func (e *SellEngine) cryptoLimits(ctx context.Context, asset, fiat money.Currency) (*money.Money, *money.Money, error) {
	tier, err := e.Identity.VerificationTier(ctx)
	if err != nil {
		return nil, nil, err
	}
	limits, err := e.Limits.ProductTransferLimits(ctx, fiat, productSell, tier)
	if err != nil {
		return nil, nil, err
	}
	rate, err := e.Rates.LastRate(asset, fiat)
	if err != nil {
		return nil, nil, err
	}
	if rate.IsZero() {
		return nil, nil, errno.ErrQuoteUnavailable
	}

	min := money.FromMajor(asset, limits.Min.ToMajor().Div(rate))
	max := money.FromMajor(asset, limits.Max.ToMajor().Div(rate))
	return &min, &max, nil
}

// dormant 流程没有活跃的报价流: 挂单数到顶的空流程，或执行收尾/放弃后。
// 这些状态下的生命周期调用全部原样返回，不能再碰 e.stream
func (e *SellEngine) dormant(ptx coincore.PendingTx) bool {
	return ptx.ValidationState == coincore.PendingOrdersLimitReached || e.stream == nil
}

func (e *SellEngine) DoUpdateAmount(ctx context.Context, amount money.Money, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	if e.dormant(ptx) {
		return ptx, nil
	}
	e.stream.UpdateAmount(amount)
	return e.Inner.DoUpdateAmount(ctx, amount, ptx)
}

func (e *SellEngine) DoUpdateFeeLevel(ctx context.Context, ptx coincore.PendingTx, level coincore.FeeLevel, customAmount int64) (coincore.PendingTx, error) {
	if !ptx.FeeSelection.HasLevel(level) {
		return ptx, errno.ErrFeeLevelNotOffered
	}
	return ptx, nil
}

func (e *SellEngine) DoBuildConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	if e.dormant(ptx) {
		return ptx, nil
	}
	quote := e.stream.Latest()
	fiatValue := money.FromMajor(e.targetFiat(), ptx.Amount.ToMajor().Mul(quote.Rate))

	return ptx.WithConfirmations(
		coincore.ConfirmationFrom{Label: e.SourceAccount().Label()},
		coincore.ConfirmationTo{Label: e.Target().TargetLabel(), Action: coincore.ActionSell},
		coincore.ConfirmationAmount{Amount: ptx.Amount},
		coincore.ConfirmationNetworkFee{Fee: ptx.FeeAmount, Asset: e.SourceAsset()},
		coincore.ConfirmationTotal{Total: fiatValue},
	), nil
}

func (e *SellEngine) DoRefreshConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.DoBuildConfirmations(ctx, ptx)
}

func (e *SellEngine) DoOptionUpdateRequest(ctx context.Context, ptx coincore.PendingTx, newValue coincore.TxConfirmationValue) (coincore.PendingTx, error) {
	return ptx.AddOrReplaceConfirmation(newValue), nil
}

func (e *SellEngine) DoValidateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	if ptx.ValidationState == coincore.PendingOrdersLimitReached {
		return ptx, nil
	}
	return e.Inner.DoValidateAmount(ctx, ptx)
}

func (e *SellEngine) DoValidateAll(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	if ptx.ValidationState == coincore.PendingOrdersLimitReached {
		return ptx, nil
	}
	return e.Inner.DoValidateAll(ctx, ptx)
}

func (e *SellEngine) DoExecute(ctx context.Context, ptx coincore.PendingTx, secondPassword string) (coincore.TxResult, error) {
	if e.dormant(ptx) {
		return nil, errno.ErrNotValidated
	}
	// 执行前用最新报价的入金地址，旧报价的地址可能已失效
	e.retargetInner(e.stream.Latest())
	return e.Inner.DoExecute(ctx, ptx, secondPassword)
}

func (e *SellEngine) DoPostExecute(ctx context.Context, ptx coincore.PendingTx, result coincore.TxResult) (coincore.TxResult, error) {
	if e.stream != nil {
		e.stream.Stop()
		e.stream = nil
	}
	out, err := e.Inner.DoPostExecute(ctx, ptx, result)
	if err != nil {
		return out, err
	}
	return out, e.Target().OnTxCompleted(ctx, out)
}

// Stop 终止报价流。流程被放弃 (未执行) 时由驱动方调用
func (e *SellEngine) Stop() {
	if e.stream != nil {
		e.stream.Stop()
		e.stream = nil
	}
}
