package txengine

import (
	"context"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
)

// InterestDepositEngine 利息存入装饰器
// 金额/手续费/执行机制全部委托给内层链上引擎，只覆盖业务规则:
// 单一 Regular 费档、法币计价的最小存入额、强制条款勾选、备注锁定，
// 成功后刷掉利息余额缓存
type InterestDepositEngine struct {
	coincore.TxEngineBase

	Inner       coincore.TxEngine
	MinDeposits coincore.MinDepositProvider
	Rates       coincore.ExchangeRates
	Balances    coincore.InterestBalanceStore
}

func (e *InterestDepositEngine) Start(source coincore.BlockchainAccount, target coincore.TransactionTarget, refresh coincore.RefreshTrigger) {
	e.TxEngineBase.Start(source, target, refresh)
	e.Inner.Start(source, target, refresh)
}

func (e *InterestDepositEngine) AssertInputsValid() {
	_, ok := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	coincore.EngineCheck(ok, "interest deposit requires a non-custodial source, got %T", e.SourceAccount())

	target, ok := e.Target().(*coincore.InterestAccount)
	coincore.EngineCheck(ok, "interest deposit requires an interest account target, got %T", e.Target())
	coincore.EngineCheck(target.Asset.Code == e.SourceAsset().Code,
		"interest account asset %s does not match source %s", target.Asset.Code, e.SourceAsset().Code)

	e.Inner.AssertInputsValid()
}

func (e *InterestDepositEngine) DoInitialiseTx(ctx context.Context) (coincore.PendingTx, error) {
	ptx, err := e.Inner.DoInitialiseTx(ctx)
	if err != nil {
		return coincore.PendingTx{}, err
	}

	minLimit, err := e.minLimitCrypto(ctx)
	if err != nil {
		return coincore.PendingTx{}, err
	}

	out := ptx.WithLimits(&minLimit, ptx.MaxLimit)
	return out.WithFeeSelection(
		out.FeeSelection.WithLevels(coincore.FeeLevelRegular, coincore.FeeLevelRegular),
	), nil
}

// minLimitCrypto 最小存入额以法币配置，用最近汇率换算成来源资产
func (e *InterestDepositEngine) minLimitCrypto(ctx context.Context) (money.Money, error) {
	fiatMin, err := e.MinDeposits.MinInterestDeposit(ctx, e.UserFiat())
	if err != nil {
		return money.Money{}, err
	}
	rate, err := e.Rates.LastRate(e.SourceAsset(), e.UserFiat())
	if err != nil {
		return money.Money{}, err
	}
	if rate.IsZero() {
		return money.Money{}, errno.ErrLimitsUnavailable
	}
	return money.FromMajor(e.SourceAsset(), fiatMin.ToMajor().Div(rate)), nil
}

func (e *InterestDepositEngine) DoUpdateAmount(ctx context.Context, amount money.Money, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.Inner.DoUpdateAmount(ctx, amount, ptx)
}

func (e *InterestDepositEngine) DoUpdateFeeLevel(ctx context.Context, ptx coincore.PendingTx, level coincore.FeeLevel, customAmount int64) (coincore.PendingTx, error) {
	if !ptx.FeeSelection.HasLevel(level) {
		return ptx, errno.ErrFeeLevelNotOffered
	}
	// 只有一个档位，无需重算
	return ptx, nil
}

func (e *InterestDepositEngine) DoBuildConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out, err := e.Inner.DoBuildConfirmations(ctx, ptx)
	if err != nil {
		return ptx, err
	}
	// 内层重建整体替换了确认列表，已有勾选要从进来的快照里找
	out = e.addAgreements(out, ptx)

	// 内层重建会整体替换确认列表，备注从进来的状态里捞回并锁定，
	// 存入后无法从利息账户侧修改
	if memo, ok := ptx.GetConfirmation(coincore.ConfirmMemo); ok {
		locked := memo.(coincore.ConfirmationMemo)
		locked.Editable = false
		out = out.AddOrReplaceConfirmation(locked)
	}
	return out, nil
}

// addAgreements 条款与转账确认是必选项，勾选状态从 prior 快照沿用
func (e *InterestDepositEngine) addAgreements(out, prior coincore.PendingTx) coincore.PendingTx {
	for _, kind := range []coincore.TxConfirmation{
		coincore.ConfirmAgreementInterestTandC,
		coincore.ConfirmAgreementInterestTransfer,
	} {
		accepted := false
		if prev, ok := prior.GetConfirmation(kind); ok {
			accepted = prev.(coincore.ConfirmationOption).Accepted
		}
		out = out.AddOrReplaceConfirmation(coincore.ConfirmationOption{
			Kind:     kind,
			Accepted: accepted,
			Required: true,
		})
	}
	return out
}

func (e *InterestDepositEngine) DoRefreshConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.DoBuildConfirmations(ctx, ptx)
}

func (e *InterestDepositEngine) DoOptionUpdateRequest(ctx context.Context, ptx coincore.PendingTx, newValue coincore.TxConfirmationValue) (coincore.PendingTx, error) {
	switch newValue.Confirmation() {
	case coincore.ConfirmAgreementInterestTandC, coincore.ConfirmAgreementInterestTransfer:
		return ptx.AddOrReplaceConfirmation(newValue), nil
	default:
		out, err := e.Inner.DoOptionUpdateRequest(ctx, ptx, newValue)
		if err != nil {
			return ptx, err
		}
		return e.addAgreements(out, out), nil
	}
}

func (e *InterestDepositEngine) DoValidateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out, err := e.Inner.DoValidateAmount(ctx, ptx)
	if err != nil {
		return ptx, err
	}
	// 内层引擎没有最小限额概念，这里补一刀:
	// 即使内层判定 CAN_EXECUTE，低于最小存入额仍然是 UNDER_MIN_LIMIT
	if out.Amount.IsPositive() && out.MinLimit != nil && out.Amount.LessThan(*out.MinLimit) {
		return out.WithValidationState(coincore.UnderMinLimit), nil
	}
	return out, nil
}

func (e *InterestDepositEngine) DoValidateAll(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out, err := e.DoValidateAmount(ctx, ptx)
	if err != nil {
		return ptx, err
	}
	if out.ValidationState == coincore.CanExecute && !optionsValid(out) {
		return out.WithValidationState(coincore.OptionInvalid), nil
	}
	return out, nil
}

func (e *InterestDepositEngine) DoExecute(ctx context.Context, ptx coincore.PendingTx, secondPassword string) (coincore.TxResult, error) {
	result, err := e.Inner.DoExecute(ctx, ptx, secondPassword)
	if err != nil {
		return nil, err
	}
	// 链上已出账，利息余额缓存立即失效
	_ = e.Balances.FlushCaches(ctx, e.SourceAsset())
	return result, nil
}

func (e *InterestDepositEngine) DoPostExecute(ctx context.Context, ptx coincore.PendingTx, result coincore.TxResult) (coincore.TxResult, error) {
	return result, e.Target().OnTxCompleted(ctx, result)
}
