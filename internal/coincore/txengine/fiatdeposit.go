package txengine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/logger"
	"coincore/pkg/money"
)

const (
	// paymentMethodBankTransfer 提现锁定期查询用的支付方式标识
	paymentMethodBankTransfer = "BANK_TRANSFER"

	// 授权 URL 轮询参数
	approvalPollInterval = 2 * time.Second
	approvalPollMax      = 15
)

// FiatDepositEngine 法币入金引擎 (非装饰器，直连托管后端)
// 没有链上手续费概念；限额与提现锁定期在初始化时拉取；
// open banking 币种执行后轮询授权 URL，以 NeedsApprovalResult 收尾
type FiatDepositEngine struct {
	coincore.TxEngineBase

	Transfers coincore.BankTransferService
	Limits    coincore.LimitsProvider
	Locks     coincore.WithdrawLocksProvider
	Callbacks coincore.BankPartnerCallbackProvider
	Identity  coincore.UserIdentity

	bank *coincore.LinkedBankAccount
}

func (e *FiatDepositEngine) AssertInputsValid() {
	bank, ok := e.SourceAccount().(*coincore.LinkedBankAccount)
	coincore.EngineCheck(ok, "fiat deposit requires a linked bank source, got %T", e.SourceAccount())
	e.bank = bank

	target, ok := e.Target().(*coincore.FiatCustodialAccount)
	coincore.EngineCheck(ok, "fiat deposit requires a fiat wallet target, got %T", e.Target())
	coincore.EngineCheck(target.Fiat.Code == bank.Fiat.Code,
		"bank currency %s does not match wallet %s", bank.Fiat.Code, target.Fiat.Code)
}

func (e *FiatDepositEngine) DoInitialiseTx(ctx context.Context) (coincore.PendingTx, error) {
	fiat := e.bank.Fiat

	limits, err := e.Limits.BankTransferLimits(ctx, fiat, true)
	if err != nil {
		return coincore.PendingTx{}, err
	}
	lockSecs, err := e.Locks.WithdrawLockSeconds(ctx, paymentMethodBankTransfer, fiat)
	if err != nil {
		return coincore.PendingTx{}, err
	}

	zero := money.Zero(fiat)
	ptx := coincore.PendingTx{
		Amount:              zero,
		TotalBalance:        zero,
		AvailableBalance:    zero,
		FeeForFullAvailable: zero,
		FeeAmount:           zero,
		MinLimit:            &limits.Min,
		MaxLimit:            &limits.Max,
		SelectedFiat:        e.UserFiat(),
		FeeSelection:        coincore.NewFeeSelection(),
		ValidationState:     coincore.Uninitialised,
		EngineState:         map[string]any{},
	}
	if lockSecs > 0 {
		ptx = ptx.WithEngineState(coincore.EngineStateWithdrawLocks, secondsToDays(lockSecs))
	}
	return ptx, nil
}

func secondsToDays(secs int64) int64 {
	days := secs / 86400
	if days == 0 {
		days = 1
	}
	return days
}

func (e *FiatDepositEngine) DoUpdateAmount(ctx context.Context, amount money.Money, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return ptx.WithAmount(amount), nil
}

func (e *FiatDepositEngine) DoUpdateFeeLevel(ctx context.Context, ptx coincore.PendingTx, level coincore.FeeLevel, customAmount int64) (coincore.PendingTx, error) {
	if !ptx.FeeSelection.HasLevel(level) {
		return ptx, errno.ErrFeeLevelNotOffered
	}
	// 只支持 FeeLevelNone
	return ptx, nil
}

func (e *FiatDepositEngine) DoBuildConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	items := []coincore.TxConfirmationValue{
		coincore.ConfirmationPaymentMethod{
			Label:         e.bank.Label(),
			AccountNumber: e.bank.AccountNumber,
			AccountType:   e.bank.AccountType,
			Action:        coincore.ActionFiatDeposit,
		},
		coincore.ConfirmationTo{Label: e.Target().TargetLabel(), Action: coincore.ActionFiatDeposit},
	}
	// open banking 走银行授权，到账时间不可预估
	if !e.bank.IsOpenBankingCurrency() {
		items = append(items, coincore.ConfirmationEstimatedCompletion{})
	}
	items = append(items, coincore.ConfirmationAmount{Amount: ptx.Amount, Important: true})

	out := ptx.WithConfirmations(items...)
	if days, ok := ptx.EngineStateValue(coincore.EngineStateWithdrawLocks); ok {
		out = out.AddOrReplaceConfirmation(coincore.ConfirmationWithdrawLockPeriod{Days: days.(int64)})
	}
	return out, nil
}

func (e *FiatDepositEngine) DoRefreshConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.DoBuildConfirmations(ctx, ptx)
}

func (e *FiatDepositEngine) DoOptionUpdateRequest(ctx context.Context, ptx coincore.PendingTx, newValue coincore.TxConfirmationValue) (coincore.PendingTx, error) {
	return ptx.AddOrReplaceConfirmation(newValue), nil
}

func (e *FiatDepositEngine) DoValidateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	// 金额还没输入时保持 Uninitialised，不算错误
	if ptx.ValidationState == coincore.Uninitialised && ptx.Amount.IsZero() {
		return ptx, nil
	}
	return e.validateAmount(ctx, ptx)
}

func (e *FiatDepositEngine) validateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	if ptx.MinLimit == nil || ptx.MaxLimit == nil {
		return ptx.WithValidationState(coincore.UnknownError), nil
	}
	switch {
	case ptx.Amount.IsZero():
		return ptx.WithValidationState(coincore.InvalidAmount), nil
	case ptx.Amount.LessThan(*ptx.MinLimit):
		return ptx.WithValidationState(coincore.UnderMinLimit), nil
	case ptx.Amount.GreaterThan(*ptx.MaxLimit):
		// 超限提示取决于认证等级: 金卡用户已到顶，银卡用户可以升级后提额
		tier, err := e.Identity.VerificationTier(ctx)
		if err != nil {
			return ptx, err
		}
		if tier >= coincore.TierGold {
			return ptx.WithValidationState(coincore.OverGoldTierLimit), nil
		}
		return ptx.WithValidationState(coincore.OverSilverTierLimit), nil
	default:
		return ptx.WithValidationState(coincore.CanExecute), nil
	}
}

func (e *FiatDepositEngine) DoValidateAll(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.DoValidateAmount(ctx, ptx)
}

func (e *FiatDepositEngine) DoExecute(ctx context.Context, ptx coincore.PendingTx, secondPassword string) (coincore.TxResult, error) {
	beneficiary, err := e.bank.ReceiveAddress(ctx)
	if err != nil {
		return nil, err
	}

	callback := ""
	if e.bank.IsOpenBankingCurrency() {
		callback, err = e.Callbacks.Callback(e.bank.Partner, coincore.BankTransferPay)
		if err != nil {
			return nil, err
		}
	}

	paymentID, err := e.Transfers.StartBankTransfer(ctx, beneficiary, ptx.Amount, callback)
	if err != nil {
		return nil, err
	}
	return coincore.HashedTxResult{TxID: paymentID, Amount: ptx.Amount}, nil
}

// DoPostExecute open banking 币种在这里轮询授权 URL
// "需要授权"是成功但未完成的结果，不走错误通道
func (e *FiatDepositEngine) DoPostExecute(ctx context.Context, ptx coincore.PendingTx, result coincore.TxResult) (coincore.TxResult, error) {
	if !e.bank.IsOpenBankingCurrency() {
		return result, nil
	}

	hashed, ok := result.(coincore.HashedTxResult)
	if !ok {
		return result, nil
	}

	details, err := e.pollForAuthorisation(ctx, hashed.TxID)
	if err != nil {
		// 轮询失败不推翻已受理的入金，调用方会引导用户稍后到银行确认
		logger.Warn("bank approval poll gave up",
			zap.String("payment_id", hashed.TxID), zap.Error(err))
		return result, err
	}

	return coincore.NeedsApprovalResult{
		PaymentID:        hashed.TxID,
		AuthorisationURL: details.AuthorisationURL,
		Amount:           hashed.Amount,
	}, nil
}

func (e *FiatDepositEngine) pollForAuthorisation(ctx context.Context, paymentID string) (coincore.BankTransferDetails, error) {
	ticker := time.NewTicker(approvalPollInterval)
	defer ticker.Stop()

	for i := 0; i < approvalPollMax; i++ {
		details, err := e.Transfers.BankTransferCharge(ctx, paymentID)
		if err != nil {
			return coincore.BankTransferDetails{}, err
		}
		if details.AuthorisationURL != "" {
			return details, nil
		}
		select {
		case <-ctx.Done():
			return coincore.BankTransferDetails{}, ctx.Err()
		case <-ticker.C:
		}
	}
	return coincore.BankTransferDetails{}, errno.ErrApprovalPending
}
