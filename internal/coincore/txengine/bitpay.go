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

// bitpayTimeoutStop 剩余秒数低于该阈值即视为过期 (服务端验签也有延迟)
const bitpayTimeoutStop = 2

// BitPayEngine 商户发票支付装饰器
// 金额与费档由发票固定；执行时先让内层引擎准备未签名交易，
// 经发票后端验签后再签名并提交给后端 (不直接广播)
//
// 倒计时是引擎唯一的周期任务: 句柄放在 PendingTx.EngineState 里，
// 由 TransactionProcessor 在替换/放弃时取消
type BitPayEngine struct {
	coincore.TxEngineBase

	Inner   coincore.TxEngine
	Backend coincore.InvoiceBackend

	// Now 时间源，测试注入；nil 时用 time.Now
	Now func() time.Time

	client  BitPayClientEngine
	invoice *coincore.BitPayInvoiceTarget
}

func (e *BitPayEngine) Start(source coincore.BlockchainAccount, target coincore.TransactionTarget, refresh coincore.RefreshTrigger) {
	e.TxEngineBase.Start(source, target, refresh)
	e.Inner.Start(source, target, refresh)
}

func (e *BitPayEngine) AssertInputsValid() {
	// 目前只支持非托管 BTC/BCH 支付发票
	_, ok := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	coincore.EngineCheck(ok, "bitpay requires a non-custodial source, got %T", e.SourceAccount())

	asset := e.SourceAsset().Code
	coincore.EngineCheck(asset == "BTC" || asset == "BCH", "bitpay does not support %s", asset)

	invoice, ok := e.Target().(*coincore.BitPayInvoiceTarget)
	coincore.EngineCheck(ok, "bitpay requires an invoice target, got %T", e.Target())
	e.invoice = invoice

	client, ok := e.Inner.(BitPayClientEngine)
	coincore.EngineCheck(ok, "inner engine %T cannot prepare bitpay transactions", e.Inner)
	e.client = client

	e.Inner.AssertInputsValid()
}

func (e *BitPayEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// timeRemainingSecs 发票剩余秒数
func (e *BitPayEngine) timeRemainingSecs() int64 {
	return (e.invoice.ExpireTimeMs - e.now().UnixMilli()) / 1000
}

func (e *BitPayEngine) DoInitialiseTx(ctx context.Context) (coincore.PendingTx, error) {
	ptx, err := e.Inner.DoInitialiseTx(ctx)
	if err != nil {
		return coincore.PendingTx{}, err
	}
	// 发票固定金额 + 仅 Priority 费档
	out := ptx.WithAmount(e.invoice.InvoiceAmt)
	return out.WithFeeSelection(
		out.FeeSelection.WithLevels(coincore.FeeLevelPriority, coincore.FeeLevelPriority),
	), nil
}

// 金额由发票固定，在确认构建阶段写入，这里不做任何事
func (e *BitPayEngine) DoUpdateAmount(ctx context.Context, _ money.Money, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return ptx, nil
}

func (e *BitPayEngine) DoUpdateFeeLevel(ctx context.Context, ptx coincore.PendingTx, level coincore.FeeLevel, customAmount int64) (coincore.PendingTx, error) {
	if !ptx.FeeSelection.HasLevel(level) {
		return ptx, errno.ErrFeeLevelNotOffered
	}
	return ptx, nil
}

func (e *BitPayEngine) DoBuildConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out, err := e.Inner.DoUpdateAmount(ctx, e.invoice.InvoiceAmt, ptx)
	if err != nil {
		return ptx, err
	}
	out, err = e.Inner.DoBuildConfirmations(ctx, out)
	if err != nil {
		return ptx, err
	}
	out = e.startTimerIfNotStarted(out)
	return out.AddOrReplaceConfirmation(
		coincore.ConfirmationBitPayCountdown{RemainingSecs: e.timeRemainingSecs()},
	), nil
}

func (e *BitPayEngine) DoRefreshConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return ptx.AddOrReplaceConfirmation(
		coincore.ConfirmationBitPayCountdown{RemainingSecs: e.timeRemainingSecs()},
	), nil
}

// startTimerIfNotStarted 每个流程只启动一次倒计时任务
func (e *BitPayEngine) startTimerIfNotStarted(ptx coincore.PendingTx) coincore.PendingTx {
	if ptx.Countdown() != nil {
		return ptx
	}
	timerCtx, cancel := context.WithCancel(context.Background())
	go e.countdownLoop(timerCtx)
	return ptx.WithEngineState(coincore.EngineStateBitPayTimer, coincore.NewCountdownHandle(cancel))
}

func (e *BitPayEngine) countdownLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining := e.timeRemainingSecs()
			if remaining <= bitpayTimeoutStop {
				logger.Debug("bitpay invoice countdown expired",
					zap.String("invoice", e.invoice.InvoiceID))
				// 最后一跳: 触发完整复验，把已经"有效"的 PendingTx 作废
				e.TriggerRefresh(ctx, true)
				return
			}
			e.TriggerRefresh(ctx, false)
		}
	}
}

func (e *BitPayEngine) DoOptionUpdateRequest(ctx context.Context, ptx coincore.PendingTx, newValue coincore.TxConfirmationValue) (coincore.PendingTx, error) {
	return e.Inner.DoOptionUpdateRequest(ctx, ptx, newValue)
}

func (e *BitPayEngine) DoValidateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.Inner.DoValidateAmount(ctx, ptx)
}

func (e *BitPayEngine) DoValidateAll(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	// 过期检查优先于余额/费档有效性
	if e.timeRemainingSecs() <= bitpayTimeoutStop {
		return ptx.WithValidationState(coincore.InvoiceExpired), nil
	}
	return e.Inner.DoValidateAll(ctx, ptx)
}

func (e *BitPayEngine) DoExecute(ctx context.Context, ptx coincore.PendingTx, secondPassword string) (coincore.TxResult, error) {
	unsigned, err := e.client.DoPrepareTransaction(ctx, ptx)
	if err != nil {
		return nil, err
	}

	chain := e.SourceAsset().Code
	rawHex, size, err := SerializeTx(unsigned)
	if err != nil {
		return nil, err
	}
	if err := e.Backend.VerifyPayment(ctx, e.invoice.InvoiceID, chain, rawHex, size); err != nil {
		e.client.DoOnTransactionFailed(ctx, ptx, err)
		return nil, err
	}

	signed, err := e.client.DoSignTransaction(ctx, unsigned, ptx, secondPassword)
	if err != nil {
		e.client.DoOnTransactionFailed(ctx, ptx, err)
		return nil, err
	}

	// 提交给发票后端，由商户侧广播
	txID, err := e.Backend.SubmitPayment(ctx, e.invoice.InvoiceID, chain, signed.EncodedMsg, signed.MsgSize)
	if err != nil {
		e.client.DoOnTransactionFailed(ctx, ptx, err)
		return nil, err
	}

	e.client.DoOnTransactionSuccess(ctx, ptx)
	return coincore.HashedTxResult{TxID: txID, Amount: ptx.Amount}, nil
}

func (e *BitPayEngine) DoPostExecute(ctx context.Context, ptx coincore.PendingTx, result coincore.TxResult) (coincore.TxResult, error) {
	return result, e.Target().OnTxCompleted(ctx, result)
}
