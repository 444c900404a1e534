package coincore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"coincore/pkg/errno"
	"coincore/pkg/logger"
	"coincore/pkg/money"
	"coincore/pkg/monitor"
)

// TxObserver 处理器每产生一个新的 PendingTx 就通知一次 (UI 订阅点)
type TxObserver func(ptx PendingTx)

// ExecutionRecorder 执行成功后落库
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, rec ExecutionRecord) error
}

// ExecutionEvents 执行成功后对外广播
type ExecutionEvents interface {
	PublishExecuted(ctx context.Context, rec ExecutionRecord) error
}

// ExecutionRecord 一笔已执行交易的持久化快照
type ExecutionRecord struct {
	TxID             string
	Asset            string
	Action           AssetAction
	Amount           string
	Fee              string
	Source           string
	Target           string
	AuthorisationURL string
	ExecutedAt       time.Time
}

// StoppableEngine 持有后台任务的引擎 (报价流) 在流程放弃时需要善后
type StoppableEngine interface {
	Stop()
}

// TransactionProcessor 驱动单个交易流程的状态机
//
// 串行化: 同一流程同时只允许一个在途调用，冲突返回 ErrFlowBusy 而不是排队。
// 每次成功的生命周期调用都会替换内部的 PendingTx 快照；
// 金额/费档/确认项变化会清掉"已校验"标记，执行前必须重新通过 DoValidateAll
type TransactionProcessor struct {
	engine   TxEngine
	source   BlockchainAccount
	target   TransactionTarget
	action   AssetAction
	recorder ExecutionRecorder
	events   ExecutionEvents
	observer TxObserver

	mu        sync.Mutex
	ptx       PendingTx
	started   bool
	validated bool
	executed  bool
}

// NewTransactionProcessor 绑定引擎并完成 Start + 输入断言
// AssertInputsValid 的 panic 会原样传出，组合非法属于调用方 bug
func NewTransactionProcessor(engine TxEngine, source BlockchainAccount, target TransactionTarget, action AssetAction) *TransactionProcessor {
	p := &TransactionProcessor{engine: engine, source: source, target: target, action: action}
	engine.Start(source, target, p)
	engine.AssertInputsValid()
	return p
}

// WithSinks 注入落库与广播 (可选，nil 表示跳过)
func (p *TransactionProcessor) WithSinks(recorder ExecutionRecorder, events ExecutionEvents) *TransactionProcessor {
	p.recorder = recorder
	p.events = events
	return p
}

// WithObserver 注入 PendingTx 快照回调
func (p *TransactionProcessor) WithObserver(obs TxObserver) *TransactionProcessor {
	p.observer = obs
	return p
}

// lock TryLock 语义: 有在途调用时立即失败
func (p *TransactionProcessor) lock() error {
	if !p.mu.TryLock() {
		return errno.ErrFlowBusy
	}
	return nil
}

// replace 用新的 PendingTx 快照替换当前快照
// 旧快照携带的倒计时句柄若没有被新快照继承，必须取消掉
func (p *TransactionProcessor) replace(next PendingTx) {
	if old := p.ptx.Countdown(); old != nil && next.Countdown() != old {
		old.Cancel()
	}
	p.ptx = next
	if p.observer != nil {
		p.observer(next)
	}
}

// PendingTx 当前快照
func (p *TransactionProcessor) PendingTx() PendingTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ptx
}

// Initialise 产生第一个 PendingTx
func (p *TransactionProcessor) Initialise(ctx context.Context) (PendingTx, error) {
	if err := p.lock(); err != nil {
		return PendingTx{}, err
	}
	defer p.mu.Unlock()

	ptx, err := p.engine.DoInitialiseTx(ctx)
	if err != nil {
		return PendingTx{}, err
	}
	p.replace(ptx)
	p.started = true
	p.validated = false

	if monitor.Business != nil {
		monitor.Business.TxInitialisedTotal.
			WithLabelValues(p.source.Currency().Code, string(p.action)).Inc()
	}
	return ptx, nil
}

// UpdateAmount 替换金额。任何金额变化都会作废上一次的校验结果
func (p *TransactionProcessor) UpdateAmount(ctx context.Context, amount money.Money) (PendingTx, error) {
	return p.mutate(ctx, func(ctx context.Context, ptx PendingTx) (PendingTx, error) {
		return p.engine.DoUpdateAmount(ctx, amount, ptx)
	})
}

// UpdateFeeLevel 切换费档
func (p *TransactionProcessor) UpdateFeeLevel(ctx context.Context, level FeeLevel, customAmount int64) (PendingTx, error) {
	return p.mutate(ctx, func(ctx context.Context, ptx PendingTx) (PendingTx, error) {
		return p.engine.DoUpdateFeeLevel(ctx, ptx, level, customAmount)
	})
}

// BuildConfirmations 重建确认列表
func (p *TransactionProcessor) BuildConfirmations(ctx context.Context) (PendingTx, error) {
	return p.mutate(ctx, func(ctx context.Context, ptx PendingTx) (PendingTx, error) {
		return p.engine.DoBuildConfirmations(ctx, ptx)
	})
}

// UpdateOption 应用用户对单个确认项的修改
func (p *TransactionProcessor) UpdateOption(ctx context.Context, newValue TxConfirmationValue) (PendingTx, error) {
	return p.mutate(ctx, func(ctx context.Context, ptx PendingTx) (PendingTx, error) {
		return p.engine.DoOptionUpdateRequest(ctx, ptx, newValue)
	})
}

// mutate 通用的"改了就要重校验"路径
func (p *TransactionProcessor) mutate(ctx context.Context, fn func(context.Context, PendingTx) (PendingTx, error)) (PendingTx, error) {
	if err := p.lock(); err != nil {
		return PendingTx{}, err
	}
	defer p.mu.Unlock()

	if !p.started {
		return PendingTx{}, errno.ErrFlowNotFound
	}
	out, err := fn(ctx, p.ptx)
	if err != nil {
		return p.ptx, err
	}
	p.replace(out)
	p.validated = false
	return out, nil
}

// ValidateAmount 轻量金额校验，不授予执行资格
func (p *TransactionProcessor) ValidateAmount(ctx context.Context) (PendingTx, error) {
	if err := p.lock(); err != nil {
		return PendingTx{}, err
	}
	defer p.mu.Unlock()

	out, err := p.engine.DoValidateAmount(ctx, p.ptx)
	if err != nil {
		return p.ptx, err
	}
	p.replace(out)
	return out, nil
}

// ValidateAll 完整校验。只有结果为 CAN_EXECUTE 才授予执行资格
func (p *TransactionProcessor) ValidateAll(ctx context.Context) (PendingTx, error) {
	if err := p.lock(); err != nil {
		return PendingTx{}, err
	}
	defer p.mu.Unlock()

	out, err := p.engine.DoValidateAll(ctx, p.ptx)
	if err != nil {
		return p.ptx, err
	}
	p.replace(out)
	p.validated = out.ValidationState == CanExecute

	if !p.validated && monitor.Business != nil {
		monitor.Business.ValidationFailsTotal.
			WithLabelValues(out.ValidationState.String()).Inc()
	}
	return out, nil
}

// Execute 执行交易，整个流程只允许成功一次
// 执行前必须刚通过 ValidateAll 且中间没有任何修改
func (p *TransactionProcessor) Execute(ctx context.Context, secondPassword string) (TxResult, error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	if p.executed {
		return nil, errno.ErrAlreadyExecuted
	}
	if !p.validated {
		return nil, errno.ErrNotValidated
	}

	asset := p.source.Currency().Code
	start := time.Now()

	result, err := p.engine.DoExecute(ctx, p.ptx, secondPassword)
	if err != nil {
		if monitor.Business != nil {
			monitor.Business.TxFailedTotal.WithLabelValues(asset, string(p.action)).Inc()
		}
		return nil, err
	}
	p.executed = true

	// 执行已成功，倒计时任务不再需要
	if h := p.ptx.Countdown(); h != nil {
		h.Cancel()
		p.ptx = p.ptx.WithoutEngineState(EngineStateBitPayTimer)
	}

	if monitor.Business != nil {
		monitor.Business.TxExecutedTotal.WithLabelValues(asset, string(p.action)).Inc()
		monitor.Business.ExecuteDuration.WithLabelValues(asset).Observe(time.Since(start).Seconds())
	}

	// 善后失败不推翻已成功的执行
	final, postErr := p.engine.DoPostExecute(ctx, p.ptx, result)
	if postErr != nil {
		logger.Warn("post-execute failed", zap.String("asset", asset), zap.Error(postErr))
		final = result
	}

	p.sink(ctx, final)
	return final, nil
}

// sink 落库 + 广播，尽力而为
func (p *TransactionProcessor) sink(ctx context.Context, result TxResult) {
	if p.recorder == nil && p.events == nil {
		return
	}
	rec := ExecutionRecord{
		Asset:      p.source.Currency().Code,
		Action:     p.action,
		Amount:     result.ResultAmount().String(),
		Fee:        p.ptx.FeeAmount.String(),
		Source:     p.source.Label(),
		Target:     p.target.TargetLabel(),
		ExecutedAt: time.Now(),
	}
	switch r := result.(type) {
	case HashedTxResult:
		rec.TxID = r.TxID
	case NeedsApprovalResult:
		rec.TxID = r.PaymentID
		rec.AuthorisationURL = r.AuthorisationURL
	}

	if p.recorder != nil {
		if err := p.recorder.RecordExecution(ctx, rec); err != nil {
			logger.Warn("execution record not persisted", zap.String("tx_id", rec.TxID), zap.Error(err))
		}
	}
	if p.events != nil {
		if err := p.events.PublishExecuted(ctx, rec); err != nil {
			logger.Warn("execution event not published", zap.String("tx_id", rec.TxID), zap.Error(err))
		}
	}
}

// RefreshConfirmations 实现 RefreshTrigger，由引擎的周期任务回调
// revalidate=true 时额外做一次完整校验 (发票过期的最后一跳)
func (p *TransactionProcessor) RefreshConfirmations(ctx context.Context, revalidate bool) error {
	if err := p.lock(); err != nil {
		// 刷新与用户操作撞车时直接丢弃这一跳，下一跳会补上
		return nil
	}
	defer p.mu.Unlock()

	if !p.started || p.executed {
		return nil
	}
	out, err := p.engine.DoRefreshConfirmations(ctx, p.ptx)
	if err != nil {
		return err
	}
	if revalidate {
		out, err = p.engine.DoValidateAll(ctx, out)
		if err != nil {
			return err
		}
		p.validated = out.ValidationState == CanExecute
	}
	p.replace(out)
	return nil
}

// Close 放弃流程: 取消倒计时、停掉引擎的后台任务
// 已执行的流程 Close 是幂等善后
func (p *TransactionProcessor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h := p.ptx.Countdown(); h != nil {
		h.Cancel()
		p.ptx = p.ptx.WithoutEngineState(EngineStateBitPayTimer)
	}
	if s, ok := p.engine.(StoppableEngine); ok {
		s.Stop()
	}
}
