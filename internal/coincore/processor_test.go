package coincore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincore/pkg/errno"
	"coincore/pkg/money"
)

// stubBalances 固定余额的 BalanceProvider
type stubBalances struct {
	total     int64
	available int64
}

func (s stubBalances) Balance(_ context.Context, c money.Currency) (AccountBalance, error) {
	return AccountBalance{
		Total:     money.NewFromInt64(c, s.total),
		Available: money.NewFromInt64(c, s.available),
	}, nil
}

// fakeEngine 记录生命周期调用的测试引擎
type fakeEngine struct {
	TxEngineBase

	refreshCalls int
	postErr      error
	postResult   TxResult
	execErr      error
	// validateState DoValidateAll 产出的状态
	validateState ValidationState

	// pokeRefreshOnUpdate DoUpdateAmount 内部反向触发刷新 (撞锁场景)
	pokeRefreshOnUpdate bool
	// dropTimerOnUpdate DoUpdateAmount 产出不带倒计时句柄的新快照
	dropTimerOnUpdate bool
}

func (e *fakeEngine) AssertInputsValid() {}

func (e *fakeEngine) DoInitialiseTx(ctx context.Context) (PendingTx, error) {
	bal, err := e.SourceAccount().Balance(ctx)
	if err != nil {
		return PendingTx{}, err
	}
	return PendingTx{
		Amount:           money.Zero(e.SourceAsset()),
		TotalBalance:     bal.Total,
		AvailableBalance: bal.Available,
		FeeAmount:        money.Zero(e.SourceAsset()),
		FeeSelection:     NewFeeSelection(),
		ValidationState:  Uninitialised,
		EngineState:      map[string]any{},
	}, nil
}

func (e *fakeEngine) DoUpdateAmount(ctx context.Context, amount money.Money, ptx PendingTx) (PendingTx, error) {
	if e.pokeRefreshOnUpdate {
		e.TriggerRefresh(ctx, false)
	}
	out := ptx.WithAmount(amount)
	if e.dropTimerOnUpdate {
		out = out.WithoutEngineState(EngineStateBitPayTimer)
	}
	return out, nil
}

func (e *fakeEngine) DoUpdateFeeLevel(_ context.Context, ptx PendingTx, level FeeLevel, _ int64) (PendingTx, error) {
	return ptx.WithFeeSelection(ptx.FeeSelection.WithLevels(level, level)), nil
}

func (e *fakeEngine) DoBuildConfirmations(_ context.Context, ptx PendingTx) (PendingTx, error) {
	return ptx.WithConfirmations(ConfirmationFrom{Label: e.SourceAccount().Label()}), nil
}

func (e *fakeEngine) DoRefreshConfirmations(_ context.Context, ptx PendingTx) (PendingTx, error) {
	e.refreshCalls++
	return ptx, nil
}

func (e *fakeEngine) DoOptionUpdateRequest(_ context.Context, ptx PendingTx, v TxConfirmationValue) (PendingTx, error) {
	return ptx.AddOrReplaceConfirmation(v), nil
}

func (e *fakeEngine) DoValidateAmount(_ context.Context, ptx PendingTx) (PendingTx, error) {
	return ptx.WithValidationState(e.validateState), nil
}

func (e *fakeEngine) DoValidateAll(_ context.Context, ptx PendingTx) (PendingTx, error) {
	return ptx.WithValidationState(e.validateState), nil
}

func (e *fakeEngine) DoExecute(_ context.Context, ptx PendingTx, _ string) (TxResult, error) {
	if e.execErr != nil {
		return nil, e.execErr
	}
	return HashedTxResult{TxID: "tx-1", Amount: ptx.Amount}, nil
}

func (e *fakeEngine) DoPostExecute(_ context.Context, _ PendingTx, result TxResult) (TxResult, error) {
	if e.postErr != nil {
		return nil, e.postErr
	}
	if e.postResult != nil {
		return e.postResult, nil
	}
	return result, nil
}

// recordingSink 捕获落库/广播调用
type recordingSink struct {
	records []ExecutionRecord
	events  []ExecutionRecord
	recErr  error
}

func (s *recordingSink) RecordExecution(_ context.Context, rec ExecutionRecord) error {
	if s.recErr != nil {
		return s.recErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) PublishExecuted(_ context.Context, rec ExecutionRecord) error {
	s.events = append(s.events, rec)
	return nil
}

func newTestProcessor(engine TxEngine) *TransactionProcessor {
	source := &CryptoNonCustodialAccount{
		AccountLabel: "Private Key Wallet",
		Asset:        money.BTC,
		Address:      "bc1qtest",
		Balances:     stubBalances{total: 2_100_000_000, available: 2_000_000_000},
	}
	target := &CryptoAddress{Asset: money.BTC, Address: "bc1qdest"}
	return NewTransactionProcessor(engine, source, target, ActionSend)
}

func TestProcessorHappyPath(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute}
	sink := &recordingSink{}
	p := newTestProcessor(engine).WithSinks(sink, sink)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)

	ptx, err := p.UpdateAmount(ctx, money.NewFromInt64(money.BTC, 200_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(200_000_000), ptx.Amount.MinorInt64())

	_, err = p.ValidateAll(ctx)
	require.NoError(t, err)

	result, err := p.Execute(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", result.(HashedTxResult).TxID)

	// 落库与广播各一条，字段来自来源/目标账户
	require.Len(t, sink.records, 1)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "BTC", sink.records[0].Asset)
	assert.Equal(t, ActionSend, sink.records[0].Action)
	assert.Equal(t, "Private Key Wallet", sink.records[0].Source)
	assert.Equal(t, "bc1qdest", sink.records[0].Target)
	assert.Equal(t, "tx-1", sink.records[0].TxID)
}

func TestProcessorExecuteRequiresValidation(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)

	// 未校验直接执行
	_, err = p.Execute(ctx, "")
	assert.ErrorIs(t, err, errno.ErrNotValidated)

	// 校验后修改金额，执行资格作废
	_, err = p.ValidateAll(ctx)
	require.NoError(t, err)
	_, err = p.UpdateAmount(ctx, money.NewFromInt64(money.BTC, 1))
	require.NoError(t, err)
	_, err = p.Execute(ctx, "")
	assert.ErrorIs(t, err, errno.ErrNotValidated)
}

func TestProcessorExecuteOnce(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)
	_, err = p.ValidateAll(ctx)
	require.NoError(t, err)
	_, err = p.Execute(ctx, "")
	require.NoError(t, err)

	_, err = p.Execute(ctx, "")
	assert.ErrorIs(t, err, errno.ErrAlreadyExecuted)
}

func TestProcessorValidationFailureBlocksExecute(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: InsufficientFunds}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)

	ptx, err := p.ValidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, InsufficientFunds, ptx.ValidationState)

	_, err = p.Execute(ctx, "")
	assert.ErrorIs(t, err, errno.ErrNotValidated)
}

// 善后失败不推翻已成功的执行，结果回退为原始结果
func TestProcessorPostExecuteFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute, postErr: errors.New("flush failed")}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)
	_, err = p.ValidateAll(ctx)
	require.NoError(t, err)

	result, err := p.Execute(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", result.(HashedTxResult).TxID)
}

// 善后可以把结果升级为待授权变体，走成功通道
func TestProcessorNeedsApprovalResult(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{
		validateState: CanExecute,
		postResult: NeedsApprovalResult{
			PaymentID:        "pay-1",
			AuthorisationURL: "https://bank.example/approve",
			Amount:           money.NewFromInt64(money.BTC, 1),
		},
	}
	sink := &recordingSink{}
	p := newTestProcessor(engine).WithSinks(sink, sink)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)
	_, err = p.ValidateAll(ctx)
	require.NoError(t, err)

	result, err := p.Execute(ctx, "")
	require.NoError(t, err)

	approval, ok := result.(NeedsApprovalResult)
	require.True(t, ok)
	assert.Equal(t, "https://bank.example/approve", approval.AuthorisationURL)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "pay-1", sink.records[0].TxID)
	assert.Equal(t, "https://bank.example/approve", sink.records[0].AuthorisationURL)
}

func TestProcessorExecuteFailureLeavesFlowOpen(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute, execErr: errors.New("broadcast refused")}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)
	_, err = p.ValidateAll(ctx)
	require.NoError(t, err)

	_, err = p.Execute(ctx, "")
	require.Error(t, err)

	// 引擎不自动重试；流程保留，用户可以再次发起执行
	engine.execErr = nil
	result, err := p.Execute(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", result.(HashedTxResult).TxID)
}

// 刷新与用户操作撞车时直接丢弃这一跳
func TestProcessorRefreshDroppedOnContention(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute, pokeRefreshOnUpdate: true}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)

	// DoUpdateAmount 内部反向调用 RefreshConfirmations，此时锁被占用
	_, err = p.UpdateAmount(ctx, money.NewFromInt64(money.BTC, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, engine.refreshCalls)

	// 空闲时刷新正常通过
	require.NoError(t, p.RefreshConfirmations(ctx, false))
	assert.Equal(t, 1, engine.refreshCalls)
}

// 替换快照时: 被新快照继承的倒计时句柄保持运行，
// 引擎产出不带句柄的新快照时旧句柄成为孤儿，必须取消
func TestProcessorCancelsOrphanedCountdown(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{validateState: CanExecute}
	p := newTestProcessor(engine)

	_, err := p.Initialise(ctx)
	require.NoError(t, err)

	// 手工挂一个句柄
	timerCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.ptx = p.ptx.WithEngineState(EngineStateBitPayTimer, NewCountdownHandle(cancel))
	p.mu.Unlock()

	// 普通金额更新克隆引擎状态，句柄被继承，不取消
	_, err = p.UpdateAmount(ctx, money.NewFromInt64(money.BTC, 2))
	require.NoError(t, err)
	assert.NoError(t, timerCtx.Err())

	// 引擎丢掉句柄后的替换触发取消
	engine.dropTimerOnUpdate = true
	_, err = p.UpdateAmount(ctx, money.NewFromInt64(money.BTC, 3))
	require.NoError(t, err)
	assert.Error(t, timerCtx.Err())
}
