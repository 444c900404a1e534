package coincore

import (
	"context"
	"fmt"

	"coincore/pkg/money"
)

// RefreshTrigger 由流程驱动方 (TransactionProcessor) 实现
// 引擎内部的周期任务 (发票倒计时) 通过它请求确认项刷新，
// revalidate=true 时额外触发一次完整校验
type RefreshTrigger interface {
	RefreshConfirmations(ctx context.Context, revalidate bool) error
}

// TxEngine 是所有交易引擎的统一契约
//
// 调用顺序: Start -> AssertInputsValid -> DoInitialiseTx -> DoUpdateAmount* ->
// DoUpdateFeeLevel* -> DoBuildConfirmations -> DoValidateAll -> DoExecute ->
// DoPostExecute。除 DoExecute 外所有步骤可重入；调用方负责串行化，
// 同一条 PendingTx 链上同时只允许一个在途调用
type TxEngine interface {
	// Start 绑定资金来源与目标。装饰器引擎需要把调用转发给内层引擎
	Start(source BlockchainAccount, target TransactionTarget, refresh RefreshTrigger)

	// AssertInputsValid 校验账户/目标/资产组合是否是本引擎支持的
	// 组合不支持说明是调用方的 bug，直接 panic 而不是返回 error
	AssertInputsValid()

	// DoInitialiseTx 产生第一个 PendingTx: 零金额、当前余额、默认费档、空确认列表
	DoInitialiseTx(ctx context.Context) (PendingTx, error)

	// DoUpdateAmount 替换金额并重算金额相关字段。同输入幂等
	DoUpdateAmount(ctx context.Context, amount money.Money, ptx PendingTx) (PendingTx, error)

	// DoUpdateFeeLevel 切换费档。level 不在 AvailableLevels 中返回契约错误
	DoUpdateFeeLevel(ctx context.Context, ptx PendingTx, level FeeLevel, customAmount int64) (PendingTx, error)

	// DoBuildConfirmations 重建确认列表，可重复调用
	DoBuildConfirmations(ctx context.Context, ptx PendingTx) (PendingTx, error)

	// DoRefreshConfirmations 轻量刷新 (倒计时每秒触发一次)
	DoRefreshConfirmations(ctx context.Context, ptx PendingTx) (PendingTx, error)

	// DoOptionUpdateRequest 应用用户对单个确认项的修改
	DoOptionUpdateRequest(ctx context.Context, ptx PendingTx, newValue TxConfirmationValue) (PendingTx, error)

	// DoValidateAmount 校验金额 (余额、限额)。业务失败写入 ValidationState
	DoValidateAmount(ctx context.Context, ptx PendingTx) (PendingTx, error)

	// DoValidateAll 完整校验 (金额 + 过期 + 必选项)
	DoValidateAll(ctx context.Context, ptx PendingTx) (PendingTx, error)

	// DoExecute 执行不可逆动作。引擎绝不自动重试
	DoExecute(ctx context.Context, ptx PendingTx, secondPassword string) (TxResult, error)

	// DoPostExecute 尽力而为的善后，出错不影响整体结果
	// 返回的 TxResult 通常就是入参；法币入金在这里轮询授权状态，
	// 把结果升级为 NeedsApprovalResult (成功变体，不走错误通道)
	DoPostExecute(ctx context.Context, ptx PendingTx, result TxResult) (TxResult, error)
}

// TxEngineBase 持有 Start 绑定的输入，供具体引擎嵌入
type TxEngineBase struct {
	source  BlockchainAccount
	target  TransactionTarget
	refresh RefreshTrigger
	// userFiat 用户显示法币
	userFiat money.Currency
}

// NewTxEngineBase with the user's display fiat.
func NewTxEngineBase(userFiat money.Currency) TxEngineBase {
	return TxEngineBase{userFiat: userFiat}
}

func (b *TxEngineBase) Start(source BlockchainAccount, target TransactionTarget, refresh RefreshTrigger) {
	b.source = source
	b.target = target
	b.refresh = refresh
}

func (b *TxEngineBase) SourceAccount() BlockchainAccount { return b.source }
func (b *TxEngineBase) Target() TransactionTarget        { return b.target }

// SourceAsset 资金来源账户的资产
func (b *TxEngineBase) SourceAsset() money.Currency {
	return b.source.Currency()
}

// UserFiat 用户显示法币 (未设置时默认 USD)
func (b *TxEngineBase) UserFiat() money.Currency {
	if b.userFiat.Code == "" {
		return money.USD
	}
	return b.userFiat
}

// TriggerRefresh 请求驱动方刷新确认项
func (b *TxEngineBase) TriggerRefresh(ctx context.Context, revalidate bool) {
	if b.refresh != nil {
		_ = b.refresh.RefreshConfirmations(ctx, revalidate)
	}
}

// EngineCheck 引擎输入契约断言: 不满足直接 panic (调用方 bug)
func EngineCheck(ok bool, format string, args ...any) {
	if !ok {
		panic(fmt.Sprintf("coincore: engine contract violation: "+format, args...))
	}
}
