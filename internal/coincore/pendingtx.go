package coincore

import (
	"context"

	"coincore/pkg/money"
)

// Engine state keys.
// EngineState 是引擎私有的临时数据袋，只放固定 key 的不透明句柄
const (
	// EngineStateBitPayTimer BitPay 倒计时任务句柄 (*CountdownHandle)
	EngineStateBitPayTimer = "bitpay_timer"
	// EngineStateWithdrawLocks 法币入金后的提现锁定天数 (int64)
	EngineStateWithdrawLocks = "locks"
)

// CountdownHandle 是一个可取消的周期任务句柄
// 数据对象本身保持纯值语义，取消规则由 TransactionProcessor 执行:
// 替换/放弃携带句柄的 PendingTx 链时必须 Cancel，避免孤儿 goroutine
type CountdownHandle struct {
	cancel context.CancelFunc
}

// NewCountdownHandle wraps a cancel func.
func NewCountdownHandle(cancel context.CancelFunc) *CountdownHandle {
	return &CountdownHandle{cancel: cancel}
}

// Cancel 停止关联的周期任务，可重复调用
func (h *CountdownHandle) Cancel() {
	if h != nil && h.cancel != nil {
		h.cancel()
	}
}

// PendingTx 是构建中交易的不可变快照
// 每次生命周期调用都通过 copy-with-mutation 产生一个新的 PendingTx，绝不原地修改
//
// 不变量: Amount / TotalBalance / AvailableBalance / FeeForFullAvailable
// 与交易资产同币种 (FeeAmount 可能是别的币种，例如 ERC-20 的 ETH gas)，
// 违反即编程错误，money 包会直接 panic
type PendingTx struct {
	Amount              money.Money
	TotalBalance        money.Money
	AvailableBalance    money.Money
	FeeForFullAvailable money.Money
	FeeAmount           money.Money
	MinLimit            *money.Money
	MaxLimit            *money.Money
	// SelectedFiat 用户的显示法币
	SelectedFiat    money.Currency
	FeeSelection    FeeSelection
	Confirmations   []TxConfirmationValue
	ValidationState ValidationState
	EngineState     map[string]any
}

// clone 深拷贝可变部分 (slice / map)，Money 本身不可变无需处理
func (p PendingTx) clone() PendingTx {
	out := p
	out.Confirmations = append([]TxConfirmationValue(nil), p.Confirmations...)
	out.EngineState = make(map[string]any, len(p.EngineState))
	for k, v := range p.EngineState {
		out.EngineState[k] = v
	}
	return out
}

// WithAmount 替换金额
func (p PendingTx) WithAmount(amount money.Money) PendingTx {
	out := p.clone()
	out.Amount = amount
	return out
}

// WithValidationState 替换校验状态
func (p PendingTx) WithValidationState(state ValidationState) PendingTx {
	out := p.clone()
	out.ValidationState = state
	return out
}

// WithFeeSelection 替换手续费选择
func (p PendingTx) WithFeeSelection(fs FeeSelection) PendingTx {
	out := p.clone()
	out.FeeSelection = fs
	return out
}

// WithBalances 替换余额/手续费字段 (金额或费档变化后的重算结果)
func (p PendingTx) WithBalances(total, available, feeForFull, fee money.Money) PendingTx {
	out := p.clone()
	out.TotalBalance = total
	out.AvailableBalance = available
	out.FeeForFullAvailable = feeForFull
	out.FeeAmount = fee
	return out
}

// WithLimits 替换限额
func (p PendingTx) WithLimits(min, max *money.Money) PendingTx {
	out := p.clone()
	out.MinLimit = min
	out.MaxLimit = max
	return out
}

// WithConfirmations 整体替换确认列表
func (p PendingTx) WithConfirmations(items ...TxConfirmationValue) PendingTx {
	out := p.clone()
	out.Confirmations = items
	return out
}

// HasConfirmation 判断确认列表中是否已有某类条目
func (p PendingTx) HasConfirmation(kind TxConfirmation) bool {
	_, ok := p.GetConfirmation(kind)
	return ok
}

// GetConfirmation 按类查找确认条目
func (p PendingTx) GetConfirmation(kind TxConfirmation) (TxConfirmationValue, bool) {
	for _, c := range p.Confirmations {
		if c.Confirmation() == kind {
			return c, true
		}
	}
	return nil, false
}

// AddOrReplaceConfirmation 追加或替换同类确认条目，保持原有顺序
func (p PendingTx) AddOrReplaceConfirmation(v TxConfirmationValue) PendingTx {
	out := p.clone()
	for i, c := range out.Confirmations {
		if c.Confirmation() == v.Confirmation() {
			out.Confirmations[i] = v
			return out
		}
	}
	out.Confirmations = append(out.Confirmations, v)
	return out
}

// RemoveConfirmation 删除某类确认条目
func (p PendingTx) RemoveConfirmation(kind TxConfirmation) PendingTx {
	out := p.clone()
	kept := out.Confirmations[:0]
	for _, c := range out.Confirmations {
		if c.Confirmation() != kind {
			kept = append(kept, c)
		}
	}
	out.Confirmations = kept
	return out
}

// WithEngineState 写入引擎私有状态
func (p PendingTx) WithEngineState(key string, value any) PendingTx {
	out := p.clone()
	out.EngineState[key] = value
	return out
}

// WithoutEngineState 删除引擎私有状态
func (p PendingTx) WithoutEngineState(key string) PendingTx {
	out := p.clone()
	delete(out.EngineState, key)
	return out
}

// EngineStateValue 读取引擎私有状态
func (p PendingTx) EngineStateValue(key string) (any, bool) {
	v, ok := p.EngineState[key]
	return v, ok
}

// Countdown 返回 EngineState 中的倒计时句柄 (没有则为 nil)
func (p PendingTx) Countdown() *CountdownHandle {
	if v, ok := p.EngineState[EngineStateBitPayTimer]; ok {
		if h, ok := v.(*CountdownHandle); ok {
			return h
		}
	}
	return nil
}

// Total 金额 + 手续费 (同币种时)，用于确认项展示
func (p PendingTx) Total() money.Money {
	if p.FeeAmount.SameCurrency(p.Amount) {
		return p.Amount.Add(p.FeeAmount)
	}
	return p.Amount
}
