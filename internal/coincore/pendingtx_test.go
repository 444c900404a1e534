package coincore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincore/pkg/money"
)

// copy-with-mutation: 派生的 PendingTx 不能影响原快照
func TestPendingTxImmutability(t *testing.T) {
	base := PendingTx{
		Amount:      money.Zero(money.BTC),
		EngineState: map[string]any{"k": 1},
		Confirmations: []TxConfirmationValue{
			ConfirmationFrom{Label: "wallet"},
		},
	}

	next := base.
		WithAmount(money.NewFromInt64(money.BTC, 100)).
		WithEngineState("k", 2).
		AddOrReplaceConfirmation(ConfirmationTo{Label: "dest", Action: ActionSend})

	assert.True(t, base.Amount.IsZero())
	assert.Equal(t, 1, base.EngineState["k"])
	assert.Len(t, base.Confirmations, 1)

	assert.Equal(t, int64(100), next.Amount.MinorInt64())
	assert.Equal(t, 2, next.EngineState["k"])
	assert.Len(t, next.Confirmations, 2)
}

func TestAddOrReplaceConfirmationKeepsOrder(t *testing.T) {
	ptx := PendingTx{}.
		WithConfirmations(
			ConfirmationFrom{Label: "a"},
			ConfirmationTo{Label: "b", Action: ActionSend},
			ConfirmationAmount{Amount: money.Zero(money.BTC)},
		)

	// 替换中间的条目，顺序不变
	ptx = ptx.AddOrReplaceConfirmation(ConfirmationTo{Label: "c", Action: ActionSend})
	require.Len(t, ptx.Confirmations, 3)
	assert.Equal(t, ConfirmTo, ptx.Confirmations[1].Confirmation())

	to, ok := ptx.GetConfirmation(ConfirmTo)
	require.True(t, ok)
	assert.Equal(t, "c", to.(ConfirmationTo).Label)
}

func TestRemoveConfirmation(t *testing.T) {
	ptx := PendingTx{}.
		WithConfirmations(
			ConfirmationFrom{Label: "a"},
			ConfirmationBitPayCountdown{RemainingSecs: 30},
		)

	ptx = ptx.RemoveConfirmation(ConfirmBitPayCountdown)
	assert.Len(t, ptx.Confirmations, 1)
	assert.False(t, ptx.HasConfirmation(ConfirmBitPayCountdown))
}

func TestTotal(t *testing.T) {
	// 同币种: 金额 + 手续费
	ptx := PendingTx{
		Amount:    money.NewFromInt64(money.BTC, 100),
		FeeAmount: money.NewFromInt64(money.BTC, 10),
	}
	assert.Equal(t, int64(110), ptx.Total().MinorInt64())

	// 异币种 (ERC-20 的 ETH gas): 只返回金额
	ptx = PendingTx{
		Amount:    money.NewFromInt64(money.USDT, 100),
		FeeAmount: money.NewFromInt64(money.ETH, 10),
	}
	assert.Equal(t, int64(100), ptx.Total().MinorInt64())
}

func TestCountdownHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewCountdownHandle(cancel)

	ptx := PendingTx{EngineState: map[string]any{}}.
		WithEngineState(EngineStateBitPayTimer, h)
	require.NotNil(t, ptx.Countdown())

	// Cancel 可重复调用
	ptx.Countdown().Cancel()
	ptx.Countdown().Cancel()
	assert.Error(t, ctx.Err())

	// 无句柄时返回 nil，nil 上调用 Cancel 也安全
	var none *CountdownHandle
	none.Cancel()
	assert.Nil(t, PendingTx{}.Countdown())
}

func TestFeeSelection(t *testing.T) {
	fs := NewFeeSelection()
	assert.Equal(t, FeeLevelNone, fs.SelectedLevel)
	assert.True(t, fs.HasLevel(FeeLevelNone))
	assert.False(t, fs.HasLevel(FeeLevelPriority))
	assert.Equal(t, CustomFeeUnset, fs.CustomAmount)

	fs = fs.WithLevels(FeeLevelRegular, FeeLevelRegular, FeeLevelPriority)
	assert.Equal(t, FeeLevelRegular, fs.SelectedLevel)
	assert.True(t, fs.HasLevel(FeeLevelPriority))
	assert.False(t, fs.HasLevel(FeeLevelNone))
}
