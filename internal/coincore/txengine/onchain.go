// Package txengine 实现各资金流程的具体交易引擎
// 所有引擎共享 coincore.TxEngine 契约；组合流程 (发票支付、利息存入、卖出)
// 通过显式持有内层引擎字段做装饰，不做隐式继承
package txengine

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/logger"
	"coincore/pkg/money"
)

// EngineTransaction 已签名、可提交的交易
type EngineTransaction struct {
	Hash       string
	EncodedMsg string // hex
	MsgSize    int
}

// UTXOSigner 签名/广播原语，由链模块实现 (密钥派生与节点通信不在本层)
type UTXOSigner interface {
	Sign(ctx context.Context, unsigned *wire.MsgTx, secondPassword string) (EngineTransaction, error)
	Broadcast(ctx context.Context, tx EngineTransaction) (string, error)
}

// BitPayClientEngine 发票支付装饰器要求内层引擎具备的能力:
// 准备未签名交易、签名、成功/失败钩子。UTXO 引擎实现它
type BitPayClientEngine interface {
	DoPrepareTransaction(ctx context.Context, ptx coincore.PendingTx) (*wire.MsgTx, error)
	DoSignTransaction(ctx context.Context, unsigned *wire.MsgTx, ptx coincore.PendingTx, secondPassword string) (EngineTransaction, error)
	DoOnTransactionSuccess(ctx context.Context, ptx coincore.PendingTx)
	DoOnTransactionFailed(ctx context.Context, ptx coincore.PendingTx, cause error)
}

// estimatedTxVsize UTXO 交易的估算体积 (vbytes)
// 真实实现依赖 coin selection，这里用 2-in/2-out 的保守估算
const estimatedTxVsize = 260

// largeTxDefaultPercent 金额超过可用余额该百分比时要求确认大额交易
const largeTxDefaultPercent = 50

// UTXOEngine BTC/BCH 链上转账引擎，按 chainParams 区分链
type UTXOEngine struct {
	coincore.TxEngineBase

	Chain       money.Currency
	ChainParams *chaincfg.Params
	Fees        coincore.FeeProvider
	Signer      UTXOSigner
	// LargeTxPercent 为 0 时使用默认值
	LargeTxPercent int

	feeOptions coincore.FeeOptions
}

func (e *UTXOEngine) AssertInputsValid() {
	src, ok := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	coincore.EngineCheck(ok, "utxo engine requires a non-custodial source, got %T", e.SourceAccount())
	coincore.EngineCheck(src.Asset.Code == e.Chain.Code,
		"source asset %s does not match chain %s", src.Asset.Code, e.Chain.Code)

	switch t := e.Target().(type) {
	case *coincore.CryptoAddress:
		coincore.EngineCheck(t.Asset.Code == e.Chain.Code, "target asset mismatch: %s", t.Asset.Code)
		_, err := btcutil.DecodeAddress(t.Address, e.ChainParams)
		coincore.EngineCheck(err == nil, "target address %q is not valid for %s", t.Address, e.Chain.Code)
	case *coincore.BitPayInvoiceTarget:
		coincore.EngineCheck(t.Asset.Code == e.Chain.Code, "invoice asset mismatch: %s", t.Asset.Code)
	case *coincore.InterestAccount:
		coincore.EngineCheck(t.Asset.Code == e.Chain.Code, "interest asset mismatch: %s", t.Asset.Code)
	case *coincore.CustodialTradingAccount:
		coincore.EngineCheck(t.Asset.Code == e.Chain.Code, "trading asset mismatch: %s", t.Asset.Code)
		coincore.EngineCheck(t.DepositAddress != "", "trading account for %s has no deposit address", t.Asset.Code)
	default:
		coincore.EngineCheck(false, "unsupported target type %T", e.Target())
	}
}

func (e *UTXOEngine) DoInitialiseTx(ctx context.Context) (coincore.PendingTx, error) {
	bal, err := e.SourceAccount().Balance(ctx)
	if err != nil {
		return coincore.PendingTx{}, err
	}
	opts, err := e.Fees.FeeOptions(ctx, e.Chain)
	if err != nil {
		return coincore.PendingTx{}, err
	}
	e.feeOptions = opts

	fs := coincore.NewFeeSelection().
		WithLevels(coincore.FeeLevelRegular,
			coincore.FeeLevelRegular, coincore.FeeLevelPriority, coincore.FeeLevelCustom)

	return coincore.PendingTx{
		Amount:              money.Zero(e.Chain),
		TotalBalance:        bal.Total,
		AvailableBalance:    bal.Available,
		FeeForFullAvailable: e.absoluteFee(fs),
		FeeAmount:           money.Zero(e.Chain),
		SelectedFiat:        e.UserFiat(),
		FeeSelection:        fs,
		ValidationState:     coincore.Uninitialised,
		EngineState:         map[string]any{},
	}, nil
}

// absoluteFee 当前选中档位的绝对手续费
func (e *UTXOEngine) absoluteFee(fs coincore.FeeSelection) money.Money {
	var rate int64
	switch fs.SelectedLevel {
	case coincore.FeeLevelPriority:
		rate = e.feeOptions.PriorityFee
	case coincore.FeeLevelCustom:
		if fs.CustomAmount > 0 {
			rate = fs.CustomAmount
		} else {
			rate = e.feeOptions.RegularFee
		}
	case coincore.FeeLevelNone:
		rate = 0
	default:
		rate = e.feeOptions.RegularFee
	}
	return money.NewFromInt64(e.Chain, rate*estimatedTxVsize)
}

// recompute 金额或费档变化后，重算手续费和可用余额
func (e *UTXOEngine) recompute(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	bal, err := e.SourceAccount().Balance(ctx)
	if err != nil {
		return ptx, err
	}
	fee := e.absoluteFee(ptx.FeeSelection)

	available := bal.Available.Sub(fee)
	if !available.IsPositive() {
		available = money.Zero(e.Chain)
	}

	return ptx.WithBalances(bal.Total, available, fee, fee), nil
}

func (e *UTXOEngine) DoUpdateAmount(ctx context.Context, amount money.Money, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out, err := e.recompute(ctx, ptx.WithAmount(amount))
	if err != nil {
		return ptx, err
	}
	return out, nil
}

func (e *UTXOEngine) DoUpdateFeeLevel(ctx context.Context, ptx coincore.PendingTx, level coincore.FeeLevel, customAmount int64) (coincore.PendingTx, error) {
	if !ptx.FeeSelection.HasLevel(level) {
		return ptx, errno.ErrFeeLevelNotOffered
	}
	fs := ptx.FeeSelection
	fs.SelectedLevel = level
	fs.CustomAmount = customAmount
	return e.recompute(ctx, ptx.WithFeeSelection(fs))
}

func (e *UTXOEngine) DoBuildConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	items := []coincore.TxConfirmationValue{
		coincore.ConfirmationFrom{Label: e.SourceAccount().Label()},
		coincore.ConfirmationTo{Label: e.Target().TargetLabel(), Action: coincore.ActionSend},
		coincore.ConfirmationAmount{Amount: ptx.Amount},
		coincore.ConfirmationNetworkFee{Fee: ptx.FeeAmount, Asset: e.Chain},
		coincore.ConfirmationTotal{Total: ptx.Total()},
	}
	out := ptx.WithConfirmations(items...)

	// 大额交易需要用户显式确认
	if e.isLargeTx(ptx) {
		prev, had := ptx.GetConfirmation(coincore.ConfirmLargeTxWarning)
		accepted := false
		if had {
			accepted = prev.(coincore.ConfirmationOption).Accepted
		}
		out = out.AddOrReplaceConfirmation(coincore.ConfirmationOption{
			Kind:     coincore.ConfirmLargeTxWarning,
			Accepted: accepted,
			Required: true,
		})
	}
	return out, nil
}

func (e *UTXOEngine) isLargeTx(ptx coincore.PendingTx) bool {
	pct := e.LargeTxPercent
	if pct <= 0 {
		pct = largeTxDefaultPercent
	}
	if !ptx.Amount.IsPositive() || !ptx.TotalBalance.IsPositive() {
		return false
	}
	threshold := ptx.TotalBalance.Minor()
	threshold.Mul(threshold, bigInt(int64(pct)))
	amount := ptx.Amount.Minor()
	amount.Mul(amount, bigInt(100))
	return amount.Cmp(threshold) > 0
}

func (e *UTXOEngine) DoRefreshConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.DoBuildConfirmations(ctx, ptx)
}

func (e *UTXOEngine) DoOptionUpdateRequest(ctx context.Context, ptx coincore.PendingTx, newValue coincore.TxConfirmationValue) (coincore.PendingTx, error) {
	return ptx.AddOrReplaceConfirmation(newValue), nil
}

func (e *UTXOEngine) DoValidateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return validateBalance(ptx), nil
}

func (e *UTXOEngine) DoValidateAll(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out := validateBalance(ptx)
	if out.ValidationState == coincore.CanExecute && !optionsValid(out) {
		return out.WithValidationState(coincore.OptionInvalid), nil
	}
	return out, nil
}

func (e *UTXOEngine) DoExecute(ctx context.Context, ptx coincore.PendingTx, secondPassword string) (coincore.TxResult, error) {
	unsigned, err := e.DoPrepareTransaction(ctx, ptx)
	if err != nil {
		return nil, err
	}
	signed, err := e.DoSignTransaction(ctx, unsigned, ptx, secondPassword)
	if err != nil {
		return nil, err
	}
	hash, err := e.Signer.Broadcast(ctx, signed)
	if err != nil {
		e.DoOnTransactionFailed(ctx, ptx, err)
		return nil, err
	}
	e.DoOnTransactionSuccess(ctx, ptx)
	return coincore.HashedTxResult{TxID: hash, Amount: ptx.Amount}, nil
}

func (e *UTXOEngine) DoPostExecute(ctx context.Context, ptx coincore.PendingTx, result coincore.TxResult) (coincore.TxResult, error) {
	return result, e.Target().OnTxCompleted(ctx, result)
}

// ---- BitPayClientEngine ----

func (e *UTXOEngine) DoPrepareTransaction(ctx context.Context, ptx coincore.PendingTx) (*wire.MsgTx, error) {
	addr, err := e.targetAddress()
	if err != nil {
		return nil, err
	}
	decoded, err := btcutil.DecodeAddress(addr, e.ChainParams)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, err
	}

	// 输入由签名方 (coin selection) 填充，这里只构造支付输出
	msg := wire.NewMsgTx(wire.TxVersion)
	msg.AddTxOut(wire.NewTxOut(ptx.Amount.MinorInt64(), script))
	return msg, nil
}

func (e *UTXOEngine) DoSignTransaction(ctx context.Context, unsigned *wire.MsgTx, ptx coincore.PendingTx, secondPassword string) (EngineTransaction, error) {
	return e.Signer.Sign(ctx, unsigned, secondPassword)
}

func (e *UTXOEngine) DoOnTransactionSuccess(ctx context.Context, ptx coincore.PendingTx) {
	logger.Info("on-chain tx sent",
		zap.String("chain", e.Chain.Code),
		zap.String("amount", ptx.Amount.String()))
}

func (e *UTXOEngine) DoOnTransactionFailed(ctx context.Context, ptx coincore.PendingTx, cause error) {
	logger.Error("on-chain tx failed",
		zap.String("chain", e.Chain.Code),
		zap.Error(cause))
}

func (e *UTXOEngine) targetAddress() (string, error) {
	switch t := e.Target().(type) {
	case *coincore.CryptoAddress:
		return t.Address, nil
	case *coincore.BitPayInvoiceTarget:
		return t.Address, nil
	case *coincore.InterestAccount:
		return t.Address, nil
	case *coincore.CustodialTradingAccount:
		return t.DepositAddress, nil
	default:
		return "", errno.ErrTargetNotFound
	}
}

// SerializeTx 序列化为 hex，供发票后端验签/提交
func SerializeTx(msg *wire.MsgTx) (string, int, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(buf.Bytes()), buf.Len(), nil
}
