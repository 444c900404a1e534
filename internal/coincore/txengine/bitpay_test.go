package txengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
)

type stubInvoiceBackend struct {
	verifyErr error
	submitErr error

	verified  int
	submitted int
	lastHex   string
}

func (s *stubInvoiceBackend) VerifyPayment(_ context.Context, _, _, txHex string, _ int) error {
	s.verified++
	s.lastHex = txHex
	return s.verifyErr
}

func (s *stubInvoiceBackend) SubmitPayment(_ context.Context, _, _, _ string, _ int) (string, error) {
	s.submitted++
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "invoice-tx", nil
}

func newInvoice(expireIn time.Duration) *coincore.BitPayInvoiceTarget {
	return &coincore.BitPayInvoiceTarget{
		Asset:        money.BTC,
		Address:      btcTestAddress,
		InvoiceID:    "INV-1",
		Merchant:     "Coffee Shop",
		InvoiceAmt:   money.NewFromInt64(money.BTC, oneBTC),
		ExpireTimeMs: time.Now().Add(expireIn).UnixMilli(),
	}
}

func newBitPayEngine(invoice *coincore.BitPayInvoiceTarget, backend coincore.InvoiceBackend) *BitPayEngine {
	source := newBTCWallet(21*oneBTC, 20*oneBTC)
	inner := &UTXOEngine{
		Chain:       money.BTC,
		ChainParams: &chaincfg.MainNetParams,
		Fees:        stubFees{regular: 10, priority: 30},
		Signer:      &stubUTXOSigner{},
	}
	e := &BitPayEngine{Inner: inner, Backend: backend}
	e.Start(source, invoice, nil)
	e.AssertInputsValid()
	return e
}

func TestBitPayFixedAmountAndPriorityOnly(t *testing.T) {
	ctx := context.Background()
	e := newBitPayEngine(newInvoice(15*time.Minute), &stubInvoiceBackend{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)

	// 金额由发票固定
	assert.Equal(t, oneBTC, ptx.Amount.MinorInt64())
	// 只有 Priority 一个档位
	assert.Equal(t, coincore.FeeLevelPriority, ptx.FeeSelection.SelectedLevel)
	assert.Equal(t, []coincore.FeeLevel{coincore.FeeLevelPriority}, ptx.FeeSelection.AvailableLevels)

	// 改金额是空操作
	out, err := e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, 5), ptx)
	require.NoError(t, err)
	assert.Equal(t, oneBTC, out.Amount.MinorInt64())

	// 切别的档位被拒绝
	_, err = e.DoUpdateFeeLevel(ctx, ptx, coincore.FeeLevelRegular, coincore.CustomFeeUnset)
	assert.ErrorIs(t, err, errno.ErrFeeLevelNotOffered)
}

func TestBitPayCountdownConfirmation(t *testing.T) {
	ctx := context.Background()
	e := newBitPayEngine(newInvoice(15*time.Minute), &stubInvoiceBackend{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	defer ptx.Countdown().Cancel()

	countdown, ok := ptx.GetConfirmation(coincore.ConfirmBitPayCountdown)
	require.True(t, ok)
	remaining := countdown.(coincore.ConfirmationBitPayCountdown).RemainingSecs
	assert.Greater(t, remaining, int64(14*60))

	// 倒计时任务已启动且只启动一次
	handle := ptx.Countdown()
	require.NotNil(t, handle)
	again, err := e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	assert.Same(t, handle, again.Countdown())
}

// 过期检查优先于其他一切校验
func TestBitPayInvoiceExpired(t *testing.T) {
	ctx := context.Background()
	invoice := newInvoice(15 * time.Minute)
	e := newBitPayEngine(invoice, &stubInvoiceBackend{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.CanExecute, ptx.ValidationState)

	// 时间源拨到过期之后
	e.Now = func() time.Time {
		return time.UnixMilli(invoice.ExpireTimeMs).Add(time.Second)
	}
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.InvoiceExpired, ptx.ValidationState)
}

func TestBitPayExecuteVerifiesBeforeSubmit(t *testing.T) {
	ctx := context.Background()
	backend := &stubInvoiceBackend{}
	e := newBitPayEngine(newInvoice(15*time.Minute), backend)

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)

	result, err := e.DoExecute(ctx, ptx, "")
	require.NoError(t, err)
	assert.Equal(t, "invoice-tx", result.(coincore.HashedTxResult).TxID)
	assert.Equal(t, 1, backend.verified)
	assert.Equal(t, 1, backend.submitted)
	assert.NotEmpty(t, backend.lastHex)
}

// 后端验签拒绝时不进入签名/提交
func TestBitPayVerifyRejection(t *testing.T) {
	ctx := context.Background()
	backend := &stubInvoiceBackend{verifyErr: errors.New("invoice mismatch")}
	e := newBitPayEngine(newInvoice(15*time.Minute), backend)

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)

	_, err = e.DoExecute(ctx, ptx, "")
	require.Error(t, err)
	assert.Equal(t, 1, backend.verified)
	assert.Zero(t, backend.submitted)
}

func TestBitPayAssertInputsValid(t *testing.T) {
	invoice := newInvoice(time.Minute)
	source := newBTCWallet(oneBTC, oneBTC)
	inner := &UTXOEngine{Chain: money.BTC, ChainParams: &chaincfg.MainNetParams,
		Fees: stubFees{regular: 1, priority: 2}, Signer: &stubUTXOSigner{}}

	// 托管账户来源不支持
	e := &BitPayEngine{Inner: inner, Backend: &stubInvoiceBackend{}}
	e.Start(&coincore.CustodialTradingAccount{AccountLabel: "Trading", Asset: money.BTC, Balances: stubBalances{}}, invoice, nil)
	assert.Panics(t, func() { e.AssertInputsValid() })

	// 普通地址目标不支持
	e = &BitPayEngine{Inner: inner, Backend: &stubInvoiceBackend{}}
	e.Start(source, &coincore.CryptoAddress{Asset: money.BTC, Address: btcTestAddress}, nil)
	assert.Panics(t, func() { e.AssertInputsValid() })
}
