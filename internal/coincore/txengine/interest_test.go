package txengine

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincore/internal/coincore"
	"coincore/pkg/money"
)

type stubMinDeposits struct {
	minMinor int64
}

func (s stubMinDeposits) MinInterestDeposit(_ context.Context, fiat money.Currency) (money.Money, error) {
	return money.NewFromInt64(fiat, s.minMinor), nil
}

type stubRates struct {
	rate decimal.Decimal
}

func (s stubRates) LastRate(_, _ money.Currency) (decimal.Decimal, error) {
	return s.rate, nil
}

type stubInterestBalances struct {
	flushed []string
}

func (s *stubInterestBalances) FlushCaches(_ context.Context, asset money.Currency) error {
	s.flushed = append(s.flushed, asset.Code)
	return nil
}

func newInterestEngine(flush *stubInterestBalances) *InterestDepositEngine {
	source := newBTCWallet(21*oneBTC, 20*oneBTC)
	target := &coincore.InterestAccount{
		AccountLabel: "Rewards Account",
		Asset:        money.BTC,
		Address:      btcTestAddress,
		Balances:     stubBalances{},
	}
	inner := &UTXOEngine{
		Chain:       money.BTC,
		ChainParams: &chaincfg.MainNetParams,
		Fees:        stubFees{regular: 10, priority: 30},
		Signer:      &stubUTXOSigner{},
	}
	e := &InterestDepositEngine{
		Inner:       inner,
		MinDeposits: stubMinDeposits{minMinor: 100_00}, // 100 USD
		Rates:       stubRates{rate: decimal.NewFromInt(50_000)},
		Balances:    flush,
	}
	e.Start(source, target, nil)
	e.AssertInputsValid()
	return e
}

// 最小存入额以法币配置，按汇率换算: 100 USD / 50000 = 0.002 BTC
func TestInterestDepositMinLimit(t *testing.T) {
	ctx := context.Background()
	e := newInterestEngine(&stubInterestBalances{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	require.NotNil(t, ptx.MinLimit)
	assert.Equal(t, int64(200_000), ptx.MinLimit.MinorInt64())

	// 单一 Regular 档
	assert.Equal(t, coincore.FeeLevelRegular, ptx.FeeSelection.SelectedLevel)
	assert.Equal(t, []coincore.FeeLevel{coincore.FeeLevelRegular}, ptx.FeeSelection.AvailableLevels)
}

// 内层判定 CAN_EXECUTE 后仍要补最小限额检查
func TestInterestDepositUnderMinLimit(t *testing.T) {
	ctx := context.Background()
	e := newInterestEngine(&stubInterestBalances{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)

	// 0.001 BTC: 余额充足但低于最小存入额
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, 100_000), ptx)
	require.NoError(t, err)
	ptx, err = e.DoValidateAmount(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.UnderMinLimit, ptx.ValidationState)
}

func TestInterestDepositAgreementsRequired(t *testing.T) {
	ctx := context.Background()
	e := newInterestEngine(&stubInterestBalances{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, oneBTC), ptx)
	require.NoError(t, err)
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)

	// 两个协议项都在且必选
	tandc, ok := ptx.GetConfirmation(coincore.ConfirmAgreementInterestTandC)
	require.True(t, ok)
	assert.True(t, tandc.(coincore.ConfirmationOption).Required)
	transfer, ok := ptx.GetConfirmation(coincore.ConfirmAgreementInterestTransfer)
	require.True(t, ok)
	assert.True(t, transfer.(coincore.ConfirmationOption).Required)

	// 未勾选 -> OPTION_INVALID
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.OptionInvalid, ptx.ValidationState)

	// 只勾一个仍然不行
	ptx, err = e.DoOptionUpdateRequest(ctx, ptx, coincore.ConfirmationOption{
		Kind: coincore.ConfirmAgreementInterestTandC, Accepted: true, Required: true,
	})
	require.NoError(t, err)
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.OptionInvalid, ptx.ValidationState)

	// 全部勾选后通过
	ptx, err = e.DoOptionUpdateRequest(ctx, ptx, coincore.ConfirmationOption{
		Kind: coincore.ConfirmAgreementInterestTransfer, Accepted: true, Required: true,
	})
	require.NoError(t, err)
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.CanExecute, ptx.ValidationState)
}

// 重建确认列表保留已有勾选
func TestInterestDepositAgreementsSurviveRebuild(t *testing.T) {
	ctx := context.Background()
	e := newInterestEngine(&stubInterestBalances{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	ptx, err = e.DoOptionUpdateRequest(ctx, ptx, coincore.ConfirmationOption{
		Kind: coincore.ConfirmAgreementInterestTandC, Accepted: true, Required: true,
	})
	require.NoError(t, err)

	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	tandc, _ := ptx.GetConfirmation(coincore.ConfirmAgreementInterestTandC)
	assert.True(t, tandc.(coincore.ConfirmationOption).Accepted)
}

// 用户填过的备注在重建时保留并锁定
func TestInterestDepositMemoLocked(t *testing.T) {
	ctx := context.Background()
	e := newInterestEngine(&stubInterestBalances{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoOptionUpdateRequest(ctx, ptx, coincore.ConfirmationMemo{Text: "savings", Editable: true})
	require.NoError(t, err)

	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	memo, ok := ptx.GetConfirmation(coincore.ConfirmMemo)
	require.True(t, ok)
	assert.Equal(t, "savings", memo.(coincore.ConfirmationMemo).Text)
	assert.False(t, memo.(coincore.ConfirmationMemo).Editable)
}

// 存入成功后利息余额缓存必须刷掉
func TestInterestDepositFlushesCaches(t *testing.T) {
	ctx := context.Background()
	flush := &stubInterestBalances{}
	e := newInterestEngine(flush)

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, oneBTC), ptx)
	require.NoError(t, err)

	_, err = e.DoExecute(ctx, ptx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC"}, flush.flushed)
}
