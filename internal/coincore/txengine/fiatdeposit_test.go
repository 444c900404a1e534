package txengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincore/internal/coincore"
	"coincore/pkg/money"
)

type stubBankLimits struct {
	minMinor int64
	maxMinor int64
}

func (s stubBankLimits) ProductTransferLimits(_ context.Context, fiat money.Currency, _ string, _ coincore.Tier) (coincore.TransferLimits, error) {
	return coincore.TransferLimits{
		Min: money.NewFromInt64(fiat, s.minMinor),
		Max: money.NewFromInt64(fiat, s.maxMinor),
	}, nil
}

func (s stubBankLimits) BankTransferLimits(_ context.Context, fiat money.Currency, _ bool) (coincore.TransferLimits, error) {
	return coincore.TransferLimits{
		Min: money.NewFromInt64(fiat, s.minMinor),
		Max: money.NewFromInt64(fiat, s.maxMinor),
	}, nil
}

type stubLocks struct {
	secs int64
}

func (s stubLocks) WithdrawLockSeconds(_ context.Context, _ string, _ money.Currency) (int64, error) {
	return s.secs, nil
}

type stubCallbacks struct {
	calls  int
	action coincore.BankTransferAction
}

func (s *stubCallbacks) Callback(_ coincore.BankPartner, action coincore.BankTransferAction) (string, error) {
	s.calls++
	s.action = action
	return "https://coincore.page.link/obapproval?action=pay", nil
}

type stubIdentity struct {
	tier coincore.Tier
}

func (s stubIdentity) VerificationTier(_ context.Context) (coincore.Tier, error) {
	return s.tier, nil
}

type stubTransfers struct {
	started     int
	beneficiary string
	callback    string
	chargeErr   error
	authURL     string
}

func (s *stubTransfers) StartBankTransfer(_ context.Context, beneficiaryID string, _ money.Money, callback string) (string, error) {
	s.started++
	s.beneficiary = beneficiaryID
	s.callback = callback
	return "pay-123", nil
}

func (s *stubTransfers) BankTransferCharge(_ context.Context, paymentID string) (coincore.BankTransferDetails, error) {
	if s.chargeErr != nil {
		return coincore.BankTransferDetails{}, s.chargeErr
	}
	return coincore.BankTransferDetails{ID: paymentID, AuthorisationURL: s.authURL}, nil
}

func newLinkedBank(fiat money.Currency, partner coincore.BankPartner) *coincore.LinkedBankAccount {
	return &coincore.LinkedBankAccount{
		AccountLabel:  "Monzo",
		Fiat:          fiat,
		AccountNumber: "1234",
		AccountType:   "CHECKING",
		Partner:       partner,
		BeneficiaryID: "ben-42",
	}
}

func newFiatDepositEngine(fiat money.Currency, partner coincore.BankPartner, tier coincore.Tier, lockSecs int64, transfers *stubTransfers, callbacks *stubCallbacks) *FiatDepositEngine {
	e := &FiatDepositEngine{
		Transfers: transfers,
		Limits:    stubBankLimits{minMinor: 10_00, maxMinor: 5000_00},
		Locks:     stubLocks{secs: lockSecs},
		Callbacks: callbacks,
		Identity:  stubIdentity{tier: tier},
	}
	target := &coincore.FiatCustodialAccount{AccountLabel: fiat.Code + " Account", Fiat: fiat}
	e.Start(newLinkedBank(fiat, partner), target, nil)
	e.AssertInputsValid()
	return e
}

func TestFiatDepositInitialise(t *testing.T) {
	ctx := context.Background()
	e := newFiatDepositEngine(money.EUR, coincore.BankPartnerYapily, coincore.TierGold, 3*86400, &stubTransfers{}, &stubCallbacks{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)

	require.NotNil(t, ptx.MinLimit)
	require.NotNil(t, ptx.MaxLimit)
	assert.Equal(t, int64(10_00), ptx.MinLimit.MinorInt64())
	assert.Equal(t, int64(5000_00), ptx.MaxLimit.MinorInt64())

	// 法币入金没有手续费档位
	assert.Equal(t, []coincore.FeeLevel{coincore.FeeLevelNone}, ptx.FeeSelection.AvailableLevels)

	days, ok := ptx.EngineStateValue(coincore.EngineStateWithdrawLocks)
	require.True(t, ok)
	assert.Equal(t, int64(3), days.(int64))
}

// 锁定期不足一天按一天算，为零则完全不出现
func TestFiatDepositWithdrawLockRounding(t *testing.T) {
	ctx := context.Background()

	e := newFiatDepositEngine(money.EUR, coincore.BankPartnerYapily, coincore.TierGold, 60, &stubTransfers{}, &stubCallbacks{})
	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	days, ok := ptx.EngineStateValue(coincore.EngineStateWithdrawLocks)
	require.True(t, ok)
	assert.Equal(t, int64(1), days.(int64))

	e = newFiatDepositEngine(money.EUR, coincore.BankPartnerYapily, coincore.TierGold, 0, &stubTransfers{}, &stubCallbacks{})
	ptx, err = e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	_, ok = ptx.EngineStateValue(coincore.EngineStateWithdrawLocks)
	assert.False(t, ok)
}

func TestFiatDepositConfirmations(t *testing.T) {
	ctx := context.Background()

	// open banking 币种: 到账时间不可预估，不出现该条目
	e := newFiatDepositEngine(money.EUR, coincore.BankPartnerYapily, coincore.TierGold, 86400, &stubTransfers{}, &stubCallbacks{})
	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.EUR, 100_00), ptx)
	require.NoError(t, err)
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)

	pm, ok := ptx.GetConfirmation(coincore.ConfirmPaymentMethod)
	require.True(t, ok)
	assert.Equal(t, "Monzo", pm.(coincore.ConfirmationPaymentMethod).Label)
	assert.Equal(t, "1234", pm.(coincore.ConfirmationPaymentMethod).AccountNumber)

	amount, ok := ptx.GetConfirmation(coincore.ConfirmAmount)
	require.True(t, ok)
	assert.True(t, amount.(coincore.ConfirmationAmount).Important)

	lock, ok := ptx.GetConfirmation(coincore.ConfirmWithdrawLockPeriod)
	require.True(t, ok)
	assert.Equal(t, int64(1), lock.(coincore.ConfirmationWithdrawLockPeriod).Days)

	assert.False(t, ptx.HasConfirmation(coincore.ConfirmEstimatedCompletion))

	// 非 open banking 币种带预计到账时间
	e = newFiatDepositEngine(money.USD, coincore.BankPartnerYodlee, coincore.TierGold, 86400, &stubTransfers{}, &stubCallbacks{})
	ptx, err = e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	assert.True(t, ptx.HasConfirmation(coincore.ConfirmEstimatedCompletion))
}

func TestFiatDepositValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		tier       coincore.Tier
		amountCent int64
		want       coincore.ValidationState
	}{
		{"未输入金额保持未初始化", coincore.TierGold, 0, coincore.Uninitialised},
		{"低于下限", coincore.TierGold, 5_00, coincore.UnderMinLimit},
		{"区间内", coincore.TierGold, 100_00, coincore.CanExecute},
		{"金卡超限已到顶", coincore.TierGold, 9000_00, coincore.OverGoldTierLimit},
		{"银卡超限可升级提额", coincore.TierSilver, 9000_00, coincore.OverSilverTierLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newFiatDepositEngine(money.EUR, coincore.BankPartnerYapily, tc.tier, 0, &stubTransfers{}, &stubCallbacks{})
			ptx, err := e.DoInitialiseTx(ctx)
			require.NoError(t, err)
			if tc.amountCent > 0 {
				ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.EUR, tc.amountCent), ptx)
				require.NoError(t, err)
			}
			ptx, err = e.DoValidateAll(ctx, ptx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ptx.ValidationState)
		})
	}
}

// 非 open banking: 不带回跳 URL，入金受理即完结
func TestFiatDepositExecuteDirect(t *testing.T) {
	ctx := context.Background()
	transfers := &stubTransfers{}
	callbacks := &stubCallbacks{}
	e := newFiatDepositEngine(money.USD, coincore.BankPartnerYodlee, coincore.TierGold, 0, transfers, callbacks)

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.USD, 100_00), ptx)
	require.NoError(t, err)

	result, err := e.DoExecute(ctx, ptx, "")
	require.NoError(t, err)
	assert.Equal(t, "ben-42", transfers.beneficiary)
	assert.Empty(t, transfers.callback)
	assert.Zero(t, callbacks.calls)

	final, err := e.DoPostExecute(ctx, ptx, result)
	require.NoError(t, err)
	hashed, ok := final.(coincore.HashedTxResult)
	require.True(t, ok)
	assert.Equal(t, "pay-123", hashed.TxID)
}

// open banking: 带回跳 URL 发起，执行后轮询出授权 URL
func TestFiatDepositExecuteOpenBanking(t *testing.T) {
	ctx := context.Background()
	transfers := &stubTransfers{authURL: "https://bank.example/approve/pay-123"}
	callbacks := &stubCallbacks{}
	e := newFiatDepositEngine(money.EUR, coincore.BankPartnerYapily, coincore.TierGold, 0, transfers, callbacks)

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.EUR, 100_00), ptx)
	require.NoError(t, err)

	result, err := e.DoExecute(ctx, ptx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, callbacks.calls)
	assert.Equal(t, coincore.BankTransferPay, callbacks.action)
	assert.NotEmpty(t, transfers.callback)

	final, err := e.DoPostExecute(ctx, ptx, result)
	require.NoError(t, err)
	approval, ok := final.(coincore.NeedsApprovalResult)
	require.True(t, ok)
	assert.Equal(t, "pay-123", approval.PaymentID)
	assert.Equal(t, "https://bank.example/approve/pay-123", approval.AuthorisationURL)
	assert.Equal(t, int64(100_00), approval.Amount.MinorInt64())
}

// 轮询失败不推翻已受理的入金: 原结果和错误一起返回
func TestFiatDepositApprovalPollError(t *testing.T) {
	ctx := context.Background()
	transfers := &stubTransfers{chargeErr: assert.AnError}
	e := newFiatDepositEngine(money.GBP, coincore.BankPartnerYapily, coincore.TierGold, 0, transfers, &stubCallbacks{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.GBP, 100_00), ptx)
	require.NoError(t, err)

	result, err := e.DoExecute(ctx, ptx, "")
	require.NoError(t, err)

	final, err := e.DoPostExecute(ctx, ptx, result)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, result, final)
}

func TestFiatDepositAssertInputsValid(t *testing.T) {
	t.Run("来源必须是已关联银行账户", func(t *testing.T) {
		e := &FiatDepositEngine{}
		e.Start(newBTCWallet(oneBTC, oneBTC), &coincore.FiatCustodialAccount{AccountLabel: "EUR Account", Fiat: money.EUR}, nil)
		assert.Panics(t, func() { e.AssertInputsValid() })
	})
	t.Run("银行币种必须与钱包一致", func(t *testing.T) {
		e := &FiatDepositEngine{}
		e.Start(newLinkedBank(money.GBP, coincore.BankPartnerYapily), &coincore.FiatCustodialAccount{AccountLabel: "EUR Account", Fiat: money.EUR}, nil)
		assert.Panics(t, func() { e.AssertInputsValid() })
	})
}
