package txengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
)

type stubQuotes struct {
	mu         sync.Mutex
	quote      coincore.PricedQuote
	err        error
	calls      int
	lastAmount money.Money
}

func (s *stubQuotes) PricedQuote(_ context.Context, _ coincore.CurrencyPair, _ coincore.TransferDirection, amount money.Money) (coincore.PricedQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastAmount = amount
	if s.err != nil {
		return coincore.PricedQuote{}, s.err
	}
	return s.quote, nil
}

func (s *stubQuotes) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubQuotes) lastQuotedAmount() money.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAmount
}

func (s *stubQuotes) setQuote(q coincore.PricedQuote) {
	s.mu.Lock()
	s.quote = q
	s.mu.Unlock()
}

func newSellQuotes(rate int64) *stubQuotes {
	return &stubQuotes{quote: coincore.PricedQuote{
		Rate:                 decimal.NewFromInt(rate),
		SampleDepositAddress: btcTestAddress,
		ExpiresAt:            time.Now().Add(time.Minute),
	}}
}

func newSellEngine(quotes *stubQuotes, signer *stubUTXOSigner) *SellEngine {
	inner := &UTXOEngine{
		Chain:       money.BTC,
		ChainParams: &chaincfg.MainNetParams,
		Fees:        stubFees{regular: 10, priority: 30},
		Signer:      signer,
	}
	e := &SellEngine{
		Inner:        inner,
		Quotes:       quotes,
		Limits:       stubBankLimits{minMinor: 10_00, maxMinor: 3000_00},
		Identity:     stubIdentity{tier: coincore.TierGold},
		Rates:        stubRates{rate: decimal.NewFromInt(30_000)},
		QuoteRefresh: time.Hour,
	}
	target := &coincore.FiatCustodialAccount{AccountLabel: "EUR Account", Fiat: money.EUR}
	e.Start(newBTCWallet(21*oneBTC, 20*oneBTC), target, nil)
	e.AssertInputsValid()
	return e
}

// 分级限额以法币配置，按最近汇率换算: 10 EUR / 30000 与 3000 EUR / 30000
func TestSellInitialise(t *testing.T) {
	ctx := context.Background()
	e := newSellEngine(newSellQuotes(30_000), &stubUTXOSigner{})
	defer e.Stop()

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)

	require.NotNil(t, ptx.MinLimit)
	require.NotNil(t, ptx.MaxLimit)
	assert.Equal(t, int64(33_333), ptx.MinLimit.MinorInt64())
	assert.Equal(t, int64(10_000_000), ptx.MaxLimit.MinorInt64())
	assert.Equal(t, "EUR", ptx.SelectedFiat.Code)

	// 卖出没有可选费档
	assert.Equal(t, []coincore.FeeLevel{coincore.FeeLevelNone}, ptx.FeeSelection.AvailableLevels)

	// 内层链上引擎已指向报价的入金地址
	addr, ok := e.Inner.(*UTXOEngine).Target().(*coincore.CryptoAddress)
	require.True(t, ok)
	assert.Equal(t, btcTestAddress, addr.Address)
}

// 挂单数到顶: 空流程 + 专属状态，而不是报错
func TestSellPendingOrdersLimit(t *testing.T) {
	ctx := context.Background()
	quotes := &stubQuotes{err: coincore.ErrPendingOrdersLimitReached}
	e := newSellEngine(quotes, &stubUTXOSigner{})

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	assert.Equal(t, coincore.PendingOrdersLimitReached, ptx.ValidationState)
	assert.True(t, ptx.TotalBalance.IsZero())
	assert.Nil(t, ptx.MinLimit)
	assert.Nil(t, ptx.MaxLimit)
	assert.Equal(t, []coincore.FeeLevel{coincore.FeeLevelNone}, ptx.FeeSelection.AvailableLevels)

	// 金额更新与校验都不改变状态
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, oneBTC), ptx)
	require.NoError(t, err)
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.PendingOrdersLimitReached, ptx.ValidationState)

	// 空流程也要能反复渲染确认列表，没有报价流可用
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)
	ptx, err = e.DoRefreshConfirmations(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, coincore.PendingOrdersLimitReached, ptx.ValidationState)
	assert.Empty(t, ptx.Confirmations)

	_, err = e.DoExecute(ctx, ptx, "")
	assert.ErrorIs(t, err, errno.ErrNotValidated)
}

// 确认列表的合计是卖出所得法币，不是链上金额
func TestSellConfirmationsFiatTotal(t *testing.T) {
	ctx := context.Background()
	e := newSellEngine(newSellQuotes(30_000), &stubUTXOSigner{})
	defer e.Stop()

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, oneBTC/2), ptx)
	require.NoError(t, err)
	ptx, err = e.DoBuildConfirmations(ctx, ptx)
	require.NoError(t, err)

	total, ok := ptx.GetConfirmation(coincore.ConfirmTotal)
	require.True(t, ok)
	fiat := total.(coincore.ConfirmationTotal).Total
	assert.Equal(t, "EUR", fiat.Currency().Code)
	assert.Equal(t, int64(15_000_00), fiat.MinorInt64())

	to, ok := ptx.GetConfirmation(coincore.ConfirmTo)
	require.True(t, ok)
	assert.Equal(t, coincore.ActionSell, to.(coincore.ConfirmationTo).Action)
}

func TestSellExecute(t *testing.T) {
	ctx := context.Background()
	signer := &stubUTXOSigner{}
	quotes := newSellQuotes(30_000)
	e := newSellEngine(quotes, signer)

	ptx, err := e.DoInitialiseTx(ctx)
	require.NoError(t, err)
	ptx, err = e.DoUpdateAmount(ctx, money.NewFromInt64(money.BTC, oneBTC/20), ptx)
	require.NoError(t, err)
	ptx, err = e.DoValidateAll(ctx, ptx)
	require.NoError(t, err)
	require.Equal(t, coincore.CanExecute, ptx.ValidationState)

	result, err := e.DoExecute(ctx, ptx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, signer.broadcasts)
	require.Len(t, signer.signed, 1)
	assert.Equal(t, int64(oneBTC/20), signer.signed[0].TxOut[0].Value)

	// 执行收尾后报价流停掉；后续的刷新一跳不能再碰它
	_, err = e.DoPostExecute(ctx, ptx, result)
	require.NoError(t, err)
	assert.Nil(t, e.stream)

	out, err := e.DoRefreshConfirmations(ctx, ptx)
	require.NoError(t, err)
	assert.Equal(t, ptx.Confirmations, out.Confirmations)
}

func TestSellAssertInputsValid(t *testing.T) {
	t.Run("目标必须是法币钱包", func(t *testing.T) {
		e := &SellEngine{}
		e.Start(newBTCWallet(oneBTC, oneBTC), &coincore.CryptoAddress{Asset: money.BTC, Address: btcTestAddress}, nil)
		assert.Panics(t, func() { e.AssertInputsValid() })
	})
	t.Run("来源必须是非托管账户", func(t *testing.T) {
		e := &SellEngine{}
		e.Start(newLinkedBank(money.EUR, coincore.BankPartnerYapily), &coincore.FiatCustodialAccount{AccountLabel: "EUR Account", Fiat: money.EUR}, nil)
		assert.Panics(t, func() { e.AssertInputsValid() })
	})
}

func TestQuoteStreamFirstFetchError(t *testing.T) {
	quotes := &stubQuotes{err: assert.AnError}
	_, err := NewQuoteStream(context.Background(), quotes, coincore.CurrencyPair{From: money.BTC, To: money.EUR},
		coincore.DirectionFromUserKey, time.Hour)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestQuoteStreamRefreshes(t *testing.T) {
	quotes := newSellQuotes(30_000)
	s, err := NewQuoteStream(context.Background(), quotes, coincore.CurrencyPair{From: money.BTC, To: money.EUR},
		coincore.DirectionFromUserKey, 5*time.Millisecond)
	require.NoError(t, err)
	defer s.Stop()

	assert.True(t, decimal.NewFromInt(30_000).Equal(s.Latest().Rate))

	quotes.setQuote(coincore.PricedQuote{Rate: decimal.NewFromInt(31_000), SampleDepositAddress: btcTestAddress})
	require.Eventually(t, func() bool {
		return s.Latest().Rate.Equal(decimal.NewFromInt(31_000))
	}, 2*time.Second, 5*time.Millisecond)
	assert.Greater(t, quotes.callCount(), 1)

	// 用户输入的金额随后续拉取传给定价方
	s.UpdateAmount(money.NewFromInt64(money.BTC, oneBTC/2))
	require.Eventually(t, func() bool {
		return quotes.lastQuotedAmount().MinorInt64() == oneBTC/2
	}, 2*time.Second, 5*time.Millisecond)
}

// Stop 可重复调用
func TestQuoteStreamStopTwice(t *testing.T) {
	quotes := newSellQuotes(30_000)
	s, err := NewQuoteStream(context.Background(), quotes, coincore.CurrencyPair{From: money.BTC, To: money.EUR},
		coincore.DirectionFromUserKey, time.Hour)
	require.NoError(t, err)

	s.Stop()
	s.Stop()
}
