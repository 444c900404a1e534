package txengine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"coincore/internal/coincore"
	"coincore/pkg/logger"
	"coincore/pkg/money"
)

// QuoteStream 在后台周期刷新一个币对的报价，保证 Latest 总是能拿到
// 未过期的价格。Sell 引擎持有它的整个生命周期，DoExecute 用最新报价下单
type QuoteStream struct {
	provider  coincore.QuoteProvider
	pair      coincore.CurrencyPair
	direction coincore.TransferDirection
	interval  time.Duration

	mu     sync.RWMutex
	latest coincore.PricedQuote
	amount money.Money

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQuoteStream fetches the first quote synchronously, then keeps it fresh.
// 首次拉取失败直接返回错误，包括 ErrPendingOrdersLimitReached
func NewQuoteStream(ctx context.Context, provider coincore.QuoteProvider, pair coincore.CurrencyPair, direction coincore.TransferDirection, interval time.Duration) (*QuoteStream, error) {
	first, err := provider.PricedQuote(ctx, pair, direction, money.Zero(pair.From))
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &QuoteStream{
		provider:  provider,
		pair:      pair,
		direction: direction,
		interval:  interval,
		latest:    first,
		amount:    money.Zero(pair.From),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.loop(loopCtx)
	return s, nil
}

func (s *QuoteStream) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		amount := s.amount
		s.mu.RUnlock()

		quote, err := s.provider.PricedQuote(ctx, s.pair, s.direction, amount)
		if err != nil {
			// 刷新失败保留上一条报价，过期由 Latest 的调用方兜底
			logger.Warn("quote refresh failed",
				zap.String("from", s.pair.From.Code),
				zap.String("to", s.pair.To.Code),
				zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.latest = quote
		s.mu.Unlock()
	}
}

// Latest 最近一次成功拉取的报价
func (s *QuoteStream) Latest() coincore.PricedQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// UpdateAmount 记录用户输入的金额，供定价方按量调价
func (s *QuoteStream) UpdateAmount(amount money.Money) {
	s.mu.Lock()
	s.amount = amount
	s.mu.Unlock()
}

// Stop 终止后台刷新并等待退出，可重复调用
func (s *QuoteStream) Stop() {
	s.cancel()
	<-s.done
}
