// Package rates 维护 crypto/fiat 汇率的本地快照，定时刷新
package rates

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coincore/pkg/errno"
	"coincore/pkg/logger"
	"coincore/pkg/money"
)

// Source 上游行情源
type Source interface {
	// FetchRate 1 主单位 crypto 对应的 fiat 主单位数
	FetchRate(ctx context.Context, crypto, fiat money.Currency) (decimal.Decimal, error)
}

// Pair 需要跟踪的币对
type Pair struct {
	Crypto money.Currency
	Fiat   money.Currency
}

func key(crypto, fiat money.Currency) string {
	return crypto.Code + "/" + fiat.Code
}

// Service 实现 coincore.ExchangeRates
// LastRate 只读本地快照，上游抖动不影响交易流程
type Service struct {
	source Source
	pairs  []Pair
	cron   *cron.Cron

	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewService(source Source, pairs ...Pair) *Service {
	return &Service{
		source: source,
		pairs:  pairs,
		rates:  make(map[string]decimal.Decimal),
	}
}

// Start 先同步拉一轮，再按 cron 表达式定时刷新
// spec 例如 "@every 1m"
func (s *Service) Start(ctx context.Context, spec string) error {
	s.refreshAll(ctx)

	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.refreshAll(refreshCtx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop 停掉定时刷新
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Service) refreshAll(ctx context.Context) {
	for _, p := range s.pairs {
		rate, err := s.source.FetchRate(ctx, p.Crypto, p.Fiat)
		if err != nil {
			// 保留上一次的快照
			logger.Warn("rate refresh failed",
				zap.String("pair", key(p.Crypto, p.Fiat)), zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.rates[key(p.Crypto, p.Fiat)] = rate
		s.mu.Unlock()
	}
}

// LastRate 最近一次成功拉取的汇率
func (s *Service) LastRate(crypto, fiat money.Currency) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate, ok := s.rates[key(crypto, fiat)]
	if !ok {
		return decimal.Zero, errno.ErrQuoteUnavailable
	}
	return rate, nil
}
