// Package assets 提供各资产模块: 账户发现与地址解析
// 每种资产一个实现，coincore 门面按注册顺序聚合
package assets

import (
	"context"
	"fmt"
	"time"

	"coincore/internal/coincore"
	"coincore/pkg/cache"
	"coincore/pkg/money"
)

// balanceTTL 余额缓存有效期
const balanceTTL = 30 * time.Second

// cachedBalance 缓存里的余额快照 (最小单位十进制字符串)
type cachedBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

// CachedBalanceProvider 在上游余额源前面加一层缓存
// 余额查询在构建交易时非常频繁，上游通常是慢的节点/托管后端调用
type CachedBalanceProvider struct {
	Upstream coincore.BalanceProvider
	Cache    cache.Cache
}

func balanceKey(c money.Currency) string {
	return "coincore:balance:" + c.Code
}

func (p *CachedBalanceProvider) Balance(ctx context.Context, currency money.Currency) (coincore.AccountBalance, error) {
	var hit cachedBalance
	if err := p.Cache.Get(ctx, balanceKey(currency), &hit); err == nil {
		if bal, ok := decodeBalance(currency, hit); ok {
			return bal, nil
		}
	}

	bal, err := p.Upstream.Balance(ctx, currency)
	if err != nil {
		return coincore.AccountBalance{}, err
	}
	_ = p.Cache.Set(ctx, balanceKey(currency), cachedBalance{
		Total:     bal.Total.Minor().String(),
		Available: bal.Available.Minor().String(),
	}, balanceTTL)
	return bal, nil
}

// Invalidate 交易出账后余额缓存立即失效
func (p *CachedBalanceProvider) Invalidate(ctx context.Context, currency money.Currency) {
	_ = p.Cache.Delete(ctx, balanceKey(currency))
}

// FlushCaches 实现 coincore.InterestBalanceStore: 存入成功后余额必须重新拉取
func (p *CachedBalanceProvider) FlushCaches(ctx context.Context, asset money.Currency) error {
	return p.Cache.Delete(ctx, balanceKey(asset))
}

func decodeBalance(c money.Currency, hit cachedBalance) (coincore.AccountBalance, bool) {
	total, ok1 := money.ParseMinor(c, hit.Total)
	available, ok2 := money.ParseMinor(c, hit.Available)
	if !ok1 || !ok2 {
		return coincore.AccountBalance{}, false
	}
	return coincore.AccountBalance{Total: total, Available: available}, true
}

// warmBalances Init 时预热账户余额，单个失败不算致命
func warmBalances(ctx context.Context, accounts []coincore.BlockchainAccount) error {
	var firstErr error
	for _, acc := range accounts {
		if _, err := acc.Balance(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("warm %s: %w", acc.Label(), err)
		}
	}
	return firstErr
}
