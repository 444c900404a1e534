package main

import (
	"context"
	"fmt"
	"time"

	"coincore/internal/bitpay"
	"coincore/internal/chain"
	"coincore/internal/coincore"
	"coincore/internal/coincore/assets"
	"coincore/internal/coincore/txengine"
	"coincore/internal/custodial"
	"coincore/internal/handler"
	"coincore/internal/model"
	"coincore/internal/mq"
	"coincore/internal/rates"
	"coincore/internal/server"
	"coincore/internal/service"
	"coincore/internal/store"

	"coincore/pkg/cache"
	"coincore/pkg/config"
	"coincore/pkg/database"
	"coincore/pkg/logger"
	"coincore/pkg/money"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"
)

func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 构造 DSN
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)

	// 3. 连接数据库
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 4. 连接 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 5. 执行数据库迁移 (Auto Migrate)
	if config.Global.App.Env == "development" {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
		logger.Info("数据库自动迁移完成 (Dev Mode)")
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}

	// 6. 外部协作方客户端
	chainClient := chain.NewClient(config.Global.Chain.DaemonUrl)
	custodialClient := custodial.NewClient(config.Global.Custodial.BaseUrl, config.Global.Custodial.ApiKey)
	invoiceClient := bitpay.NewClient(config.Global.BitPay.BaseUrl)

	// 7. 余额缓存 (链上余额走守护进程，托管余额走托管后端，都套同一层缓存)
	redisCache := cache.NewRedisCache(rdb)
	chainBalances := &assets.CachedBalanceProvider{Upstream: chainClient, Cache: redisCache}
	custodialBalances := &assets.CachedBalanceProvider{Upstream: custodialClient, Cache: redisCache}

	// 8. 用户显示法币
	userFiat, ok := money.FromCode(config.Global.Engine.UserFiat)
	if !ok || !userFiat.IsFiat {
		logger.Fatal("无效的显示法币", zap.String("code", config.Global.Engine.UserFiat))
	}

	// 9. 汇率同步服务
	rateService := rates.NewService(custodialClient,
		rates.Pair{Crypto: money.BTC, Fiat: userFiat},
		rates.Pair{Crypto: money.BCH, Fiat: userFiat},
		rates.Pair{Crypto: money.ETH, Fiat: userFiat},
		rates.Pair{Crypto: money.USDT, Fiat: userFiat},
	)
	if err := rateService.Start(context.Background(), config.Global.Engine.RatesRefreshSpec); err != nil {
		// 首次同步失败不致命，cron 会继续重试
		logger.Warn("首次汇率同步失败", zap.Error(err))
	}

	// 10. 引擎工厂
	factory := txengine.NewFactory(txengine.Deps{
		Fees:             chainClient,
		UTXOSigner:       chainClient,
		EVMSigner:        chainClient,
		Quotes:           custodialClient,
		Limits:           custodialClient,
		Identity:         custodialClient,
		Rates:            rateService,
		InvoiceBackend:   invoiceClient,
		MinDeposits:      custodialClient,
		InterestBalances: custodialBalances,
		BankTransfers:    custodialClient,
		Locks:            custodialClient,
		Callbacks:        custodialClient,
		UserFiat:         userFiat,
		QuoteRefresh:     time.Duration(config.Global.Engine.QuoteRefreshSec) * time.Second,
		LargeTxPercent:   config.Global.Engine.LargeTxPercent,
	})

	// 11. 装配资产模块
	assetModules, err := buildAssets(context.Background(), chainClient, custodialClient, chainBalances, custodialBalances, userFiat)
	if err != nil {
		logger.Fatal("资产模块装配失败", zap.Error(err))
	}

	// 12. 消息队列
	mqType := config.Global.Redis.MQType
	var producer mq.Producer
	if mqType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers, config.Global.Kafka.Topic)
	} else {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
	}

	// 13. 核心门面 + 落库/事件出口
	core := coincore.New(factory, assetModules...).
		WithSinks(store.NewTransactionStore(db), mq.NewExecutionPublisher(producer))
	if err := core.Init(context.Background()); err != nil {
		logger.Fatal("coincore 初始化失败", zap.Error(err))
	}

	// 14. 业务服务与 HTTP 层
	flowService := service.NewTxFlowService(core)
	r := server.NewHTTPRouter(
		handler.NewAccountsHandler(core),
		handler.NewTxFlowHandler(flowService),
	)

	// 15. 启动应用
	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, r)
	app.OnShutdown = func() {
		flowService.CloseAll()
		rateService.Stop()
	}

	// 运行 (阻塞)
	app.Run()

	// 16. 退出后资源清理
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("系统已退出")
}

// buildAssets 装配各资产模块: 链上资产的地址来自钱包守护进程，
// 托管账户与银行列表来自托管后端
func buildAssets(
	ctx context.Context,
	chainClient *chain.Client,
	custodialClient *custodial.Client,
	chainBalances *assets.CachedBalanceProvider,
	custodialBalances *assets.CachedBalanceProvider,
	userFiat money.Currency,
) ([]coincore.Asset, error) {
	var modules []coincore.Asset

	for _, chainCurrency := range []money.Currency{money.BTC, money.BCH} {
		addr, err := chainClient.ReceiveAddress(ctx, chainCurrency)
		if err != nil {
			return nil, fmt.Errorf("%s receive address: %w", chainCurrency.Code, err)
		}
		tradingAddr, err := custodialClient.DepositAddress(ctx, "SIMPLEBUY", chainCurrency)
		if err != nil {
			return nil, fmt.Errorf("%s trading deposit address: %w", chainCurrency.Code, err)
		}
		savingsAddr, err := custodialClient.DepositAddress(ctx, "SAVINGS", chainCurrency)
		if err != nil {
			return nil, fmt.Errorf("%s savings deposit address: %w", chainCurrency.Code, err)
		}
		modules = append(modules, assets.NewUTXOAsset(chainCurrency, &chaincfg.MainNetParams,
			&coincore.CryptoNonCustodialAccount{
				AccountLabel: "Private Key Wallet",
				Asset:        chainCurrency,
				Address:      addr,
				Balances:     chainBalances,
			},
			&coincore.CustodialTradingAccount{
				AccountLabel:   "Trading Account",
				Asset:          chainCurrency,
				Balances:       custodialBalances,
				DepositAddress: tradingAddr,
			},
			&coincore.InterestAccount{
				AccountLabel: "Rewards Account",
				Asset:        chainCurrency,
				Address:      savingsAddr,
				Balances:     custodialBalances,
			},
		))
	}

	usdtAddr, err := chainClient.ReceiveAddress(ctx, money.USDT)
	if err != nil {
		return nil, fmt.Errorf("USDT receive address: %w", err)
	}
	usdtTradingAddr, err := custodialClient.DepositAddress(ctx, "SIMPLEBUY", money.USDT)
	if err != nil {
		return nil, fmt.Errorf("USDT trading deposit address: %w", err)
	}
	modules = append(modules, assets.NewErc20Asset(money.USDT,
		&coincore.CryptoNonCustodialAccount{
			AccountLabel: "Private Key Wallet",
			Asset:        money.USDT,
			Address:      usdtAddr,
			Balances:     chainBalances,
			GasBalances:  chainBalances,
		},
		&coincore.CustodialTradingAccount{
			AccountLabel:   "Trading Account",
			Asset:          money.USDT,
			Balances:       custodialBalances,
			DepositAddress: usdtTradingAddr,
		},
	))

	banks, err := custodialClient.LinkedBanks(ctx, userFiat)
	if err != nil {
		return nil, fmt.Errorf("linked banks: %w", err)
	}
	modules = append(modules, assets.NewFiatAsset(userFiat,
		&coincore.FiatCustodialAccount{
			AccountLabel: userFiat.Code + " Account",
			Fiat:         userFiat,
			Balances:     custodialBalances,
		},
		banks...,
	))

	return modules, nil
}
