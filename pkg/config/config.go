package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	BitPay    BitPayConfig    `mapstructure:"bitpay"`
	Custodial CustodialConfig `mapstructure:"custodial"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// BitPayConfig 商户发票支付后端
type BitPayConfig struct {
	BaseUrl string `mapstructure:"base_url"`
}

// CustodialConfig 托管后端 (限额/报价/银行/身份)
type CustodialConfig struct {
	BaseUrl string `mapstructure:"base_url"`
	ApiKey  string `mapstructure:"api_key"`
}

// ChainConfig 钱包守护进程 (费率/余额/签名/广播)
type ChainConfig struct {
	DaemonUrl string `mapstructure:"daemon_url"`
}

// EngineConfig 交易引擎层的可调参数
type EngineConfig struct {
	// UserFiat 用户显示法币
	UserFiat string `mapstructure:"user_fiat"`
	// QuoteRefreshSec Sell 报价流的刷新间隔 (秒)
	QuoteRefreshSec int `mapstructure:"quote_refresh_sec"`
	// RatesRefreshSpec 汇率同步 cron 表达式
	RatesRefreshSpec string `mapstructure:"rates_refresh_spec"`
	// LargeTxPercent 金额超过可用余额的该百分比时，要求用户确认大额交易
	LargeTxPercent int `mapstructure:"large_tx_percent"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "coincore_user")
	viper.SetDefault("db.password", "coincore_password")
	viper.SetDefault("db.name", "coincore_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "coincore.tx")

	viper.SetDefault("bitpay.base_url", "https://bitpay.com")

	viper.SetDefault("custodial.base_url", "http://localhost:8081")
	viper.SetDefault("custodial.api_key", "")

	viper.SetDefault("chain.daemon_url", "http://localhost:8332")

	viper.SetDefault("engine.user_fiat", "USD")
	viper.SetDefault("engine.quote_refresh_sec", 10)
	viper.SetDefault("engine.rates_refresh_spec", "@every 1m")
	viper.SetDefault("engine.large_tx_percent", 50)
}
