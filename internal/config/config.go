package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Redis  RedisConfig  `mapstructure:"redis"`

	Exchange       ExchangeConfig       `mapstructure:"exchange"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Kelly          KellyConfig          `mapstructure:"kelly"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Observer       ObserverConfig       `mapstructure:"observer"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	DB            int           `mapstructure:"db"`
	PriceStream   string        `mapstructure:"price_stream"`
	BalanceStream string        `mapstructure:"balance_stream"`
	ScanCount     int64         `mapstructure:"scan_count"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
}

// ExchangeConfig covers the connectivity manager and the concrete exchange
// client. Credentials are expected through the env layer
// (TC_EXCHANGE_API_KEY, TC_EXCHANGE_WALLET_ADDRESS, TC_EXCHANGE_PRIVATE_KEY).
type ExchangeConfig struct {
	Name                string        `mapstructure:"name"`
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	APIKey              string        `mapstructure:"api_key"`
	WalletAddress       string        `mapstructure:"wallet_address"`
	PrivateKey          string        `mapstructure:"private_key"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	MaxRetries          int           `mapstructure:"max_retries"`
	BreakerThreshold    int           `mapstructure:"breaker_threshold"`
	BreakerResetTime    time.Duration `mapstructure:"breaker_reset_time"`
}

type ReconciliationConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Schedule            string        `mapstructure:"schedule"`
	Symbols             []string      `mapstructure:"symbols"`
	RiskPosPercentage   float64       `mapstructure:"risk_pos_percentage"`
	FallbackRiskSizeUSD float64       `mapstructure:"fallback_risk_size_usd"`
	MinTradeThreshold   float64       `mapstructure:"min_trade_threshold_usd"`
	RunFreshnessWindow  time.Duration `mapstructure:"run_freshness_window"`
	PositionStaleness   time.Duration `mapstructure:"position_staleness"`
	BalanceStaleness    time.Duration `mapstructure:"balance_staleness"`
}

type KellyConfig struct {
	MinSamples        int     `mapstructure:"min_samples"`
	MaxIncrease       float64 `mapstructure:"max_increase"`
	MaxDecrease       float64 `mapstructure:"max_decrease"`
	ProbationFraction float64 `mapstructure:"probation_fraction"`
}

type GatewayConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

type ObserverConfig struct {
	URLs            []string      `mapstructure:"urls"`
	Account         string        `mapstructure:"account"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxHeartbeatAge time.Duration `mapstructure:"max_heartbeat_age"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8002")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_stream", "prices:updated")
	v.SetDefault("redis.balance_stream", "balance:updated")
	v.SetDefault("redis.scan_count", 500)
	v.SetDefault("redis.read_timeout", "3s")

	v.SetDefault("exchange.name", "hyperliquid")
	v.SetDefault("exchange.base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("exchange.timeout", "30s")
	v.SetDefault("exchange.health_check_interval", "5m")
	v.SetDefault("exchange.max_retries", 3)
	v.SetDefault("exchange.breaker_threshold", 5)
	v.SetDefault("exchange.breaker_reset_time", "5m")

	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.schedule", "@every 15s")
	v.SetDefault("reconciliation.symbols", []string{"BTC/USDC:USDC", "ETH/USDC:USDC"})
	v.SetDefault("reconciliation.risk_pos_percentage", 0.0016180339887)
	v.SetDefault("reconciliation.fallback_risk_size_usd", 20.25)
	v.SetDefault("reconciliation.min_trade_threshold_usd", 20.0)
	v.SetDefault("reconciliation.run_freshness_window", "10m")
	v.SetDefault("reconciliation.position_staleness", "5m")
	v.SetDefault("reconciliation.balance_staleness", "15m")

	v.SetDefault("kelly.min_samples", 10)
	v.SetDefault("kelly.max_increase", 1.0)
	// The lower bound stays above -1 so the sizing multiplier can shrink
	// toward zero but never flips sign.
	v.SetDefault("kelly.max_decrease", -0.98)
	v.SetDefault("kelly.probation_fraction", 0.10)

	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.dedup_window", "30s")

	v.SetDefault("observer.urls", []string{"http://localhost:8001/observer.json"})
	v.SetDefault("observer.timeout", "5s")
	v.SetDefault("observer.max_heartbeat_age", "5m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
