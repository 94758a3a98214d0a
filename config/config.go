package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vultisig/vultiwallet/internal/coinselect"
	"github.com/vultisig/vultiwallet/internal/types"
)

type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type ExplorerConfig struct {
	Hosts             []string      `mapstructure:"hosts" json:"hosts,omitempty"`
	APIPrefix         string        `mapstructure:"api_prefix" json:"api_prefix,omitempty"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	RequestsPerSecond int           `mapstructure:"requests_per_second" json:"requests_per_second,omitempty"`
}

// WalletConfig carries every tunable of the proposal engine and caches.
type WalletConfig struct {
	MaxTxSizeInKb               float64       `mapstructure:"max_tx_size_in_kb"`
	MaxSingleUtxoFactor         float64       `mapstructure:"max_single_utxo_factor"`
	MinTxAmountVsUtxoFactor     float64       `mapstructure:"min_tx_amount_vs_utxo_factor"`
	MaxFeeVsTxAmountFactor      float64       `mapstructure:"max_fee_vs_tx_amount_factor"`
	MaxFeeVsSingleUtxoFeeFactor float64       `mapstructure:"max_fee_vs_single_utxo_fee_factor"`
	MinOutputAmount             int64         `mapstructure:"min_output_amount"`
	DustAmount                  int64         `mapstructure:"dust_amount"`
	MinFeePerKb                 int64         `mapstructure:"min_fee_per_kb"`
	MaxFeePerKb                 int64         `mapstructure:"max_fee_per_kb"`
	BackoffOffset               int           `mapstructure:"backoff_offset"`
	BackoffTime                 time.Duration `mapstructure:"backoff_time"`
	DeleteLockTime              time.Duration `mapstructure:"delete_lock_time"`
	MaxMainAddressGap           int           `mapstructure:"max_main_address_gap"`
	ScanAddressGap              int           `mapstructure:"scan_address_gap"`
	HistoryLimit                int           `mapstructure:"history_limit"`
	HistoryCacheAddressThresh   int           `mapstructure:"history_cache_address_threshold"`
	ConfirmationsToCache        int64         `mapstructure:"confirmations_to_cache"`
	TwoStepBalanceThreshold     int           `mapstructure:"two_step_balance_threshold"`
	BlockheightCacheTime        time.Duration `mapstructure:"blockheight_cache_time"`
}

// SelectionPolicy returns the coin selection policy for a wallet shape.
func (w WalletConfig) SelectionPolicy(m, n int, addressType types.AddressType) coinselect.Policy {
	p := coinselect.DefaultPolicy(m, n, addressType)
	p.MaxTxSizeInKb = w.MaxTxSizeInKb
	p.MaxSingleUtxoFactor = w.MaxSingleUtxoFactor
	p.MinTxAmountVsUtxoFactor = w.MinTxAmountVsUtxoFactor
	p.MaxFeeVsTxAmountFactor = w.MaxFeeVsTxAmountFactor
	p.MaxFeeVsSingleUtxoFeeFactor = w.MaxFeeVsSingleUtxoFeeFactor
	p.MinOutputAmount = w.MinOutputAmount
	p.DustAmount = w.DustAmount
	return p
}

type Config struct {
	Server struct {
		Host      string  `mapstructure:"host"`
		Port      int64   `mapstructure:"port"`
		BodyLimit string  `mapstructure:"body_limit"`
		RateLimit float64 `mapstructure:"rate_limit"`
		RateBurst int     `mapstructure:"rate_burst"`
	} `mapstructure:"server"`

	Redis RedisConfig `mapstructure:"redis"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	// Explorer is keyed by network name.
	Explorer map[string]ExplorerConfig `mapstructure:"explorer"`

	Wallet WalletConfig `mapstructure:"wallet"`

	Lock struct {
		WaitTime     time.Duration `mapstructure:"wait_time"`
		ExecTime     time.Duration `mapstructure:"exec_time"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"lock"`

	Datadog struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
	} `mapstructure:"datadog"`

	Auth struct {
		JWTSecret         string        `mapstructure:"jwt_secret"`
		SessionExpiration time.Duration `mapstructure:"session_expiration"`
	} `mapstructure:"auth"`

	Scheduler struct {
		BlockPollSpec string `mapstructure:"block_poll_spec"`
	} `mapstructure:"scheduler"`

	Worker struct {
		Concurrency int    `mapstructure:"concurrency"`
		Queue       string `mapstructure:"queue"`
	} `mapstructure:"worker"`

	// EmailServer enables notification emails when an API key is set.
	EmailServer struct {
		ApiKey        string `mapstructure:"api_key"`
		Endpoint      string `mapstructure:"endpoint"`
		SendingDomain string `mapstructure:"sending_domain"`
	} `mapstructure:"email_server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3232)
	v.SetDefault("server.body_limit", "2M")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.rate_burst", 30)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")

	v.SetDefault("explorer.livenet.hosts", []string{"https://insight.bitpay.com"})
	v.SetDefault("explorer.testnet.hosts", []string{"https://test-insight.bitpay.com"})

	v.SetDefault("wallet.max_tx_size_in_kb", coinselect.DefaultMaxTxSizeInKb)
	v.SetDefault("wallet.max_single_utxo_factor", coinselect.DefaultMaxSingleUtxoFactor)
	v.SetDefault("wallet.min_tx_amount_vs_utxo_factor", coinselect.DefaultMinTxAmountVsUtxoFactor)
	v.SetDefault("wallet.max_fee_vs_tx_amount_factor", coinselect.DefaultMaxFeeVsTxAmountFactor)
	v.SetDefault("wallet.max_fee_vs_single_utxo_fee_factor", coinselect.DefaultMaxFeeVsSingleUtxoFeeFactor)
	v.SetDefault("wallet.min_output_amount", coinselect.DefaultMinOutputAmount)
	v.SetDefault("wallet.dust_amount", coinselect.DefaultDustAmount)
	v.SetDefault("wallet.min_fee_per_kb", types.MinFeePerKb)
	v.SetDefault("wallet.max_fee_per_kb", types.MaxFeePerKb)
	v.SetDefault("wallet.backoff_offset", types.BackoffOffset)
	v.SetDefault("wallet.backoff_time", types.BackoffTime)
	v.SetDefault("wallet.delete_lock_time", types.DeleteLockTime)
	v.SetDefault("wallet.max_main_address_gap", types.MaxMainAddressGap)
	v.SetDefault("wallet.scan_address_gap", types.ScanAddressGap)
	v.SetDefault("wallet.history_limit", types.HistoryLimit)
	v.SetDefault("wallet.history_cache_address_threshold", types.HistoryCacheAddressThresh)
	v.SetDefault("wallet.confirmations_to_cache", types.ConfirmationsToCache)
	v.SetDefault("wallet.two_step_balance_threshold", types.TwoStepBalanceThreshold)
	v.SetDefault("wallet.blockheight_cache_time", types.BlockheightCacheTime)

	v.SetDefault("lock.wait_time", types.LockWaitTime)
	v.SetDefault("lock.exec_time", types.LockExecTime)
	v.SetDefault("lock.poll_interval", 250*time.Millisecond)

	v.SetDefault("datadog.host", "localhost")
	v.SetDefault("datadog.port", "8125")

	v.SetDefault("auth.session_expiration", types.SessionExpiration)

	v.SetDefault("scheduler.block_poll_spec", "@every 30s")

	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.queue", "vultiwallet")

	v.SetDefault("email_server.sending_domain", "vultisig.com")
}

// ReadConfig loads <configName>.{json,yaml} from the working directory and
// lets environment variables override any key, e.g. REDIS_HOST for
// redis.host. A missing file is not an error.
func ReadConfig(configName string, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fail to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}
	return &cfg, nil
}
