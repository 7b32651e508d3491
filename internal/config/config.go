// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/pumpwatch/internal/detector"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/sniping"
)

const EnvPrefix = "PUMPWATCH"

type Config struct {
	RPCList             []string      `mapstructure:"rpc_list"`
	WSList              []string      `mapstructure:"ws_list"`
	RotateEndpoints     bool          `mapstructure:"rotate_endpoints"`
	RateCeiling         int           `mapstructure:"rate_ceiling"`
	RateWindow          time.Duration `mapstructure:"rate_window"`
	MaxRetries          int           `mapstructure:"max_retries"`
	WSReconnectAttempts int           `mapstructure:"ws_reconnect_attempts"`
	WSReconnectDelay    time.Duration `mapstructure:"ws_reconnect_delay"`

	CandleInterval time.Duration `mapstructure:"candle_interval"`
	HistoryDepth   int           `mapstructure:"history_depth"`
	BroadcastAddr  string        `mapstructure:"broadcast_addr"`
	TokenDecimals  int           `mapstructure:"token_decimals"`

	MetricsAddr string      `mapstructure:"metrics_addr"`
	PostgresURL string      `mapstructure:"postgres_url"`
	Redis       RedisConfig `mapstructure:"redis"`

	Detector DetectorConfig `mapstructure:"detector"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Sniper   SniperConfig   `mapstructure:"sniper"`
	Log      logger.Config  `mapstructure:"log"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

type DetectorConfig struct {
	VanitySuffix      string         `mapstructure:"vanity_suffix"`
	ExcludedAddresses []string       `mapstructure:"excluded_addresses"`
	CurvePollAttempts int            `mapstructure:"curve_poll_attempts"`
	CurvePollDelay    time.Duration  `mapstructure:"curve_poll_delay"`
	ValidateMint      bool           `mapstructure:"validate_mint"`
	FollowLaunches    bool           `mapstructure:"follow_launches"`
	Backfill          BackfillConfig `mapstructure:"backfill"`
}

type BackfillConfig struct {
	Addresses []string `mapstructure:"addresses"`
	MaxPages  int      `mapstructure:"max_pages"`
	PageSize  int      `mapstructure:"page_size"`
	RPS       float64  `mapstructure:"rps"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SniperConfig struct {
	UserID           string               `mapstructure:"user_id"`
	Wallet           string               `mapstructure:"wallet"`
	BuyAmountSOL     float64              `mapstructure:"buy_amount_sol"`
	SlippageBps      int                  `mapstructure:"slippage_bps"`
	PriorityFee      float64              `mapstructure:"priority_fee"`
	SkipTax          bool                 `mapstructure:"skip_tax"`
	Mode             string               `mapstructure:"mode"`
	MaxSnipes        int                  `mapstructure:"max_snipes"`
	StopLossPercent  float64              `mapstructure:"stop_loss_percent"`
	TakeProfits      []sniping.TakeProfit `mapstructure:"take_profits"`
	MinLiquiditySOL  float64              `mapstructure:"min_liquidity_sol"`
	MaxLiquiditySOL  float64              `mapstructure:"max_liquidity_sol"`
	ExcludeGraduated bool                 `mapstructure:"exclude_graduated"`
	EvaluateInterval time.Duration        `mapstructure:"evaluate_interval"`
	JournalPath      string               `mapstructure:"journal_path"`
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"rpc_list":              []string{},
		"ws_list":               []string{},
		"rotate_endpoints":      true,
		"rate_ceiling":          90,
		"rate_window":           10 * time.Second,
		"max_retries":           6,
		"ws_reconnect_attempts": 5,
		"ws_reconnect_delay":    2 * time.Second,

		"candle_interval": 5 * time.Second,
		"history_depth":   500,
		"broadcast_addr":  ":8090",
		"token_decimals":  6,

		"metrics_addr":  ":9102",
		"postgres_url":  "",
		"redis.addr":    "",
		"redis.stream":  "pumpwatch:launches",
		"redis.max_len": 100000,

		"detector.vanity_suffix":       detector.DefaultVanitySuffix,
		"detector.excluded_addresses":  []string{},
		"detector.curve_poll_attempts": detector.DefaultCurvePollAttempts,
		"detector.curve_poll_delay":    detector.DefaultCurvePollDelay,
		"detector.validate_mint":       true,
		"detector.follow_launches":     false,
		"detector.backfill.addresses":  []string{},
		"detector.backfill.max_pages":  1,
		"detector.backfill.page_size":  100,
		"detector.backfill.rps":        5.0,

		"monitor.interval": 2 * time.Second,

		"sniper.user_id":           "",
		"sniper.wallet":            "",
		"sniper.buy_amount_sol":    0.0,
		"sniper.slippage_bps":      sniping.DefaultSlippageBps,
		"sniper.priority_fee":      0.0,
		"sniper.skip_tax":          false,
		"sniper.mode":              string(sniping.ModeSingle),
		"sniper.max_snipes":        0,
		"sniper.stop_loss_percent": 0.0,
		"sniper.min_liquidity_sol": 0.0,
		"sniper.max_liquidity_sol": 0.0,
		"sniper.exclude_graduated": true,
		"sniper.evaluate_interval": sniping.DefaultEvaluateInterval,
		"sniper.journal_path":      "logs/trades.csv",

		"log.level":       "info",
		"log.file":        "logs/pumpwatch.log",
		"log.max_size":    100,
		"log.max_age":     7,
		"log.max_backups": 3,
		"log.compress":    true,
		"log.pretty":      true,
		"log.development": false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads defaults, then the optional .env file, the optional config file
// and finally PUMPWATCH_* environment variables.
func Load(path, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.RPCList = cleanList(cfg.RPCList)
	cfg.WSList = cleanList(cfg.WSList)
	cfg.Detector.ExcludedAddresses = cleanList(cfg.Detector.ExcludedAddresses)
	cfg.Detector.Backfill.Addresses = cleanList(cfg.Detector.Backfill.Addresses)
	if len(cfg.WSList) == 0 {
		cfg.WSList = deriveWSList(cfg.RPCList)
	}

	return &cfg, nil
}

// loadDotEnv loads envFile, or ./.env when envFile is empty. A missing default file is not an error.
func loadDotEnv(envFile string) error {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", envFile, err)
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return nil
}

func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

// deriveWSList maps http(s) endpoints to ws(s).
func deriveWSList(rpcs []string) []string {
	out := make([]string, 0, len(rpcs))
	for _, r := range rpcs {
		switch {
		case strings.HasPrefix(r, "https://"):
			out = append(out, "wss://"+strings.TrimPrefix(r, "https://"))
		case strings.HasPrefix(r, "http://"):
			out = append(out, "ws://"+strings.TrimPrefix(r, "http://"))
		}
	}
	return out
}

// Validate checks endpoints and numeric ranges. The sniper block is checked by ValidateSniper.
func (cfg *Config) Validate() error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if len(cfg.WSList) == 0 {
		return errors.New("ws_list is empty")
	}
	for _, wsURL := range cfg.WSList {
		if err := validateURLWithCache(wsURL, "ws"); err != nil {
			return fmt.Errorf("invalid WebSocket URL %q: %w", wsURL, err)
		}
	}
	if cfg.PostgresURL != "" {
		if err := validateURLWithCache(cfg.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("invalid postgres_url: %w", err)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	for _, addr := range append(append([]string{}, cfg.Detector.ExcludedAddresses...), cfg.Detector.Backfill.Addresses...) {
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return fmt.Errorf("invalid address %q: %w", addr, err)
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.RateCeiling <= 0 {
		return errors.New("invalid rate_ceiling")
	}
	if cfg.RateWindow <= 0 {
		return errors.New("invalid rate_window")
	}
	if cfg.MaxRetries <= 0 {
		return errors.New("invalid max_retries")
	}
	if cfg.WSReconnectAttempts <= 0 {
		return errors.New("invalid ws_reconnect_attempts")
	}
	if cfg.WSReconnectDelay <= 0 {
		return errors.New("invalid ws_reconnect_delay")
	}
	if cfg.CandleInterval <= 0 {
		return errors.New("invalid candle_interval")
	}
	if cfg.HistoryDepth <= 0 {
		return errors.New("invalid history_depth")
	}
	if cfg.TokenDecimals < 0 || cfg.TokenDecimals > 18 {
		return errors.New("token_decimals must be in [0,18]")
	}
	if cfg.Detector.CurvePollAttempts <= 0 {
		return errors.New("invalid detector.curve_poll_attempts")
	}
	if cfg.Detector.CurvePollDelay <= 0 {
		return errors.New("invalid detector.curve_poll_delay")
	}
	if cfg.Detector.Backfill.RPS < 0 {
		return errors.New("invalid detector.backfill.rps")
	}
	if cfg.Monitor.Interval <= 0 {
		return errors.New("invalid monitor.interval")
	}
	return nil
}

// ValidateSniper checks the sniper block.
func (cfg *Config) ValidateSniper() error {
	sc, err := cfg.SniperSettings()
	if err != nil {
		return err
	}
	return sc.Validate()
}

// DetectorSettings converts the detector block.
func (cfg *Config) DetectorSettings() detector.Config {
	d := detector.DefaultConfig()
	d.VanitySuffix = cfg.Detector.VanitySuffix
	if len(cfg.Detector.ExcludedAddresses) > 0 {
		d.ExcludedAddresses = append(append([]string{}, detector.DefaultExcludedAddresses...), cfg.Detector.ExcludedAddresses...)
	}
	d.CurvePollAttempts = uint(cfg.Detector.CurvePollAttempts)
	d.CurvePollDelay = cfg.Detector.CurvePollDelay
	d.ValidateMint = cfg.Detector.ValidateMint
	d.FollowLaunches = cfg.Detector.FollowLaunches
	return d
}

// BackfillSettings converts the backfill block.
func (cfg *Config) BackfillSettings() (detector.BackfillConfig, error) {
	b := detector.BackfillConfig{
		MaxPages: cfg.Detector.Backfill.MaxPages,
		PageSize: cfg.Detector.Backfill.PageSize,
		RPS:      cfg.Detector.Backfill.RPS,
	}
	for _, addr := range cfg.Detector.Backfill.Addresses {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return b, fmt.Errorf("invalid backfill address %q: %w", addr, err)
		}
		b.Addresses = append(b.Addresses, pk)
	}
	return b, nil
}

// SniperSettings converts the sniper block.
func (cfg *Config) SniperSettings() (sniping.Config, error) {
	s := cfg.Sniper
	mode, err := sniping.ParseMode(s.Mode)
	if err != nil {
		return sniping.Config{}, err
	}
	if s.SlippageBps < 0 || s.SlippageBps > 10000 {
		return sniping.Config{}, fmt.Errorf("invalid sniper.slippage_bps %d", s.SlippageBps)
	}

	return sniping.Config{
		UserID:            s.UserID,
		Wallet:            s.Wallet,
		BuyAmountSOL:      decimal.NewFromFloat(s.BuyAmountSOL),
		SlippageBps:       uint16(s.SlippageBps),
		PriorityFee:       decimal.NewFromFloat(s.PriorityFee),
		SkipTax:           s.SkipTax,
		Mode:              mode,
		MaxSnipes:         s.MaxSnipes,
		StopLossPercent:   s.StopLossPercent,
		TakeProfits:       s.TakeProfits,
		MinLiquiditySOL:   decimal.NewFromFloat(s.MinLiquiditySOL),
		MaxLiquiditySOL:   decimal.NewFromFloat(s.MaxLiquiditySOL),
		ExcludeGraduated:  s.ExcludeGraduated,
		EvaluateInterval:  s.EvaluateInterval,
		ReconnectAttempts: cfg.WSReconnectAttempts,
		ReconnectDelay:    cfg.WSReconnectDelay,
	}, nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	urlCache.Store(key, parsed)
	return nil
}
