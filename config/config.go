package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Log      LogConfig      `mapstructure:"log"`
	Run      RunConfig      `mapstructure:"run"`
}

type ExchangeConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`

	// ParameterPrefix enables endpoint overrides from AWS SSM Parameter Store
	// (e.g. "/conformance/uat"). Empty disables the lookup.
	ParameterPrefix string `mapstructure:"parameter_prefix"`
}

type RESTConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AnnouncementsURL string        `mapstructure:"announcements_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	RateLimit        float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
}

type WSConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// RunConfig controls how scenarios are selected and how strict timing checks are.
type RunConfig struct {
	Feature         string        `mapstructure:"feature"`
	Scenario        string        `mapstructure:"scenario"`
	Tag             string        `mapstructure:"tag"`
	MaxResponseTime time.Duration `mapstructure:"max_response_time"`
	DefaultCount    int           `mapstructure:"default_count"`
	Stub            bool          `mapstructure:"stub"`
}

const (
	DefaultRESTBaseURL = "https://uat-api.3ona.co/exchange/v1/"
	DefaultWSURL       = "wss://uat-stream.3ona.co/exchange/v1/market"
)

// legacyEnv maps the environment variable names used by earlier revisions of the suite.
var legacyEnv = map[string]string{
	"exchange.rest.base_url": "CRYPTO_REST_URL",
	"exchange.ws.url":        "CRYPTO_WS_URL",
	"exchange.rest.timeout":  "REST_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.rest.base_url", DefaultRESTBaseURL)
	v.SetDefault("exchange.rest.announcements_url", "")
	v.SetDefault("exchange.rest.timeout", 30*time.Second)
	v.SetDefault("exchange.rest.user_agent", "MarketConformance/1.0")
	v.SetDefault("exchange.rest.rate_limit", 0)
	v.SetDefault("exchange.ws.url", DefaultWSURL)
	v.SetDefault("exchange.ws.connect_timeout", 10*time.Second)
	v.SetDefault("exchange.ws.ping_interval", 30*time.Second)
	v.SetDefault("exchange.ws.pong_timeout", 10*time.Second)
	v.SetDefault("exchange.parameter_prefix", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("run.max_response_time", 5*time.Second)
	v.SetDefault("run.default_count", 10)
	v.SetDefault("run.stub", false)
}

// Load loads configuration using Viper.
// Precedence: flags > environment (incl. .env) > config.yaml > defaults.
// flags may be nil.
func Load(flags *pflag.FlagSet, configPaths ...string) (*Config, error) {
	// .env is optional; variables already set in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{".", "./config"}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	// Support environment variables with dot notation (e.g., EXCHANGE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDuration,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"rest-url":  "exchange.rest.base_url",
	"ws-url":    "exchange.ws.url",
	"log-level": "log.level",
	"feature":   "run.feature",
	"scenario":  "run.scenario",
	"tag":       "run.tag",
	"stub":      "run.stub",
}

// RegisterFlags declares the flags understood by Load.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("rest-url", "", "REST base URL")
	flags.String("ws-url", "", "streaming URL")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("feature", "", "run only features whose name contains this text")
	flags.String("scenario", "", "run only scenarios whose name contains this text")
	flags.String("tag", "", "run only scenarios carrying this tag")
	flags.Bool("stub", false, "run against an in-process stub exchange")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// secondsToDuration accepts bare numbers (REST_TIMEOUT=30) as seconds.
func secondsToDuration(f reflect.Type, t reflect.Type, data any) (any, error) {
	if t != reflect.TypeOf(time.Duration(0)) || f.Kind() != reflect.String {
		return data, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
	if err != nil {
		return data, nil
	}
	return time.Duration(n * float64(time.Second)), nil
}
