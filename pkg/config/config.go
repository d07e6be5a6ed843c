package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"StockPipe/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Mode        string        `yaml:"mode" default:"prod" validate:"oneof=prod test"`
	Logger      logger.Config `yaml:"logger"`
	Storage     struct {
		Type         string `yaml:"type" default:"local" validate:"oneof=local s3 gcs memory"`
		Root         string `yaml:"root" default:"data"`
		Bucket       string `yaml:"bucket"`
		Prefix       string `yaml:"prefix"`
		Region       string `yaml:"region" default:"us-east-1"`
		Endpoint     string `yaml:"endpoint"`
		UsePathStyle bool   `yaml:"use_path_style"`
	} `yaml:"storage"`
	Providers struct {
		Order   []string      `yaml:"order" default:"[\"yahoo\",\"alphavantage\"]" validate:"min=1,dive,oneof=yahoo alphavantage alpaca"`
		Timeout time.Duration `yaml:"timeout" default:"30s"`
		Yahoo   struct {
			BaseURL         string `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
			MaxLookbackDays int    `yaml:"max_lookback_days" default:"3650" validate:"gte=1"`
		} `yaml:"yahoo"`
		AlphaVantage struct {
			APIKey          string `yaml:"api_key"`
			BaseURL         string `yaml:"base_url" default:"https://www.alphavantage.co/query"`
			MaxLookbackDays int    `yaml:"max_lookback_days" default:"7300" validate:"gte=1"`
		} `yaml:"alpha_vantage"`
		Alpaca struct {
			APIKey          string `yaml:"api_key"`
			APISecret       string `yaml:"api_secret"`
			BaseURL         string `yaml:"base_url"`
			Feed            string `yaml:"feed" default:"iex" validate:"oneof=iex sip"`
			MaxLookbackDays int    `yaml:"max_lookback_days" default:"2555" validate:"gte=1"`
		} `yaml:"alpaca"`
	} `yaml:"providers"`
	RateLimit struct {
		CallsPerWindow int           `yaml:"calls_per_window" default:"60" validate:"gte=1"`
		Window         time.Duration `yaml:"window" default:"1m" validate:"gt=0"`
		Strategy       string        `yaml:"strategy" default:"exponential_backoff" validate:"oneof=exponential_backoff fixed_delay linear"`
		BaseCooldown   time.Duration `yaml:"base_cooldown" default:"1s"`
		MaxCooldown    time.Duration `yaml:"max_cooldown" default:"60s"`
		MaxHits        int           `yaml:"max_rate_limit_hits" default:"10" validate:"gte=1"`
		RetryAttempts  int           `yaml:"retry_attempts" default:"3" validate:"gte=1"`
	} `yaml:"rate_limit"`
	Acquisition struct {
		FullHistoryDays     int           `yaml:"full_history_days" default:"730" validate:"gte=1"`
		BatchSize           int           `yaml:"batch_size" default:"10" validate:"gte=1"`
		BatchCooldown       time.Duration `yaml:"batch_cooldown" default:"1s"`
		Workers             int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
		AdaptiveReduceEvery int           `yaml:"adaptive_reduce_every" default:"3" validate:"gte=0"`
		FailureThreshold    float64       `yaml:"failure_threshold" default:"0.25" validate:"gte=0,lte=1"`
		MaxRuntime          time.Duration `yaml:"max_runtime" default:"2h" validate:"gt=0"`
		DryRun              bool          `yaml:"dry_run"`
		Force               bool          `yaml:"force"`
	} `yaml:"acquisition"`
	Features struct {
		OutputWindowDays int  `yaml:"output_window_days" default:"30" validate:"gte=1"`
		DropIncomplete   bool `yaml:"drop_incomplete"`
		MinRowsPerTicker int  `yaml:"min_rows_per_ticker" default:"500" validate:"gte=1"`
		Workers          int  `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	} `yaml:"features"`
	Universe struct {
		Source      string        `yaml:"source" default:"wikipedia" validate:"oneof=wikipedia static"`
		URL         string        `yaml:"url" default:"https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"`
		Static      []string      `yaml:"static"`
		MinExpected int           `yaml:"min_expected" default:"400" validate:"gte=0"`
		MaxExpected int           `yaml:"max_expected" default:"600" validate:"gtefield=MinExpected"`
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"6h"`
	} `yaml:"universe"`
	Retention struct {
		Enabled bool `yaml:"enabled"`
		Days    int  `yaml:"days" default:"3" validate:"gte=1"`
	} `yaml:"retention"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"stockpipe"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"6h"`
		Pool     struct {
			Size         int           `yaml:"size" default:"10" validate:"gte=1"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
			Timeout      time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"pool"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"stockpipe"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		Compression      string        `yaml:"compression" default:"lz4" validate:"omitempty,oneof=lz4 zstd gzip"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		AutoCreate   bool     `yaml:"auto_create_topics"`
		Topics       struct {
			Runs     string `yaml:"runs" default:"stockpipe.runs"`
			Universe string `yaml:"universe" default:"stockpipe.universe"`
			Features string `yaml:"features" default:"stockpipe.features"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Scheduler struct {
		Cron       string `yaml:"cron" default:"0 30 22 * * 1-5"`
		Timezone   string `yaml:"timezone" default:"America/New_York"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"scheduler"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, fills defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Default returns a Config with only defaults applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// LoadWithEnv loads config from YAML and overrides with environment variables
// before validating, so secrets may come from the environment only.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PIPELINE_MODE"); v != "" {
		c.Mode = v
	}
	if v := getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		c.Providers.AlphaVantage.APIKey = v
	}
	if v := getenv("ALPACA_API_KEY"); v != "" {
		c.Providers.Alpaca.APIKey = v
	}
	if v := getenv("ALPACA_API_SECRET"); v != "" {
		c.Providers.Alpaca.APISecret = v
	}
	if v := getenv("STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := getenv("STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := getenv("STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if (c.Storage.Type == "s3" || c.Storage.Type == "gcs") && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required for %s storage", c.Storage.Type)
	}
	if c.RateLimit.MaxCooldown < c.RateLimit.BaseCooldown {
		return fmt.Errorf("rate_limit.max_cooldown must be >= base_cooldown")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Universe.Source == "static" && len(c.Universe.Static) == 0 {
		return fmt.Errorf("universe.static cannot be empty for static source")
	}
	for _, p := range c.Providers.Order {
		switch p {
		case "alphavantage":
			if c.Providers.AlphaVantage.APIKey == "" {
				return fmt.Errorf("providers.alpha_vantage.api_key is required when alphavantage is enabled")
			}
		case "alpaca":
			if c.Providers.Alpaca.APIKey == "" || c.Providers.Alpaca.APISecret == "" {
				return fmt.Errorf("providers.alpaca credentials are required when alpaca is enabled")
			}
		}
	}
	return nil
}

// TestMode reports whether the pipeline runs against the reduced test universe.
func (c *Config) TestMode() bool { return c.Mode == "test" }

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
