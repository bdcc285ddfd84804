package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"fleetroute/internal/opt"
)

type Config struct {
	HTTP struct {
		Port              int           `yaml:"port"`
		ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	Database struct {
		// Driver is "pgx" (Postgres) or "sqlite". Without a URL results are kept in memory.
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`

	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`

	Optimizer struct {
		Iterations      int           `yaml:"iterations"`
		RefinePasses    int           `yaml:"refinePasses"`
		Workers         int           `yaml:"workers"`
		SpeedKmh        float64       `yaml:"speedKmh"`
		TimeBudget      time.Duration `yaml:"timeBudget"`
		StopWhenStalled bool          `yaml:"stopWhenStalled"`
	} `yaml:"optimizer"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Webhooks struct {
		MaxAttempts  int           `yaml:"maxAttempts"`
		PollInterval time.Duration `yaml:"pollInterval"`
	} `yaml:"webhooks"`

	Sinks struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"sinks"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := &Config{}
	c.HTTP.Port = 8080
	c.HTTP.ReadHeaderTimeout = 5 * time.Second
	c.HTTP.ShutdownTimeout = 10 * time.Second
	c.Log.Level = "info"
	c.Database.Driver = "pgx"
	c.Optimizer.Iterations = opt.DefaultIterations
	c.Optimizer.RefinePasses = opt.DefaultRefinePasses
	c.Optimizer.SpeedKmh = opt.DefaultSpeedKmh
	c.Optimizer.TimeBudget = 30 * time.Second
	c.RateLimit.RPS = 5
	c.RateLimit.Burst = 10
	c.Webhooks.MaxAttempts = 10
	c.Webhooks.PollInterval = time.Second
	c.Sinks.Timeout = 10 * time.Second
	return c
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then a .env file in the working directory,
// then the process environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return c, c.validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}
	e.int("PORT", &c.HTTP.Port)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.bool("LOG_PRETTY", &c.Log.Pretty)
	e.str("DATABASE_DRIVER", &c.Database.Driver)
	e.str("DATABASE_URL", &c.Database.URL)
	e.str("REDIS_URL", &c.Redis.URL)
	e.str("AMQP_URL", &c.AMQP.URL)
	e.str("AMQP_EXCHANGE", &c.AMQP.Exchange)
	e.int("OPT_ITERATIONS", &c.Optimizer.Iterations)
	e.int("OPT_REFINE_PASSES", &c.Optimizer.RefinePasses)
	e.int("OPT_WORKERS", &c.Optimizer.Workers)
	e.float("OPT_SPEED_KMH", &c.Optimizer.SpeedKmh)
	e.duration("OPT_TIME_BUDGET", &c.Optimizer.TimeBudget)
	e.float("RATE_RPS", &c.RateLimit.RPS)
	e.int("RATE_BURST", &c.RateLimit.Burst)
	e.int("WEBHOOK_MAX_ATTEMPTS", &c.Webhooks.MaxAttempts)
	return e.err
}

func (c *Config) validate() error {
	switch {
	case c.HTTP.Port <= 0 || c.HTTP.Port > 65535:
		return errors.Errorf("config: invalid port %d", c.HTTP.Port)
	case c.Webhooks.MaxAttempts <= 0:
		return errors.New("config: webhooks.maxAttempts must be positive")
	case c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0:
		return errors.New("config: rate limit must not be negative")
	}
	return nil
}

// OptimizerOptions converts the optimizer section into engine options.
func (c *Config) OptimizerOptions() opt.Options {
	o := c.Optimizer
	return opt.Options{
		Iterations:      o.Iterations,
		RefinePasses:    o.RefinePasses,
		Workers:         o.Workers,
		SpeedKmh:        o.SpeedKmh,
		TimeBudget:      o.TimeBudget,
		StopWhenStalled: o.StopWhenStalled,
	}
}

// Summary is a secret-free view for the debug endpoint.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"port":               c.HTTP.Port,
		"logLevel":           c.Log.Level,
		"databaseDriver":     c.Database.Driver,
		"hasDatabaseUrl":     c.Database.URL != "",
		"hasRedisUrl":        c.Redis.URL != "",
		"hasAmqpUrl":         c.AMQP.URL != "",
		"optimizer":          c.Optimizer,
		"rateRps":            c.RateLimit.RPS,
		"rateBurst":          c.RateLimit.Burst,
		"webhookMaxAttempts": c.Webhooks.MaxAttempts,
	}
}

// envReader applies environment overrides and keeps the first parse error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = errors.Wrapf(err, "config: %s", key)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}
